package events

import "errors"

// ErrClosed is returned by Next after the subscription is closed
var ErrClosed = errors.New("subscription closed")
