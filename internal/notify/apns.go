package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"marshmallow-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// ErrInvalidAddress marks a device address the provider no longer accepts
var ErrInvalidAddress = errors.New("invalid device address")

// DeliveryError is a failed push attempt. It matches models.ErrDeliveryFailed.
type DeliveryError struct {
	Reason string
	Status int
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("delivery failed (%s)", e.Reason)
}

func (e *DeliveryError) Unwrap() []error {
	if e.Err == nil {
		return []error{models.ErrDeliveryFailed}
	}
	return []error{models.ErrDeliveryFailed, e.Err}
}

// APNsOptions configures the Apple Push Notification service client.
// Token auth (KeyFile, KeyID, TeamID) is preferred; CertFile is a .p12 fallback.
type APNsOptions struct {
	KeyFile      string
	KeyID        string
	TeamID       string
	CertFile     string
	CertPassword string
	Topic        string
	Production   bool
}

// APNsPusher delivers notifications through APNs
type APNsPusher struct {
	client *apns2.Client
	topic  string
}

// NewAPNsPusher creates an APNs pusher
func NewAPNsPusher(opts APNsOptions) (*APNsPusher, error) {
	var client *apns2.Client
	switch {
	case opts.KeyFile != "":
		authKey, err := token.AuthKeyFromFile(opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load APNs auth key: %w", err)
		}
		client = apns2.NewTokenClient(&token.Token{
			AuthKey: authKey,
			KeyID:   opts.KeyID,
			TeamID:  opts.TeamID,
		})
	case opts.CertFile != "":
		cert, err := certificate.FromP12File(opts.CertFile, opts.CertPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to load APNs certificate: %w", err)
		}
		client = apns2.NewClient(cert)
	default:
		return nil, errors.New("APNs requires a key file or a certificate")
	}

	if opts.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNsPusher{client: client, topic: opts.Topic}, nil
}

// Push sends one alert notification
func (p *APNsPusher) Push(ctx context.Context, n Notification) error {
	pl := payload.NewPayload().
		AlertTitle(n.Title).
		AlertBody(n.Body).
		Sound("default")
	for k, v := range n.Data {
		pl.Custom(k, v)
	}

	notification := &apns2.Notification{
		DeviceToken: n.Address,
		Topic:       p.topic,
		CollapseID:  n.EventID,
		PushType:    apns2.PushTypeAlert,
		Priority:    apns2.PriorityHigh,
		Payload:     pl,
	}

	res, err := p.client.PushWithContext(ctx, notification)
	if err != nil {
		return &DeliveryError{Reason: "transport", Err: err}
	}
	if !res.Sent() {
		return classify(res.StatusCode, res.Reason)
	}
	return nil
}

func classify(status int, reason string) error {
	switch reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		return &DeliveryError{Reason: reason, Status: status, Err: ErrInvalidAddress}
	}
	if status == http.StatusGone {
		return &DeliveryError{Reason: "gone", Status: status, Err: ErrInvalidAddress}
	}
	if reason == "" {
		reason = http.StatusText(status)
	}
	return &DeliveryError{Reason: reason, Status: status}
}

// LogPusher writes notifications to the log instead of sending them.
// It stands in for APNs in local runs.
type LogPusher struct{}

func (LogPusher) Push(_ context.Context, n Notification) error {
	log.Info().
		Str("event_id", n.EventID).
		Str("title", n.Title).
		Str("body", n.Body).
		Interface("data", n.Data).
		Msg("Push notification (not sent)")
	return nil
}
