package models

import "errors"

var (
	ErrInvalidEvent            = errors.New("invalid event")
	ErrNotFound                = errors.New("not found")
	ErrNotPaired               = errors.New("not paired")
	ErrInvalidCoupleSize       = errors.New("invalid couple size")
	ErrSubscriptionSetupFailed = errors.New("subscription setup failed")
	ErrDeliveryFailed          = errors.New("delivery failed")

	ErrValidation    = errors.New("validation error")
	ErrCheckInExists = errors.New("check-in already exists for this date")
	ErrCoupleFull    = errors.New("couple already has two members")
	ErrAlreadyPaired = errors.New("user is already in a couple")
	ErrUnauthorized  = errors.New("unauthorized")
)

// OpError carries a stable, user-readable message for a failed write.
// The wrapped error keeps the cause available to errors.Is and logs.
type OpError struct {
	Op      string
	Message string
	Err     error
}

func (e *OpError) Error() string { return e.Message }

func (e *OpError) Unwrap() error { return e.Err }

// Cause returns the detailed error text for logging
func (e *OpError) Cause() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Op + ": " + e.Err.Error()
}

// NewOpError wraps err with the user-facing message registered for op
func NewOpError(op string, err error) *OpError {
	msg, ok := opMessages[op]
	if !ok {
		msg = "something went wrong, please try again"
	}
	return &OpError{Op: op, Message: msg, Err: err}
}

const (
	OpSendMessage    = "send_message"
	OpMarkRead       = "mark_read"
	OpCheckIn        = "check_in"
	OpSaveMemory     = "save_memory"
	OpRegisterDevice = "register_device"
	OpCreateCouple   = "create_couple"
	OpJoinCouple     = "join_couple"
	OpSignIn         = "sign_in"
	OpUpdateSettings = "update_settings"
)

var opMessages = map[string]string{
	OpSendMessage:    "failed to send message, please try again",
	OpMarkRead:       "failed to mark message as read, please try again",
	OpCheckIn:        "failed to save check-in, please try again",
	OpSaveMemory:     "failed to save memory, please try again",
	OpRegisterDevice: "failed to register device, please try again",
	OpCreateCouple:   "failed to create couple, please try again",
	OpJoinCouple:     "failed to join couple, please try again",
	OpSignIn:         "failed to sign in, please try again",
	OpUpdateSettings: "failed to save settings, please try again",
}
