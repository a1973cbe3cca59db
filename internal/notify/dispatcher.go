// Package notify turns newly appended events into push notifications for the
// author's partner.
//
// Each created event moves through Triggered, RecipientResolved,
// AddressResolved and Delivered. The pipeline may stop at any stage; a stop is
// terminal for that event. Delivery is never retried inline and never touches
// the stored event.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"marshmallow-backend/internal/events"
	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// Stage is the last stage an event reached in the pipeline
type Stage string

const (
	StageTriggered         Stage = "triggered"
	StageRecipientResolved Stage = "recipient_resolved"
	StageAddressResolved   Stage = "address_resolved"
	StageDelivered         Stage = "delivered"
)

// Outcome is how the pipeline ended for an event
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeNotPaired Outcome = "not_paired"
	OutcomeNoDevice  Outcome = "no_device"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Result describes one pipeline run
type Result struct {
	Stage   Stage
	Outcome Outcome
	Err     error
}

// PartnerResolver answers who the partner of a user is
type PartnerResolver interface {
	ResolvePartner(ctx context.Context, userID string) (string, error)
}

// AddressLookup returns a user's push address, if one is registered
type AddressLookup interface {
	Lookup(ctx context.Context, userID string) (string, bool, error)
}

// Pusher hands a notification to the push provider
type Pusher interface {
	Push(ctx context.Context, n Notification) error
}

// Claimer records that an event's notification is being sent.
// Claim returns false when the event was already claimed.
type Claimer interface {
	Claim(ctx context.Context, eventID string) (bool, error)
}

// Reporter receives every terminal pipeline result
type Reporter interface {
	Report(evt events.Event, res Result)
}

// Options tune the dispatcher's concurrency
type Options struct {
	// Origin limits dispatch to events published by this instance.
	Origin  string
	Workers int
	Timeout time.Duration
}

// Dispatcher runs the notification pipeline for created events
type Dispatcher struct {
	messages repository.Messages
	checkIns repository.CheckIns
	memories repository.Memories
	couples  repository.Couples
	partners PartnerResolver
	devices  AddressLookup
	pusher   Pusher
	claimer  Claimer
	reporter Reporter

	origin  string
	workers int
	timeout time.Duration
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(
	store repository.Store,
	partners PartnerResolver,
	devices AddressLookup,
	pusher Pusher,
	claimer Claimer,
	reporter Reporter,
	opts Options,
) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Dispatcher{
		messages: store.Messages(),
		checkIns: store.CheckIns(),
		memories: store.Memories(),
		couples:  store.Couples(),
		partners: partners,
		devices:  devices,
		pusher:   pusher,
		claimer:  claimer,
		reporter: reporter,
		origin:   opts.Origin,
		workers:  opts.Workers,
		timeout:  opts.Timeout,
	}
}

// Run consumes the change feed until ctx is done or the feed is closed.
// In-flight sends are allowed to finish before Run returns.
func (d *Dispatcher) Run(ctx context.Context, feed *events.Subscription) error {
	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		evt, err := feed.Next(ctx)
		if err != nil {
			if errors.Is(err, events.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if !evt.Kind.Created() {
			continue
		}
		if d.origin != "" && evt.Origin != d.origin {
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		wg.Add(1)
		go func(evt events.Event) {
			defer wg.Done()
			defer func() { <-sem }()

			// A started send is never cancelled; it completes or fails.
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
			defer cancel()
			d.Handle(sendCtx, evt)
		}(evt)
	}
}

// Handle runs the pipeline for one event and reports the result
func (d *Dispatcher) Handle(ctx context.Context, evt events.Event) Result {
	res := d.handle(ctx, evt)

	logger := log.With().
		Str("kind", string(evt.Kind)).
		Str("event_id", evt.EventID).
		Str("couple_id", evt.CoupleID).
		Str("stage", string(res.Stage)).
		Str("outcome", string(res.Outcome)).
		Logger()
	switch res.Outcome {
	case OutcomeFailed:
		logger.Error().Err(res.Err).Msg("Failed to deliver notification")
	case OutcomeDelivered:
		logger.Info().Msg("Notification delivered")
	default:
		logger.Debug().Msg("Notification skipped")
	}

	if d.reporter != nil {
		d.reporter.Report(evt, res)
	}
	return res
}

func (d *Dispatcher) handle(ctx context.Context, evt events.Event) Result {
	// Triggered
	target, err := d.load(ctx, evt)
	if err != nil {
		return Result{Stage: StageTriggered, Outcome: OutcomeFailed, Err: err}
	}

	recipient := target.recipientID
	if recipient == "" {
		recipient, err = d.partners.ResolvePartner(ctx, evt.AuthorID)
		if err != nil {
			if errors.Is(err, models.ErrNotPaired) {
				return Result{Stage: StageTriggered, Outcome: OutcomeNotPaired}
			}
			return Result{Stage: StageTriggered, Outcome: OutcomeFailed, Err: fmt.Errorf("failed to resolve partner: %w", err)}
		}
	}

	// RecipientResolved
	address, ok, err := d.devices.Lookup(ctx, recipient)
	if err != nil {
		return Result{Stage: StageRecipientResolved, Outcome: OutcomeFailed, Err: err}
	}
	if !ok {
		return Result{Stage: StageRecipientResolved, Outcome: OutcomeNoDevice}
	}

	// AddressResolved
	senderName := d.senderName(ctx, evt)
	n := target.build(senderName)
	n.Address = address

	if d.claimer != nil {
		claimed, err := d.claimer.Claim(ctx, evt.EventID)
		if err != nil {
			log.Warn().Err(err).Str("event_id", evt.EventID).Msg("Failed to claim notification, sending anyway")
		} else if !claimed {
			return Result{Stage: StageAddressResolved, Outcome: OutcomeDuplicate}
		}
	}

	if err := d.pusher.Push(ctx, n); err != nil {
		if !errors.Is(err, models.ErrDeliveryFailed) {
			err = &DeliveryError{Reason: "error", Err: err}
		}
		return Result{Stage: StageAddressResolved, Outcome: OutcomeFailed, Err: err}
	}

	return Result{Stage: StageDelivered, Outcome: OutcomeDelivered}
}

type target struct {
	recipientID string
	build       func(senderName string) Notification
}

func (d *Dispatcher) load(ctx context.Context, evt events.Event) (*target, error) {
	switch evt.Kind {
	case events.KindMessageCreated:
		msg, err := d.messages.GetByID(ctx, evt.EventID)
		if err != nil {
			return nil, fmt.Errorf("failed to load message: %w", err)
		}
		return &target{
			recipientID: msg.RecipientID,
			build:       func(name string) Notification { return MessageNotification(name, msg) },
		}, nil
	case events.KindCheckInCreated:
		checkIn, err := d.checkIns.GetByID(ctx, evt.EventID)
		if err != nil {
			return nil, fmt.Errorf("failed to load check-in: %w", err)
		}
		return &target{
			build: func(name string) Notification { return CheckInNotification(name, checkIn) },
		}, nil
	case events.KindMemoryCreated:
		memory, err := d.memories.GetByID(ctx, evt.EventID)
		if err != nil {
			return nil, fmt.Errorf("failed to load memory: %w", err)
		}
		return &target{
			build: func(name string) Notification { return MemoryNotification(name, memory) },
		}, nil
	}
	return nil, fmt.Errorf("%w: no notification for %s", models.ErrInvalidEvent, evt.Kind)
}

func (d *Dispatcher) senderName(ctx context.Context, evt events.Event) string {
	couple, err := d.couples.GetByID(ctx, evt.CoupleID)
	if err != nil {
		log.Warn().Err(err).Str("couple_id", evt.CoupleID).Msg("Failed to load couple for sender name")
		return (&models.Couple{}).DisplayName(evt.AuthorID)
	}
	return couple.DisplayName(evt.AuthorID)
}
