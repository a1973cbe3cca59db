package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"marshmallow-backend/internal/events"
	"marshmallow-backend/internal/metrics"
	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const snapshotTimeout = 10 * time.Second

// LiveHub keeps every subscriber of a couple supplied with full,
// newest-first message snapshots.
type LiveHub struct {
	messages repository.Messages
	couples  repository.Couples
	clock    Clock
	limit    int

	mu     sync.RWMutex
	subs   map[string]map[int64]*liveSubscription
	nextID int64
}

type liveSubscription struct {
	id       int64
	coupleID string
	onUpdate func(models.MessageSnapshot)
	onError  func(error)

	dirty chan struct{}
	done  chan struct{}
	stop  sync.Once
}

// NewLiveHub creates a hub. limit caps snapshot length; limit <= 0 sends every message.
func NewLiveHub(messages repository.Messages, couples repository.Couples, clock Clock, limit int) *LiveHub {
	return &LiveHub{
		messages: messages,
		couples:  couples,
		clock:    clock,
		limit:    limit,
		subs:     make(map[string]map[int64]*liveSubscription),
	}
}

// Subscribe starts a standing view of a couple's messages. onUpdate receives
// the initial snapshot and a full replacement after every change. onError is
// called at most once, after which the subscription is over. Callbacks for
// one subscription never run concurrently. The returned function stops the
// subscription and may be called any number of times.
func (h *LiveHub) Subscribe(ctx context.Context, coupleID string, onUpdate func(models.MessageSnapshot), onError func(error)) (func(), error) {
	if onUpdate == nil {
		return nil, fmt.Errorf("%w: onUpdate is required", models.ErrSubscriptionSetupFailed)
	}
	if _, err := uuid.Parse(coupleID); err != nil {
		return nil, fmt.Errorf("%w: malformed couple id %q", models.ErrSubscriptionSetupFailed, coupleID)
	}
	if _, err := h.couples.GetByID(ctx, coupleID); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrSubscriptionSetupFailed, err)
	}

	sub := &liveSubscription{
		coupleID: coupleID,
		onUpdate: onUpdate,
		onError:  onError,
		dirty:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	// Initial snapshot
	sub.dirty <- struct{}{}

	h.mu.Lock()
	h.nextID++
	sub.id = h.nextID
	if h.subs[coupleID] == nil {
		h.subs[coupleID] = make(map[int64]*liveSubscription)
	}
	h.subs[coupleID][sub.id] = sub
	h.mu.Unlock()

	metrics.LiveSubscriptions.Inc()
	log.Debug().Str("couple_id", coupleID).Int64("subscription", sub.id).Msg("Live subscription started")

	go h.run(sub)

	return func() { h.remove(sub) }, nil
}

// Notify marks every subscription of the couple as stale. Pending refreshes
// coalesce into one snapshot.
func (h *LiveHub) Notify(coupleID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs[coupleID] {
		select {
		case sub.dirty <- struct{}{}:
		default:
		}
	}
}

// Run refreshes subscribers from the change feed until ctx is done or the
// feed is closed.
func (h *LiveHub) Run(ctx context.Context, feed *events.Subscription) error {
	for {
		evt, err := feed.Next(ctx)
		if err != nil {
			if errors.Is(err, events.ErrClosed) {
				return nil
			}
			return err
		}
		switch evt.Kind {
		case events.KindMessageCreated, events.KindMessageRead:
			h.Notify(evt.CoupleID)
		}
	}
}

// Close stops every subscription without calling onError
func (h *LiveHub) Close() {
	h.mu.RLock()
	var all []*liveSubscription
	for _, subs := range h.subs {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range all {
		h.remove(sub)
	}
}

// Subscribers returns the number of open subscriptions for a couple
func (h *LiveHub) Subscribers(coupleID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[coupleID])
}

func (h *LiveHub) run(sub *liveSubscription) {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.dirty:
		}

		snapshot, err := h.snapshot(sub.coupleID)

		select {
		case <-sub.done:
			return
		default:
		}

		if err != nil {
			log.Error().Err(err).Str("couple_id", sub.coupleID).Msg("Failed to build live snapshot")
			h.remove(sub)
			if sub.onError != nil {
				sub.onError(err)
			}
			return
		}

		sub.onUpdate(snapshot)
		metrics.SnapshotsDelivered.Inc()
	}
}

func (h *LiveHub) snapshot(coupleID string) (models.MessageSnapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	msgs, err := h.messages.ListByCouple(ctx, coupleID, h.limit)
	if err != nil {
		return models.MessageSnapshot{}, fmt.Errorf("failed to load messages: %w", err)
	}

	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		msg := *m
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = models.PendingTimestamp
		}
		out = append(out, msg)
	}
	sortNewestFirst(out)

	return models.MessageSnapshot{
		CoupleID: coupleID,
		Messages: out,
		At:       h.clock.Now(),
	}, nil
}

func (h *LiveHub) remove(sub *liveSubscription) {
	sub.stop.Do(func() {
		close(sub.done)

		h.mu.Lock()
		if subs := h.subs[sub.coupleID]; subs != nil {
			delete(subs, sub.id)
			if len(subs) == 0 {
				delete(h.subs, sub.coupleID)
			}
		}
		h.mu.Unlock()

		metrics.LiveSubscriptions.Dec()
		log.Debug().Str("couple_id", sub.coupleID).Int64("subscription", sub.id).Msg("Live subscription stopped")
	})
}

// sortNewestFirst orders by creation time, then id, both descending
func sortNewestFirst(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
		}
		return msgs[i].ID > msgs[j].ID
	})
}
