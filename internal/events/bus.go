// Package events carries store change notifications to in-process consumers.
//
// The event store publishes one Event per successful write. Consumers such as
// the live subscription hub and the notification dispatcher each hold their
// own Subscription, an unbounded mailbox, so a slow consumer never blocks a
// writer and never loses an event.
package events

import (
	"context"
	"sync"
	"time"
)

// Kind is the type of change the store reports
type Kind string

const (
	KindMessageCreated Kind = "message.created"
	KindMessageRead    Kind = "message.read"
	KindCheckInCreated Kind = "checkin.created"
	KindMemoryCreated  Kind = "memory.created"
)

// Created reports whether the kind marks a newly appended event
func (k Kind) Created() bool {
	switch k {
	case KindMessageCreated, KindCheckInCreated, KindMemoryCreated:
		return true
	}
	return false
}

// Event carries ids only; consumers read the full record from the store.
type Event struct {
	Kind     Kind      `json:"kind"`
	EventID  string    `json:"event_id"`
	CoupleID string    `json:"couple_id"`
	AuthorID string    `json:"author_id"`
	Origin   string    `json:"origin"`
	At       time.Time `json:"at"`
}

// Bus fans events out to every subscription
type Bus struct {
	origin string

	mu     sync.RWMutex
	subs   map[int64]*Subscription
	nextID int64
}

// NewBus creates a bus; origin identifies this process in events it publishes.
func NewBus(origin string) *Bus {
	return &Bus{
		origin: origin,
		subs:   make(map[int64]*Subscription),
	}
}

// Origin returns the identifier stamped on locally published events
func (b *Bus) Origin() string { return b.origin }

// Publish delivers evt to every current subscription without blocking.
// Events without an origin are stamped with the bus origin.
func (b *Bus) Publish(evt Event) {
	if evt.Origin == "" {
		evt.Origin = b.origin
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.push(evt)
	}
}

// Subscribe registers a new mailbox. Close it to stop receiving.
func (b *Bus) Subscribe(name string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &Subscription{
		id:     b.nextID,
		name:   name,
		bus:    b,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	b.subs[s.id] = s
	return s
}

func (b *Bus) unsubscribe(id int64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscription is a single consumer's ordered mailbox
type Subscription struct {
	id   int64
	name string
	bus  *Bus

	mu     sync.Mutex
	queue  []Event
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Name returns the consumer name given at Subscribe
func (s *Subscription) Name() string { return s.name }

func (s *Subscription) push(evt Event) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}
	s.queue = append(s.queue, evt)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available, ctx is done or the subscription is closed.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			evt := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return evt, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.done:
			return Event{}, ErrClosed
		case <-s.signal:
		}
	}
}

// Pending returns the number of queued events
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.done)
		s.queue = nil
		s.mu.Unlock()
		s.bus.unsubscribe(s.id)
	})
}
