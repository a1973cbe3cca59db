package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marshmallow-backend/internal/events"
	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/repository/memstore"
	"marshmallow-backend/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (p *fakePusher) Push(_ context.Context, n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
	return p.err
}

func (p *fakePusher) calls() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notification(nil), p.sent...)
}

type recordingReporter struct {
	mu      sync.Mutex
	results []Result
}

func (r *recordingReporter) Report(_ events.Event, res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

type harness struct {
	store    *memstore.Store
	bus      *events.Bus
	events   *services.EventService
	devices  *services.DeviceRegistry
	pusher   *fakePusher
	reporter *recordingReporter
	disp     *Dispatcher
	coupleID string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	clock := services.NewMonotonicClock()
	bus := events.NewBus("node-a")
	pairing := services.NewPairingService(store.Users(), store.Couples(), clock)
	devices := services.NewDeviceRegistry(store.DeviceTokens())

	for i, u := range []struct{ id, name string }{{"u1", "Ana"}, {"u2", "Ben"}, {"solo", "Sol"}} {
		_, err := store.Users().Upsert(ctx, &models.User{ID: u.id, DisplayName: u.name, Code: []string{"AAAAAA", "BBBBBB", "CCCCCC"}[i]})
		require.NoError(t, err)
	}
	couple := &models.Couple{
		ID:           uuid.NewString(),
		Members:      []string{"u1", "u2"},
		DisplayNames: map[string]string{"u1": "Ana", "u2": "Ben"},
		CreatedAt:    clock.Now(),
	}
	require.NoError(t, store.Couples().Create(ctx, couple))
	require.NoError(t, store.Users().SetCoupleID(ctx, "u1", couple.ID))
	require.NoError(t, store.Users().SetCoupleID(ctx, "u2", couple.ID))

	h := &harness{
		store:    store,
		bus:      bus,
		events:   services.NewEventService(store, pairing, clock, bus),
		devices:  devices,
		pusher:   &fakePusher{},
		reporter: &recordingReporter{},
		coupleID: couple.ID,
	}
	h.disp = NewDispatcher(store, pairing, devices, h.pusher, NewMemoryClaimer(time.Hour), h.reporter, Options{Origin: "node-a", Workers: 2})
	return h
}

func (h *harness) created(kind events.Kind, id, author string) events.Event {
	return events.Event{Kind: kind, EventID: id, CoupleID: h.coupleID, AuthorID: author, Origin: "node-a"}
}

func TestDispatcher_MissYou(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.devices.Register(ctx, "u2", "device-u2"))

	msg, err := h.events.AppendMessage(ctx, "u1", services.MessageInput{Body: "Miss you", Kind: models.MessageKindText})
	require.NoError(t, err)

	res := h.disp.Handle(ctx, h.created(events.KindMessageCreated, msg.ID, "u1"))
	assert.Equal(t, Result{Stage: StageDelivered, Outcome: OutcomeDelivered}, res)

	sent := h.pusher.calls()
	require.Len(t, sent, 1)
	assert.Equal(t, "device-u2", sent[0].Address)
	assert.Equal(t, "Miss you", sent[0].Body)
	assert.Equal(t, "Ana", sent[0].Title)
	assert.Equal(t, msg.ID, sent[0].Data["message_id"])
}

func TestDispatcher_NoDeviceRegistered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	msg, err := h.events.AppendMessage(ctx, "u1", services.MessageInput{Body: "Miss you", Kind: models.MessageKindText})
	require.NoError(t, err)

	res := h.disp.Handle(ctx, h.created(events.KindMessageCreated, msg.ID, "u1"))
	assert.Equal(t, OutcomeNoDevice, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Empty(t, h.pusher.calls())

	stored, err := h.store.Messages().GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Miss you", stored.Body)
}

func TestDispatcher_CheckInResolvesPartner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.devices.Register(ctx, "u1", "device-u1"))

	checkIn, err := h.events.AppendCheckIn(ctx, "u2", services.CheckInInput{Date: "2024-02-14", Mood: models.MoodHappy, Gratitude: "you"})
	require.NoError(t, err)

	res := h.disp.Handle(ctx, h.created(events.KindCheckInCreated, checkIn.ID, "u2"))
	assert.Equal(t, OutcomeDelivered, res.Outcome)

	sent := h.pusher.calls()
	require.Len(t, sent, 1)
	assert.Equal(t, "device-u1", sent[0].Address)
	assert.Equal(t, "Ben", sent[0].Title)
	assert.Equal(t, "sent you a check-in 😊", sent[0].Body)
}

func TestDispatcher_NotPairedIsSilent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.devices.Register(ctx, "solo", "device-solo"))

	// solo has no couple, so there is nobody to notify
	memory := &models.Memory{
		ID: uuid.NewString(), CoupleID: h.coupleID, AuthorID: "solo", Title: "x",
		Date: "2024-01-01", Source: models.MemorySourceManual, CreatedAt: time.Now(),
	}
	require.NoError(t, h.store.Memories().Create(ctx, memory))

	res := h.disp.Handle(ctx, h.created(events.KindMemoryCreated, memory.ID, "solo"))
	assert.Equal(t, Result{Stage: StageTriggered, Outcome: OutcomeNotPaired}, res)
	assert.Empty(t, h.pusher.calls())
}

func TestDispatcher_DuplicateInvocation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.devices.Register(ctx, "u2", "device-u2"))

	msg, err := h.events.AppendMessage(ctx, "u1", services.MessageInput{Body: "hi", Kind: models.MessageKindText})
	require.NoError(t, err)
	evt := h.created(events.KindMessageCreated, msg.ID, "u1")

	assert.Equal(t, OutcomeDelivered, h.disp.Handle(ctx, evt).Outcome)
	assert.Equal(t, OutcomeDuplicate, h.disp.Handle(ctx, evt).Outcome)
	assert.Len(t, h.pusher.calls(), 1)
}

func TestDispatcher_DeliveryFailureKeepsEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.devices.Register(ctx, "u2", "device-u2"))
	h.pusher.err = &DeliveryError{Reason: "BadDeviceToken", Status: 400, Err: ErrInvalidAddress}

	msg, err := h.events.AppendMessage(ctx, "u1", services.MessageInput{Body: "hi", Kind: models.MessageKindText})
	require.NoError(t, err)
	evt := h.created(events.KindMessageCreated, msg.ID, "u1")

	res := h.disp.Handle(ctx, evt)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, models.ErrDeliveryFailed)
	assert.ErrorIs(t, res.Err, ErrInvalidAddress)

	// Not retried: the claim stays taken
	assert.Equal(t, OutcomeDuplicate, h.disp.Handle(ctx, evt).Outcome)
	assert.Len(t, h.pusher.calls(), 1)

	_, err = h.store.Messages().GetByID(ctx, msg.ID)
	assert.NoError(t, err)

	h.reporter.mu.Lock()
	defer h.reporter.mu.Unlock()
	require.Len(t, h.reporter.results, 2)
	assert.Equal(t, OutcomeFailed, h.reporter.results[0].Outcome)
}

func TestDispatcher_PlainPushErrorIsDeliveryFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.devices.Register(ctx, "u2", "device-u2"))
	h.pusher.err = errors.New("connection refused")

	msg, err := h.events.AppendMessage(ctx, "u1", services.MessageInput{Body: "hi", Kind: models.MessageKindText})
	require.NoError(t, err)

	res := h.disp.Handle(ctx, h.created(events.KindMessageCreated, msg.ID, "u1"))
	assert.ErrorIs(t, res.Err, models.ErrDeliveryFailed)
}

func TestDispatcher_RunFromChangeFeed(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.devices.Register(ctx, "u2", "device-u2"))

	feed := h.bus.Subscribe("dispatcher")
	done := make(chan error, 1)
	go func() { done <- h.disp.Run(ctx, feed) }()

	msg, err := h.events.AppendMessage(ctx, "u1", services.MessageInput{Body: "Miss you", Kind: models.MessageKindText})
	require.NoError(t, err)
	require.NoError(t, h.events.MarkMessageRead(ctx, "u2", msg.ID))

	// Events relayed from another instance are that instance's to dispatch
	h.bus.Publish(events.Event{Kind: events.KindMessageCreated, EventID: msg.ID, CoupleID: h.coupleID, AuthorID: "u1", Origin: "node-b"})

	require.Eventually(t, func() bool { return len(h.pusher.calls()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.pusher.calls(), 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
	feed.Close()
}
