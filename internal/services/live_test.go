package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshotRecorder struct {
	mu        sync.Mutex
	snapshots []models.MessageSnapshot
	errs      []error
}

func (r *snapshotRecorder) onUpdate(s models.MessageSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *snapshotRecorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *snapshotRecorder) last() (models.MessageSnapshot, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return models.MessageSnapshot{}, 0
	}
	return r.snapshots[len(r.snapshots)-1], len(r.snapshots)
}

func (r *snapshotRecorder) errCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func TestLiveHub_SnapshotAfterAppend(t *testing.T) {
	f := newFixture(t)
	couple := f.pair(t)
	hub := NewLiveHub(f.store.Messages(), f.store.Couples(), f.clock, 0)
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := f.bus.Subscribe("live")
	defer feed.Close()
	go hub.Run(ctx, feed)

	rec := &snapshotRecorder{}
	unsubscribe, err := hub.Subscribe(ctx, couple.ID, rec.onUpdate, rec.onError)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool { _, n := rec.last(); return n == 1 }, time.Second, 5*time.Millisecond)
	initial, _ := rec.last()
	assert.Empty(t, initial.Messages)
	assert.Equal(t, couple.ID, initial.CoupleID)

	_, err = f.events.AppendMessage(ctx, "u2", MessageInput{Body: "first", Kind: models.MessageKindText})
	require.NoError(t, err)
	msg, err := f.events.AppendMessage(ctx, "u1", MessageInput{Body: "Miss you", Kind: models.MessageKindText})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, _ := rec.last()
		return len(s.Messages) == 2
	}, time.Second, 5*time.Millisecond)

	snapshot, _ := rec.last()
	assert.Equal(t, msg.ID, snapshot.Messages[0].ID)
	assert.Equal(t, "Miss you", snapshot.Messages[0].Body)
	assert.Equal(t, "first", snapshot.Messages[1].Body)
	assert.Zero(t, rec.errCount())
}

func TestLiveHub_IndependentSubscribers(t *testing.T) {
	f := newFixture(t)
	couple := f.pair(t)
	hub := NewLiveHub(f.store.Messages(), f.store.Couples(), f.clock, 0)
	defer hub.Close()
	ctx := context.Background()

	_, err := f.events.AppendMessage(ctx, "u1", MessageInput{Body: "hello", Kind: models.MessageKindText})
	require.NoError(t, err)

	a, b := &snapshotRecorder{}, &snapshotRecorder{}
	unsubA, err := hub.Subscribe(ctx, couple.ID, func(s models.MessageSnapshot) {
		s.Messages[0].Body = "mutated"
		a.onUpdate(s)
	}, a.onError)
	require.NoError(t, err)
	defer unsubA()
	unsubB, err := hub.Subscribe(ctx, couple.ID, b.onUpdate, b.onError)
	require.NoError(t, err)
	defer unsubB()
	assert.Equal(t, 2, hub.Subscribers(couple.ID))

	require.Eventually(t, func() bool {
		_, na := a.last()
		_, nb := b.last()
		return na == 1 && nb == 1
	}, time.Second, 5*time.Millisecond)

	hub.Notify(couple.ID)
	require.Eventually(t, func() bool { _, nb := b.last(); return nb == 2 }, time.Second, 5*time.Millisecond)

	snapshot, _ := b.last()
	assert.Equal(t, "hello", snapshot.Messages[0].Body)
}

func TestLiveHub_SetupFailures(t *testing.T) {
	f := newFixture(t)
	couple := f.pair(t)
	hub := NewLiveHub(f.store.Messages(), f.store.Couples(), f.clock, 0)
	ctx := context.Background()
	noop := func(models.MessageSnapshot) {}

	_, err := hub.Subscribe(ctx, "not-a-uuid", noop, nil)
	assert.ErrorIs(t, err, models.ErrSubscriptionSetupFailed)

	_, err = hub.Subscribe(ctx, uuid.NewString(), noop, nil)
	assert.ErrorIs(t, err, models.ErrSubscriptionSetupFailed)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = hub.Subscribe(ctx, couple.ID, nil, nil)
	assert.ErrorIs(t, err, models.ErrSubscriptionSetupFailed)

	assert.Zero(t, hub.Subscribers(couple.ID))
}

type flakyMessages struct {
	repository.Messages
	calls atomic.Int32
}

func (m *flakyMessages) ListByCouple(ctx context.Context, coupleID string, limit int) ([]*models.Message, error) {
	if m.calls.Add(1) > 1 {
		return nil, errors.New("store unavailable")
	}
	return m.Messages.ListByCouple(ctx, coupleID, limit)
}

func TestLiveHub_ErrorDeliveredOnce(t *testing.T) {
	f := newFixture(t)
	couple := f.pair(t)
	msgs := &flakyMessages{Messages: f.store.Messages()}
	hub := NewLiveHub(msgs, f.store.Couples(), f.clock, 0)

	rec := &snapshotRecorder{}
	unsubscribe, err := hub.Subscribe(context.Background(), couple.ID, rec.onUpdate, rec.onError)
	require.NoError(t, err)
	require.Eventually(t, func() bool { _, n := rec.last(); return n == 1 }, time.Second, 5*time.Millisecond)

	hub.Notify(couple.ID)
	require.Eventually(t, func() bool { return rec.errCount() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		hub.Notify(couple.ID)
	}
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, rec.errCount())
	_, n := rec.last()
	assert.Equal(t, 1, n)
	assert.Zero(t, hub.Subscribers(couple.ID))

	assert.NotPanics(t, func() {
		unsubscribe()
		unsubscribe()
		unsubscribe()
	})
}

type pendingMessages struct {
	repository.Messages
	list []*models.Message
}

func (m pendingMessages) ListByCouple(context.Context, string, int) ([]*models.Message, error) {
	return m.list, nil
}

func TestLiveHub_NormalizesPendingTimestamps(t *testing.T) {
	f := newFixture(t)
	couple := f.pair(t)
	now := time.Now().UTC()
	msgs := pendingMessages{list: []*models.Message{
		{ID: "pending", CoupleID: couple.ID, Body: "in flight"},
		{ID: "older", CoupleID: couple.ID, CreatedAt: now.Add(-time.Minute)},
		{ID: "newer", CoupleID: couple.ID, CreatedAt: now},
	}}
	hub := NewLiveHub(msgs, f.store.Couples(), f.clock, 0)

	rec := &snapshotRecorder{}
	unsubscribe, err := hub.Subscribe(context.Background(), couple.ID, rec.onUpdate, rec.onError)
	require.NoError(t, err)
	defer unsubscribe()
	require.Eventually(t, func() bool { _, n := rec.last(); return n == 1 }, time.Second, 5*time.Millisecond)

	snapshot, _ := rec.last()
	require.Len(t, snapshot.Messages, 3)
	assert.Equal(t, "newer", snapshot.Messages[0].ID)
	assert.Equal(t, "older", snapshot.Messages[1].ID)
	assert.Equal(t, "pending", snapshot.Messages[2].ID)
	assert.True(t, snapshot.Messages[2].CreatedAt.Equal(models.PendingTimestamp))
}

func TestLiveHub_UnsubscribeStopsUpdates(t *testing.T) {
	f := newFixture(t)
	couple := f.pair(t)
	hub := NewLiveHub(f.store.Messages(), f.store.Couples(), f.clock, 0)

	rec := &snapshotRecorder{}
	unsubscribe, err := hub.Subscribe(context.Background(), couple.ID, rec.onUpdate, rec.onError)
	require.NoError(t, err)
	require.Eventually(t, func() bool { _, n := rec.last(); return n == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	hub.Notify(couple.ID)
	time.Sleep(20 * time.Millisecond)

	_, n := rec.last()
	assert.Equal(t, 1, n)
	assert.Zero(t, rec.errCount())
	assert.Zero(t, hub.Subscribers(couple.ID))
}
