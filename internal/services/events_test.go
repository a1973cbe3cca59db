package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"marshmallow-backend/internal/events"
	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendMessage_MissYou(t *testing.T) {
	f := newFixture(t)
	couple := f.pair(t)
	feed := f.bus.Subscribe("test")
	defer feed.Close()

	msg, err := f.events.AppendMessage(context.Background(), "u1", MessageInput{Body: "Miss you", Kind: models.MessageKindText})
	require.NoError(t, err)

	assert.Equal(t, couple.ID, msg.CoupleID)
	assert.Equal(t, "u2", msg.RecipientID)
	assert.False(t, msg.Read)
	assert.False(t, msg.CreatedAt.IsZero())

	stored, err := f.store.Messages().GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Miss you", stored.Body)

	evt := nextEvent(t, feed)
	assert.Equal(t, events.KindMessageCreated, evt.Kind)
	assert.Equal(t, msg.ID, evt.EventID)
	assert.Equal(t, couple.ID, evt.CoupleID)
	assert.Equal(t, "u1", evt.AuthorID)
	assert.Equal(t, "test", evt.Origin)
}

func TestAppendMessage_RejectsInvalid(t *testing.T) {
	f := newFixture(t)
	f.pair(t)
	f.signIn(t, "u3", "Cy")
	ctx := context.Background()

	cases := map[string]MessageInput{
		"recipient is sender":     {RecipientID: "u1", Body: "hi", Kind: models.MessageKindText},
		"recipient is a stranger": {RecipientID: "u3", Body: "hi", Kind: models.MessageKindText},
		"empty text":              {Body: "  ", Kind: models.MessageKindText},
		"preset without id":       {Kind: models.MessageKindPreset},
		"unknown preset":          {Kind: models.MessageKindPreset, PresetID: "nope"},
		"photo without url":       {Kind: models.MessageKindPhoto},
		"unknown kind":            {Body: "hi", Kind: "sticker"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.events.AppendMessage(ctx, "u1", in)
			assert.ErrorIs(t, err, models.ErrInvalidEvent)
		})
	}

	msgs, err := f.events.ListMessages(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs, "malformed messages are never persisted")
}

func TestAppendMessage_ExplicitPartnerRecipient(t *testing.T) {
	f := newFixture(t)
	f.pair(t)

	msg, err := f.events.AppendMessage(context.Background(), "u2", MessageInput{RecipientID: "u1", Body: "hey", Kind: models.MessageKindText})
	require.NoError(t, err)
	assert.Equal(t, "u1", msg.RecipientID)
}

func TestAppendMessage_PresetFillsBody(t *testing.T) {
	f := newFixture(t)
	f.pair(t)
	ctx := context.Background()
	require.NoError(t, f.store.Presets().Upsert(ctx, &models.PresetPick{ID: "hug", Text: "Sending a hug", Emoji: "🤗", Category: "love", Order: 1}))

	msg, err := f.events.AppendMessage(ctx, "u1", MessageInput{Kind: models.MessageKindPreset, PresetID: "hug"})
	require.NoError(t, err)
	assert.Equal(t, "🤗 Sending a hug", msg.Body)
}

func TestAppendMessage_Photo(t *testing.T) {
	f := newFixture(t)
	f.pair(t)

	msg, err := f.events.AppendMessage(context.Background(), "u1", MessageInput{Kind: models.MessageKindPhoto, PhotoURL: "https://cdn/x.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.jpg", msg.PhotoURL)
}

func TestAppendMessage_NotPaired(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "solo", "Sol")

	_, err := f.events.AppendMessage(context.Background(), "solo", MessageInput{Body: "hi", Kind: models.MessageKindText})
	assert.ErrorIs(t, err, models.ErrNotPaired)
}

type failingMessages struct {
	repository.Messages
	err error
}

func (m failingMessages) Create(context.Context, *models.Message) error { return m.err }

type storeWithMessages struct {
	repository.Store
	messages repository.Messages
}

func (s storeWithMessages) Messages() repository.Messages { return s.messages }

func TestAppendMessage_StoreFailureHasStableMessage(t *testing.T) {
	f := newFixture(t)
	f.pair(t)
	cause := errors.New("connection reset")
	svc := NewEventService(storeWithMessages{f.store, failingMessages{f.store.Messages(), cause}}, f.pairing, f.clock, f.bus)

	_, err := svc.AppendMessage(context.Background(), "u1", MessageInput{Body: "hi", Kind: models.MessageKindText})
	require.Error(t, err)
	assert.Equal(t, "failed to send message, please try again", err.Error())
	assert.ErrorIs(t, err, cause)

	var opErr *models.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, models.OpSendMessage, opErr.Op)
}

func TestMarkMessageRead_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.pair(t)
	ctx := context.Background()

	msg, err := f.events.AppendMessage(ctx, "u1", MessageInput{Body: "Miss you", Kind: models.MessageKindText})
	require.NoError(t, err)

	feed := f.bus.Subscribe("test")
	defer feed.Close()

	require.NoError(t, f.events.MarkMessageRead(ctx, "u2", msg.ID))
	require.NoError(t, f.events.MarkMessageRead(ctx, "u2", msg.ID))

	stored, err := f.store.Messages().GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read)

	evt := nextEvent(t, feed)
	assert.Equal(t, events.KindMessageRead, evt.Kind)
	assert.Zero(t, feed.Pending(), "second call does not publish")
}

func TestMarkMessageRead_Errors(t *testing.T) {
	f := newFixture(t)
	f.pair(t)
	ctx := context.Background()

	msg, err := f.events.AppendMessage(ctx, "u1", MessageInput{Body: "hi", Kind: models.MessageKindText})
	require.NoError(t, err)

	assert.ErrorIs(t, f.events.MarkMessageRead(ctx, "u2", "missing"), models.ErrNotFound)
	assert.ErrorIs(t, f.events.MarkMessageRead(ctx, "u1", msg.ID), models.ErrValidation)

	f.signIn(t, "u3", "Cy")
	assert.ErrorIs(t, f.events.MarkMessageRead(ctx, "u3", msg.ID), models.ErrNotFound)
}

func TestAppendCheckIn_SameDateRejected(t *testing.T) {
	f := newFixture(t)
	f.pair(t)
	ctx := context.Background()
	in := CheckInInput{Date: "2024-02-14", Mood: models.MoodLoved, Gratitude: "breakfast in bed"}

	first, err := f.events.AppendCheckIn(ctx, "u1", in)
	require.NoError(t, err)

	in.Mood = models.MoodTired
	_, err = f.events.AppendCheckIn(ctx, "u1", in)
	assert.ErrorIs(t, err, models.ErrCheckInExists)

	_, err = f.events.AppendCheckIn(ctx, "u2", in)
	require.NoError(t, err, "partner checks in independently")

	list, err := f.events.ListCheckIns(ctx, "u1", "2024-02-14", "2024-02-14")
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, c := range list {
		if c.AuthorID == "u1" {
			assert.Equal(t, first.ID, c.ID)
			assert.Equal(t, models.MoodLoved, c.Mood, "first check-in is kept")
		}
	}
}

func TestAppendCheckIn_Invalid(t *testing.T) {
	f := newFixture(t)
	f.pair(t)

	_, err := f.events.AppendCheckIn(context.Background(), "u1", CheckInInput{Date: "14/02/2024", Mood: "happy", Gratitude: "x"})
	assert.ErrorIs(t, err, models.ErrInvalidEvent)

	_, err = f.events.AppendCheckIn(context.Background(), "u1", CheckInInput{Date: "2024-02-14", Mood: "happy"})
	assert.ErrorIs(t, err, models.ErrInvalidEvent)

	_, err = f.events.ListCheckIns(context.Background(), "u1", "yesterday", "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAppendMemory(t *testing.T) {
	f := newFixture(t)
	f.pair(t)
	ctx := context.Background()
	feed := f.bus.Subscribe("test")
	defer feed.Close()

	memory, err := f.events.AppendMemory(ctx, "u2", MemoryInput{
		Title:     "First date",
		PhotoURLs: []string{"https://cdn/1.jpg", "https://cdn/2.jpg"},
		Tags:      []string{"paris"},
		Date:      "2023-06-01",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MemorySourceManual, memory.Source)
	assert.Equal(t, []string{"https://cdn/1.jpg", "https://cdn/2.jpg"}, memory.PhotoURLs)
	assert.NotNil(t, memory.VideoURLs)

	evt := nextEvent(t, feed)
	assert.Equal(t, events.KindMemoryCreated, evt.Kind)

	_, err = f.events.AppendMemory(ctx, "u2", MemoryInput{Date: "2023-06-01"})
	assert.ErrorIs(t, err, models.ErrInvalidEvent)

	list, err := f.events.ListMemories(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, memory.ID, list[0].ID)
}

func TestListMessages_NewestFirstUnderConcurrentWrites(t *testing.T) {
	f := newFixture(t)
	f.pair(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, sender := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := f.events.AppendMessage(ctx, sender, MessageInput{Body: fmt.Sprintf("%s-%d", sender, i), Kind: models.MessageKindText})
				assert.NoError(t, err)
			}
		}(sender)
	}
	wg.Wait()

	msgs, err := f.events.ListMessages(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 40)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i-1].CreatedAt.After(msgs[i].CreatedAt), "message %d is not older than %d", i, i-1)
	}
}

func TestAppend_OrderHoldsAcrossSkewedInstances(t *testing.T) {
	f := newFixture(t)
	f.pair(t)
	ctx := context.Background()

	ahead := &MonotonicClock{now: func() time.Time { return time.Now().Add(time.Hour) }}
	behind := &MonotonicClock{now: func() time.Time { return time.Now().Add(-time.Hour) }}
	instanceA := NewEventService(f.store, NewPairingService(f.store.Users(), f.store.Couples(), ahead), ahead, f.bus)
	instanceB := NewEventService(f.store, NewPairingService(f.store.Users(), f.store.Couples(), behind), behind, f.bus)

	first, err := instanceA.AppendMessage(ctx, "u1", MessageInput{Body: "first", Kind: models.MessageKindText})
	require.NoError(t, err)
	second, err := instanceB.AppendMessage(ctx, "u2", MessageInput{Body: "second", Kind: models.MessageKindText})
	require.NoError(t, err)
	assert.True(t, second.CreatedAt.After(first.CreatedAt))

	third, err := instanceA.AppendMessage(ctx, "u1", MessageInput{Body: "third", Kind: models.MessageKindText})
	require.NoError(t, err)

	msgs, err := f.events.ListMessages(ctx, "u2", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}
