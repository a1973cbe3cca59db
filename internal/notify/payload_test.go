package notify

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"marshmallow-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageNotification(t *testing.T) {
	n := MessageNotification("Ana", &models.Message{ID: "m1", CoupleID: "c1", Body: "Miss you", Kind: models.MessageKindText})
	assert.Equal(t, "Ana", n.Title)
	assert.Equal(t, "Miss you", n.Body)
	assert.Equal(t, "m1", n.EventID)
	assert.Equal(t, "marshmallow://messages/m1", n.Data["deep_link"])

	photo := MessageNotification("Ana", &models.Message{ID: "m2", Kind: models.MessageKindPhoto, PhotoURL: "https://cdn/x.jpg"})
	assert.Equal(t, "📷 sent you a photo", photo.Body)

	long := MessageNotification("Ana", &models.Message{ID: "m3", Kind: models.MessageKindText, Body: strings.Repeat("é", 500)})
	assert.Equal(t, maxPreviewLength, utf8.RuneCountInString(long.Body))
	assert.True(t, strings.HasSuffix(long.Body, "…"))
}

func TestCheckInAndMemoryNotification(t *testing.T) {
	c := CheckInNotification("Ben", &models.CheckIn{ID: "k1", CoupleID: "c1", Date: "2024-02-14", Mood: "cozy"})
	assert.Equal(t, "sent you a check-in", c.Body)
	assert.Equal(t, "2024-02-14", c.Data["date"])

	m := MemoryNotification("Ben", &models.Memory{ID: "mem1", CoupleID: "c1", Title: "Paris"})
	assert.Equal(t, "sent you a memory: Paris", m.Body)
	assert.Equal(t, "mem1", m.Data["memory_id"])
}

func TestMemoryClaimer(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryClaimer(time.Minute)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := c.Claim(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = c.Claim(ctx, "e1")
	assert.False(t, ok)

	ok, _ = c.Claim(ctx, "e2")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = c.Claim(ctx, "e1")
	assert.True(t, ok, "expired claims can be taken again")
}

func TestClassify(t *testing.T) {
	err := classify(400, "BadDeviceToken")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.ErrorIs(t, err, models.ErrDeliveryFailed)

	err = classify(410, "")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	err = classify(503, "")
	assert.NotErrorIs(t, err, ErrInvalidAddress)
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "Service Unavailable", de.Reason)
}
