package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageValidate(t *testing.T) {
	base := func() Message {
		return Message{CoupleID: "c1", SenderID: "u1", RecipientID: "u2", Body: "Miss you", Kind: MessageKindText}
	}

	tests := []struct {
		name    string
		mutate  func(m *Message)
		wantErr bool
	}{
		{"text ok", func(m *Message) {}, false},
		{"empty text", func(m *Message) { m.Body = "  " }, true},
		{"self message", func(m *Message) { m.RecipientID = "u1" }, true},
		{"preset without id", func(m *Message) { m.Kind = MessageKindPreset }, true},
		{"preset ok", func(m *Message) { m.Kind = MessageKindPreset; m.PresetID = "p1" }, false},
		{"photo without url", func(m *Message) { m.Kind = MessageKindPhoto }, true},
		{"photo ok", func(m *Message) { m.Kind = MessageKindPhoto; m.PhotoURL = "https://cdn/x.jpg"; m.Body = "" }, false},
		{"text with photo", func(m *Message) { m.PhotoURL = "https://cdn/x.jpg" }, true},
		{"unknown kind", func(m *Message) { m.Kind = "video" }, true},
		{"too long", func(m *Message) { m.Body = strings.Repeat("a", maxBodyLength+1) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidEvent))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCheckInValidate(t *testing.T) {
	c := CheckIn{CoupleID: "c1", AuthorID: "u1", Date: "2026-02-14", Mood: MoodLoved, Gratitude: "coffee in bed"}
	require.NoError(t, c.Validate())

	c.Date = "14/02/2026"
	assert.ErrorIs(t, c.Validate(), ErrInvalidEvent)

	c.Date = "2026-02-14"
	c.Gratitude = ""
	assert.ErrorIs(t, c.Validate(), ErrInvalidEvent)

	c.Gratitude = "sunsets"
	c.Mood = "a little homesick"
	assert.NoError(t, c.Validate(), "free-form moods are allowed")
}

func TestMemoryValidate(t *testing.T) {
	m := Memory{
		CoupleID:  "c1",
		AuthorID:  "u1",
		Title:     "First trip",
		Date:      "2025-07-01",
		Source:    MemorySourceManual,
		PhotoURLs: []string{"https://cdn/a.jpg"},
		Tags:      []string{"travel"},
	}
	require.NoError(t, m.Validate())

	m.Source = "scraped"
	assert.ErrorIs(t, m.Validate(), ErrInvalidEvent)

	m.Source = MemorySourceSuggested
	m.PhotoURLs = []string{""}
	assert.ErrorIs(t, m.Validate(), ErrInvalidEvent)
}

func TestCouplePartner(t *testing.T) {
	c := &Couple{ID: "c1", Members: []string{"u1", "u2"}}

	p, err := c.Partner("u1")
	require.NoError(t, err)
	assert.Equal(t, "u2", p)

	_, err = c.Partner("u3")
	assert.ErrorIs(t, err, ErrNotFound)

	c.Members = []string{"u1", "u2", "u3"}
	_, err = c.Partner("u1")
	assert.ErrorIs(t, err, ErrInvalidCoupleSize)
}

func TestOpErrorKeepsCause(t *testing.T) {
	err := NewOpError(OpSendMessage, ErrNotFound)
	assert.Equal(t, "failed to send message, please try again", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)

	var op *OpError
	require.ErrorAs(t, error(err), &op)
	assert.Equal(t, OpSendMessage, op.Op)
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())
	assert.ErrorIs(t, UserSettings{MorningReminder: "9am", EveningReminder: "21:00"}.Validate(), ErrValidation)
}
