package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxBodyLength      = 1000
	maxMoodLength      = 40
	maxNoteLength      = 500
	maxGratitudeLength = 1000
	maxTitleLength     = 120
	maxDescription     = 4000
	maxAttachments     = 20
	maxTags            = 20
	maxTagLength       = 40
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEvent, fmt.Sprintf(format, args...))
}

// Validate checks the discriminated payload shape of a message
func (m *Message) Validate() error {
	if m.CoupleID == "" {
		return invalid("couple_id is required")
	}
	if m.SenderID == "" || m.RecipientID == "" {
		return invalid("sender and recipient are required")
	}
	if m.SenderID == m.RecipientID {
		return invalid("sender and recipient must differ")
	}
	if utf8.RuneCountInString(m.Body) > maxBodyLength {
		return invalid("body exceeds %d characters", maxBodyLength)
	}

	switch m.Kind {
	case MessageKindText:
		if strings.TrimSpace(m.Body) == "" {
			return invalid("text message requires a body")
		}
		if m.PresetID != "" || m.PhotoURL != "" {
			return invalid("text message cannot carry a preset or photo")
		}
	case MessageKindPreset:
		if m.PresetID == "" {
			return invalid("preset message requires preset_id")
		}
		if m.PhotoURL != "" {
			return invalid("preset message cannot carry a photo")
		}
	case MessageKindPhoto:
		if m.PhotoURL == "" {
			return invalid("photo message requires photo_url")
		}
		if m.PresetID != "" {
			return invalid("photo message cannot carry a preset")
		}
	default:
		return invalid("unknown message kind %q", m.Kind)
	}
	return nil
}

// Validate checks a check-in before it is persisted
func (c *CheckIn) Validate() error {
	if c.CoupleID == "" || c.AuthorID == "" {
		return invalid("couple and author are required")
	}
	if _, err := time.Parse(DateLayout, c.Date); err != nil {
		return invalid("date must be YYYY-MM-DD")
	}
	mood := strings.TrimSpace(c.Mood)
	if mood == "" {
		return invalid("mood is required")
	}
	if utf8.RuneCountInString(mood) > maxMoodLength {
		return invalid("mood exceeds %d characters", maxMoodLength)
	}
	if utf8.RuneCountInString(c.MoodNote) > maxNoteLength {
		return invalid("mood note exceeds %d characters", maxNoteLength)
	}
	if strings.TrimSpace(c.Gratitude) == "" {
		return invalid("gratitude is required")
	}
	if utf8.RuneCountInString(c.Gratitude) > maxGratitudeLength {
		return invalid("gratitude exceeds %d characters", maxGratitudeLength)
	}
	return nil
}

// Validate checks a memory before it is persisted
func (m *Memory) Validate() error {
	if m.CoupleID == "" || m.AuthorID == "" {
		return invalid("couple and author are required")
	}
	title := strings.TrimSpace(m.Title)
	if title == "" {
		return invalid("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return invalid("title exceeds %d characters", maxTitleLength)
	}
	if utf8.RuneCountInString(m.Description) > maxDescription {
		return invalid("description exceeds %d characters", maxDescription)
	}
	if _, err := time.Parse(DateLayout, m.Date); err != nil {
		return invalid("date must be YYYY-MM-DD")
	}
	switch m.Source {
	case MemorySourceManual, MemorySourceSuggested, MemorySourceDevice:
	default:
		return invalid("unknown memory source %q", m.Source)
	}
	if len(m.PhotoURLs)+len(m.VideoURLs) > maxAttachments {
		return invalid("at most %d attachments allowed", maxAttachments)
	}
	for _, u := range append(append([]string{}, m.PhotoURLs...), m.VideoURLs...) {
		if strings.TrimSpace(u) == "" {
			return invalid("attachment references cannot be empty")
		}
	}
	if len(m.Tags) > maxTags {
		return invalid("at most %d tags allowed", maxTags)
	}
	for _, t := range m.Tags {
		if t == "" || utf8.RuneCountInString(t) > maxTagLength {
			return invalid("tags must be 1-%d characters", maxTagLength)
		}
	}
	return nil
}

// Validate checks reminder times are HH:MM
func (s UserSettings) Validate() error {
	for _, v := range []string{s.MorningReminder, s.EveningReminder} {
		if _, err := time.Parse("15:04", v); err != nil {
			return fmt.Errorf("%w: reminder time %q must be HH:MM", ErrValidation, v)
		}
	}
	return nil
}
