package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"marshmallow-backend/internal/models"
)

const maxPreviewLength = 180

// Notification is what the push provider delivers to one device
type Notification struct {
	Address string
	EventID string
	Title   string
	Body    string
	Data    map[string]string
}

// MessageNotification shows the message text from the sender
func MessageNotification(senderName string, msg *models.Message) Notification {
	body := preview(msg.Body)
	if msg.Kind == models.MessageKindPhoto && body == "" {
		body = "📷 sent you a photo"
	}
	return Notification{
		EventID: msg.ID,
		Title:   senderName,
		Body:    body,
		Data: map[string]string{
			"type":       "message",
			"message_id": msg.ID,
			"couple_id":  msg.CoupleID,
			"deep_link":  "marshmallow://messages/" + msg.ID,
		},
	}
}

// CheckInNotification summarizes a partner's daily check-in
func CheckInNotification(senderName string, c *models.CheckIn) Notification {
	body := "sent you a check-in"
	if emoji, ok := models.MoodEmoji(c.Mood); ok {
		body = fmt.Sprintf("sent you a check-in %s", emoji)
	}
	return Notification{
		EventID: c.ID,
		Title:   senderName,
		Body:    body,
		Data: map[string]string{
			"type":       "checkin",
			"checkin_id": c.ID,
			"couple_id":  c.CoupleID,
			"date":       c.Date,
			"deep_link":  "marshmallow://checkins/" + c.Date,
		},
	}
}

// MemoryNotification summarizes a newly shared memory
func MemoryNotification(senderName string, m *models.Memory) Notification {
	body := "sent you a memory"
	if title := preview(m.Title); title != "" {
		body = fmt.Sprintf("sent you a memory: %s", title)
	}
	return Notification{
		EventID: m.ID,
		Title:   senderName,
		Body:    body,
		Data: map[string]string{
			"type":      "memory",
			"memory_id": m.ID,
			"couple_id": m.CoupleID,
			"deep_link": "marshmallow://memories/" + m.ID,
		},
	}
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxPreviewLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxPreviewLength-1]) + "…"
}
