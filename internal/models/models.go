package models

import "time"

// PendingTimestamp stands in for a creation time the store has not assigned yet.
var PendingTimestamp = time.Unix(0, 0).UTC()

// DateLayout is the calendar date format used by check-ins and memories
const DateLayout = "2006-01-02"

// User represents a signed-in user
type User struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"display_name"`
	Code        string       `json:"code"`
	CoupleID    *string      `json:"couple_id,omitempty"`
	AvatarURL   *string      `json:"avatar_url,omitempty"`
	Settings    UserSettings `json:"settings"`
	CreatedAt   time.Time    `json:"created_at"`
}

// UserSettings holds per-user preferences
type UserSettings struct {
	MorningReminder string `json:"morning_reminder"`
	EveningReminder string `json:"evening_reminder"`
	WifiOnlySync    bool   `json:"wifi_only_sync"`
}

// DefaultSettings returns the settings a new user starts with
func DefaultSettings() UserSettings {
	return UserSettings{
		MorningReminder: "09:00",
		EveningReminder: "21:00",
	}
}

// Couple represents a permanent pairing of exactly two users
type Couple struct {
	ID           string            `json:"id"`
	Members      []string          `json:"members"`
	DisplayNames map[string]string `json:"display_names"`
	CreatedAt    time.Time         `json:"created_at"`
}

// HasMember reports whether userID is one of the couple's members
func (c *Couple) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Partner returns the member that is not userID.
func (c *Couple) Partner(userID string) (string, error) {
	if len(c.Members) != 2 {
		return "", ErrInvalidCoupleSize
	}
	switch userID {
	case c.Members[0]:
		return c.Members[1], nil
	case c.Members[1]:
		return c.Members[0], nil
	}
	return "", ErrNotFound
}

// DisplayName returns the name a member chose, or a neutral fallback
func (c *Couple) DisplayName(userID string) string {
	if name := c.DisplayNames[userID]; name != "" {
		return name
	}
	return "Your partner"
}

// MessageKind discriminates message payloads
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindPreset MessageKind = "preset"
	MessageKindPhoto  MessageKind = "photo"
)

// Message is a single affection signal ("marshmallow") sent to the partner
type Message struct {
	ID          string      `json:"id"`
	CoupleID    string      `json:"couple_id"`
	SenderID    string      `json:"sender_id"`
	RecipientID string      `json:"recipient_id"`
	Body        string      `json:"body"`
	Kind        MessageKind `json:"kind"`
	PresetID    string      `json:"preset_id,omitempty"`
	PhotoURL    string      `json:"photo_url,omitempty"`
	Read        bool        `json:"read"`
	CreatedAt   time.Time   `json:"created_at"`
}

// MessageSnapshot is a full, newest-first view of a couple's messages
type MessageSnapshot struct {
	CoupleID string    `json:"couple_id"`
	Messages []Message `json:"messages"`
	At       time.Time `json:"at"`
}

// Mood tags offered by the client. Free-form moods are also accepted.
const (
	MoodHappy    = "happy"
	MoodLoved    = "loved"
	MoodCalm     = "calm"
	MoodExcited  = "excited"
	MoodGrateful = "grateful"
	MoodTired    = "tired"
	MoodSad      = "sad"
	MoodAnxious  = "anxious"
)

var knownMoods = map[string]string{
	MoodHappy:    "😊",
	MoodLoved:    "🥰",
	MoodCalm:     "😌",
	MoodExcited:  "🤩",
	MoodGrateful: "🙏",
	MoodTired:    "😴",
	MoodSad:      "😢",
	MoodAnxious:  "😟",
}

// MoodEmoji returns the emoji for a known mood tag
func MoodEmoji(mood string) (string, bool) {
	e, ok := knownMoods[mood]
	return e, ok
}

// CheckIn is a once-per-day-per-author mood and gratitude record
type CheckIn struct {
	ID        string    `json:"id"`
	CoupleID  string    `json:"couple_id"`
	AuthorID  string    `json:"author_id"`
	Date      string    `json:"date"`
	Mood      string    `json:"mood"`
	MoodNote  string    `json:"mood_note,omitempty"`
	Gratitude string    `json:"gratitude"`
	CreatedAt time.Time `json:"created_at"`
}

// MemorySource records where a memory came from
type MemorySource string

const (
	MemorySourceManual    MemorySource = "manual"
	MemorySourceSuggested MemorySource = "suggested"
	MemorySourceDevice    MemorySource = "device_import"
)

// Memory is a titled, dated record with attached media
type Memory struct {
	ID          string       `json:"id"`
	CoupleID    string       `json:"couple_id"`
	AuthorID    string       `json:"author_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	PhotoURLs   []string     `json:"photo_urls"`
	VideoURLs   []string     `json:"video_urls"`
	Tags        []string     `json:"tags"`
	Date        string       `json:"date"`
	Source      MemorySource `json:"source"`
	CreatedAt   time.Time    `json:"created_at"`
}

// PresetPick is an immutable message template
type PresetPick struct {
	ID       string `json:"id" yaml:"id"`
	Text     string `json:"text" yaml:"text"`
	Emoji    string `json:"emoji" yaml:"emoji"`
	Category string `json:"category" yaml:"category"`
	Order    int    `json:"order" yaml:"order"`
}

// DeviceToken maps a user to their most recently registered push address
type DeviceToken struct {
	UserID    string    `json:"user_id"`
	Address   string    `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}
