package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marshmallow-backend/internal/events"
	"marshmallow-backend/internal/metrics"
	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Publisher receives one change event per successful write
type Publisher interface {
	Publish(evt events.Event)
}

// EventService is the append-only event store for a couple's messages,
// check-ins and memories.
type EventService struct {
	messages  repository.Messages
	checkIns  repository.CheckIns
	memories  repository.Memories
	presets   repository.Presets
	pairing   *PairingService
	clock     Clock
	publisher Publisher
}

// NewEventService creates a new event service
func NewEventService(store repository.Store, pairing *PairingService, clock Clock, publisher Publisher) *EventService {
	return &EventService{
		messages:  store.Messages(),
		checkIns:  store.CheckIns(),
		memories:  store.Memories(),
		presets:   store.Presets(),
		pairing:   pairing,
		clock:     clock,
		publisher: publisher,
	}
}

// MessageInput is the client-supplied part of a message.
// The recipient may be omitted; it always resolves to the sender's partner.
type MessageInput struct {
	RecipientID string             `json:"recipient_id,omitempty"`
	Body        string             `json:"body"`
	Kind        models.MessageKind `json:"kind"`
	PresetID    string             `json:"preset_id,omitempty"`
	PhotoURL    string             `json:"photo_url,omitempty"`
}

// CheckInInput is the client-supplied part of a check-in
type CheckInInput struct {
	Date      string `json:"date"`
	Mood      string `json:"mood"`
	MoodNote  string `json:"mood_note,omitempty"`
	Gratitude string `json:"gratitude"`
}

// MemoryInput is the client-supplied part of a memory
type MemoryInput struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	PhotoURLs   []string            `json:"photo_urls"`
	VideoURLs   []string            `json:"video_urls"`
	Tags        []string            `json:"tags"`
	Date        string              `json:"date"`
	Source      models.MemorySource `json:"source"`
}

// AppendMessage stores a message from the sender to their partner
func (s *EventService) AppendMessage(ctx context.Context, senderID string, in MessageInput) (*models.Message, error) {
	couple, err := s.pairing.CoupleForUser(ctx, senderID)
	if err != nil {
		return nil, writeError(models.OpSendMessage, err)
	}
	partnerID, err := couple.Partner(senderID)
	if err != nil {
		return nil, err
	}

	switch in.RecipientID {
	case "", partnerID:
	case senderID:
		return nil, fmt.Errorf("%w: sender and recipient must differ", models.ErrInvalidEvent)
	default:
		return nil, fmt.Errorf("%w: recipient is not your partner", models.ErrInvalidEvent)
	}

	msg := &models.Message{
		ID:          uuid.New().String(),
		CoupleID:    couple.ID,
		SenderID:    senderID,
		RecipientID: partnerID,
		Body:        in.Body,
		Kind:        in.Kind,
		PresetID:    in.PresetID,
		PhotoURL:    strings.TrimSpace(in.PhotoURL),
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	if msg.Kind == models.MessageKindPreset {
		preset, err := s.presets.GetByID(ctx, msg.PresetID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown preset %q", models.ErrInvalidEvent, msg.PresetID)
			}
			return nil, models.NewOpError(models.OpSendMessage, err)
		}
		if strings.TrimSpace(msg.Body) == "" {
			msg.Body = presetBody(preset)
		}
	}

	msg.CreatedAt = s.clock.Now()
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, writeError(models.OpSendMessage, err)
	}

	s.appended(events.KindMessageCreated, msg.ID, msg.CoupleID, msg.SenderID)
	return msg, nil
}

// MarkMessageRead sets the read flag on a message addressed to userID.
// Marking an already read message succeeds without a change.
func (s *EventService) MarkMessageRead(ctx context.Context, userID, messageID string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return writeError(models.OpMarkRead, err)
	}

	couple, err := s.pairing.CoupleForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotPaired) {
			return fmt.Errorf("message %w", models.ErrNotFound)
		}
		return writeError(models.OpMarkRead, err)
	}
	// Messages of other couples are indistinguishable from missing ones
	if couple.ID != msg.CoupleID {
		return fmt.Errorf("message %w", models.ErrNotFound)
	}
	if msg.RecipientID != userID {
		return fmt.Errorf("%w: only the recipient can mark a message read", models.ErrValidation)
	}
	if msg.Read {
		return nil
	}

	changed, err := s.messages.MarkRead(ctx, messageID)
	if err != nil {
		return writeError(models.OpMarkRead, err)
	}
	if changed {
		s.publisher.Publish(events.Event{
			Kind:     events.KindMessageRead,
			EventID:  msg.ID,
			CoupleID: msg.CoupleID,
			AuthorID: userID,
		})
	}
	return nil
}

// AppendCheckIn stores the author's check-in for a date.
// A second check-in for the same date fails with models.ErrCheckInExists.
func (s *EventService) AppendCheckIn(ctx context.Context, authorID string, in CheckInInput) (*models.CheckIn, error) {
	couple, err := s.pairing.CoupleForUser(ctx, authorID)
	if err != nil {
		return nil, writeError(models.OpCheckIn, err)
	}

	checkIn := &models.CheckIn{
		ID:        uuid.New().String(),
		CoupleID:  couple.ID,
		AuthorID:  authorID,
		Date:      in.Date,
		Mood:      strings.TrimSpace(in.Mood),
		MoodNote:  strings.TrimSpace(in.MoodNote),
		Gratitude: strings.TrimSpace(in.Gratitude),
	}
	if err := checkIn.Validate(); err != nil {
		return nil, err
	}

	checkIn.CreatedAt = s.clock.Now()
	if err := s.checkIns.Create(ctx, checkIn); err != nil {
		return nil, writeError(models.OpCheckIn, err)
	}

	s.appended(events.KindCheckInCreated, checkIn.ID, checkIn.CoupleID, checkIn.AuthorID)
	return checkIn, nil
}

// AppendMemory stores a memory for the author's couple
func (s *EventService) AppendMemory(ctx context.Context, authorID string, in MemoryInput) (*models.Memory, error) {
	couple, err := s.pairing.CoupleForUser(ctx, authorID)
	if err != nil {
		return nil, writeError(models.OpSaveMemory, err)
	}

	source := in.Source
	if source == "" {
		source = models.MemorySourceManual
	}
	memory := &models.Memory{
		ID:          uuid.New().String(),
		CoupleID:    couple.ID,
		AuthorID:    authorID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		PhotoURLs:   nonNil(in.PhotoURLs),
		VideoURLs:   nonNil(in.VideoURLs),
		Tags:        nonNil(in.Tags),
		Date:        in.Date,
		Source:      source,
	}
	if err := memory.Validate(); err != nil {
		return nil, err
	}

	memory.CreatedAt = s.clock.Now()
	if err := s.memories.Create(ctx, memory); err != nil {
		return nil, writeError(models.OpSaveMemory, err)
	}

	s.appended(events.KindMemoryCreated, memory.ID, memory.CoupleID, memory.AuthorID)
	return memory, nil
}

// ListMessages returns the user's couple messages, newest first
func (s *EventService) ListMessages(ctx context.Context, userID string, limit int) ([]*models.Message, error) {
	couple, err := s.pairing.CoupleForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByCouple(ctx, couple.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	for _, m := range msgs {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = models.PendingTimestamp
		}
	}
	return msgs, nil
}

// ListCheckIns returns the couple's check-ins dated between from and to inclusive
func (s *EventService) ListCheckIns(ctx context.Context, userID, from, to string) ([]*models.CheckIn, error) {
	for _, d := range []string{from, to} {
		if !validDate(d) {
			return nil, fmt.Errorf("%w: dates must be YYYY-MM-DD", models.ErrValidation)
		}
	}
	couple, err := s.pairing.CoupleForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	checkIns, err := s.checkIns.ListByCouple(ctx, couple.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	return checkIns, nil
}

// ListMemories returns the couple's memories, most recent date first
func (s *EventService) ListMemories(ctx context.Context, userID string, limit int) ([]*models.Memory, error) {
	couple, err := s.pairing.CoupleForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	memories, err := s.memories.ListByCouple(ctx, couple.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	return memories, nil
}

// ListPresets returns the preset picks in display order
func (s *EventService) ListPresets(ctx context.Context) ([]*models.PresetPick, error) {
	presets, err := s.presets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	return presets, nil
}

func (s *EventService) appended(kind events.Kind, eventID, coupleID, authorID string) {
	metrics.EventsAppended.WithLabelValues(string(kind)).Inc()
	s.publisher.Publish(events.Event{
		Kind:     kind,
		EventID:  eventID,
		CoupleID: coupleID,
		AuthorID: authorID,
	})
	log.Debug().
		Str("kind", string(kind)).
		Str("event_id", eventID).
		Str("couple_id", coupleID).
		Msg("Event appended")
}

// writeError passes classified errors through and wraps store failures
// with the stable message for op.
func writeError(op string, err error) error {
	for _, known := range []error{
		models.ErrInvalidEvent,
		models.ErrNotFound,
		models.ErrNotPaired,
		models.ErrInvalidCoupleSize,
		models.ErrValidation,
		models.ErrCheckInExists,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	log.Error().Err(err).Str("op", op).Msg("Write failed")
	return models.NewOpError(op, err)
}

func presetBody(p *models.PresetPick) string {
	if p.Emoji == "" {
		return p.Text
	}
	return p.Emoji + " " + p.Text
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func validDate(d string) bool {
	if d == "" {
		return true
	}
	_, err := time.Parse(models.DateLayout, d)
	return err == nil
}
