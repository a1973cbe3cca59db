package repository

import (
	"context"
	"errors"
	"fmt"

	"marshmallow-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageColumns = `id, couple_id, sender_id, recipient_id, body, kind, preset_id, photo_url, read, created_at`

// MessageRepository handles database operations for messages
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create creates a new message
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, ` + orderedCreatedAt("messages", "$2") + `)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		msg.ID, msg.CoupleID, msg.SenderID, msg.RecipientID, msg.Body,
		string(msg.Kind), msg.PresetID, msg.PhotoURL, msg.Read,
	).Scan(&msg.CreatedAt)
	if err != nil {
		if pgErrorCode(err) == pgCheckViolation {
			return fmt.Errorf("%w: rejected by store constraints", models.ErrInvalidEvent)
		}
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		msg  models.Message
		kind string
		ts   pgtype.Timestamptz
	)
	err := row.Scan(
		&msg.ID, &msg.CoupleID, &msg.SenderID, &msg.RecipientID, &msg.Body,
		&kind, &msg.PresetID, &msg.PhotoURL, &msg.Read, &ts,
	)
	if err != nil {
		return nil, err
	}
	msg.Kind = models.MessageKind(kind)
	msg.CreatedAt = createdAt(ts)
	return &msg, nil
}

// GetByID retrieves a message by ID
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	msg, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "message")
	}
	return msg, nil
}

// ListByCouple retrieves a couple's messages, newest first
func (r *MessageRepository) ListByCouple(ctx context.Context, coupleID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE couple_id = $1
		ORDER BY created_at DESC NULLS LAST, id DESC
	`
	args := []any{coupleID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// MarkRead sets the read flag and reports whether it changed
func (r *MessageRepository) MarkRead(ctx context.Context, id string) (bool, error) {
	result, err := r.db.Exec(ctx, `UPDATE messages SET read = TRUE WHERE id = $1 AND read = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark message read: %w", err)
	}
	if result.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	err = r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, id).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("message %w", models.ErrNotFound)
	}
	return false, nil
}

// DeleteByCouple removes every message of a couple
func (r *MessageRepository) DeleteByCouple(ctx context.Context, coupleID string) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM messages WHERE couple_id = $1`, coupleID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return result.RowsAffected(), nil
}
