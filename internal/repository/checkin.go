package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marshmallow-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const checkInColumns = `id, couple_id, author_id, date, mood, mood_note, gratitude, created_at`

// CheckInRepository handles database operations for daily check-ins
type CheckInRepository struct {
	db *pgxpool.Pool
}

// NewCheckInRepository creates a new check-in repository
func NewCheckInRepository(db *pgxpool.Pool) *CheckInRepository {
	return &CheckInRepository{db: db}
}

// Create stores a check-in; a second one for the same author and date is rejected
func (r *CheckInRepository) Create(ctx context.Context, c *models.CheckIn) error {
	date, err := parseDate(c.Date)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO check_ins (` + checkInColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, ` + orderedCreatedAt("check_ins", "$2") + `)
		RETURNING created_at
	`
	err = r.db.QueryRow(ctx, query,
		c.ID, c.CoupleID, c.AuthorID, date, c.Mood, c.MoodNote, c.Gratitude,
	).Scan(&c.CreatedAt)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return models.ErrCheckInExists
		}
		return fmt.Errorf("failed to create check-in: %w", err)
	}
	return nil
}

func scanCheckIn(row pgx.Row) (*models.CheckIn, error) {
	var (
		c    models.CheckIn
		date time.Time
		ts   pgtype.Timestamptz
	)
	err := row.Scan(&c.ID, &c.CoupleID, &c.AuthorID, &date, &c.Mood, &c.MoodNote, &c.Gratitude, &ts)
	if err != nil {
		return nil, err
	}
	c.Date = date.Format(models.DateLayout)
	c.CreatedAt = createdAt(ts)
	return &c, nil
}

// GetByID retrieves a check-in by ID
func (r *CheckInRepository) GetByID(ctx context.Context, id string) (*models.CheckIn, error) {
	query := `SELECT ` + checkInColumns + ` FROM check_ins WHERE id = $1`
	c, err := scanCheckIn(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "check-in")
	}
	return c, nil
}

// ListByCouple retrieves check-ins in an optional date range, newest date first
func (r *CheckInRepository) ListByCouple(ctx context.Context, coupleID, from, to string) ([]*models.CheckIn, error) {
	where := []string{"couple_id = $1"}
	args := []any{coupleID}
	if from != "" {
		d, err := parseDate(from)
		if err != nil {
			return nil, err
		}
		args = append(args, d)
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if to != "" {
		d, err := parseDate(to)
		if err != nil {
			return nil, err
		}
		args = append(args, d)
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}

	query := `SELECT ` + checkInColumns + ` FROM check_ins WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date DESC, created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get check-ins: %w", err)
	}
	defer rows.Close()

	var checkIns []*models.CheckIn
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		checkIns = append(checkIns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating check-ins: %w", err)
	}
	return checkIns, nil
}

// DeleteByCouple removes every check-in of a couple
func (r *CheckInRepository) DeleteByCouple(ctx context.Context, coupleID string) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM check_ins WHERE couple_id = $1`, coupleID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete check-ins: %w", err)
	}
	return result.RowsAffected(), nil
}
