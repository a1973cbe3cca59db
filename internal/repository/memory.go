package repository

import (
	"context"
	"fmt"
	"time"

	"marshmallow-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const memoryColumns = `id, couple_id, author_id, title, description, photo_urls, video_urls, tags, date, source, created_at`

// MemoryRepository handles database operations for shared memories
type MemoryRepository struct {
	db *pgxpool.Pool
}

// NewMemoryRepository creates a new memory repository
func NewMemoryRepository(db *pgxpool.Pool) *MemoryRepository {
	return &MemoryRepository{db: db}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// Create creates a new memory
func (r *MemoryRepository) Create(ctx context.Context, m *models.Memory) error {
	date, err := parseDate(m.Date)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO memories (` + memoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, ` + orderedCreatedAt("memories", "$2") + `)
		RETURNING created_at
	`
	err = r.db.QueryRow(ctx, query,
		m.ID, m.CoupleID, m.AuthorID, m.Title, m.Description,
		nonNil(m.PhotoURLs), nonNil(m.VideoURLs), nonNil(m.Tags),
		date, string(m.Source),
	).Scan(&m.CreatedAt)
	if err != nil {
		if pgErrorCode(err) == pgCheckViolation {
			return fmt.Errorf("%w: rejected by store constraints", models.ErrInvalidEvent)
		}
		return fmt.Errorf("failed to create memory: %w", err)
	}
	return nil
}

func scanMemory(row pgx.Row) (*models.Memory, error) {
	var (
		m      models.Memory
		date   time.Time
		source string
		ts     pgtype.Timestamptz
	)
	err := row.Scan(
		&m.ID, &m.CoupleID, &m.AuthorID, &m.Title, &m.Description,
		&m.PhotoURLs, &m.VideoURLs, &m.Tags, &date, &source, &ts,
	)
	if err != nil {
		return nil, err
	}
	m.Date = date.Format(models.DateLayout)
	m.Source = models.MemorySource(source)
	m.CreatedAt = createdAt(ts)
	return &m, nil
}

// GetByID retrieves a memory by ID
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE id = $1`
	m, err := scanMemory(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "memory")
	}
	return m, nil
}

// ListByCouple retrieves a couple's memories by associated date, newest first
func (r *MemoryRepository) ListByCouple(ctx context.Context, coupleID string, limit int) ([]*models.Memory, error) {
	query := `
		SELECT ` + memoryColumns + `
		FROM memories
		WHERE couple_id = $1
		ORDER BY date DESC, created_at DESC, id DESC
	`
	args := []any{coupleID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get memories: %w", err)
	}
	defer rows.Close()

	var memories []*models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}
	return memories, nil
}

// DeleteByCouple removes every memory of a couple
func (r *MemoryRepository) DeleteByCouple(ctx context.Context, coupleID string) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM memories WHERE couple_id = $1`, coupleID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memories: %w", err)
	}
	return result.RowsAffected(), nil
}
