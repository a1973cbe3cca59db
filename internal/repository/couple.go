package repository

import (
	"context"
	"errors"
	"fmt"

	"marshmallow-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CoupleRepository handles database operations for couples
type CoupleRepository struct {
	db *pgxpool.Pool
}

// NewCoupleRepository creates a new couple repository
func NewCoupleRepository(db *pgxpool.Pool) *CoupleRepository {
	return &CoupleRepository{db: db}
}

// Create creates a new couple
func (r *CoupleRepository) Create(ctx context.Context, couple *models.Couple) error {
	if len(couple.Members) != 2 || couple.Members[0] == couple.Members[1] {
		return models.ErrInvalidCoupleSize
	}
	names := couple.DisplayNames
	if names == nil {
		names = map[string]string{}
	}
	query := `
		INSERT INTO couples (id, members, display_names, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, couple.ID, couple.Members, names, couple.CreatedAt)
	if err != nil {
		if pgErrorCode(err) == pgCheckViolation {
			return models.ErrInvalidCoupleSize
		}
		return fmt.Errorf("failed to create couple: %w", err)
	}
	return nil
}

type memberRow struct {
	ID       string
	CoupleID *string
}

// CreateForCreator creates the couple and attaches the creator in one
// transaction. Both member rows are locked in id order first, so concurrent
// creations touching either member serialize.
func (r *CoupleRepository) CreateForCreator(ctx context.Context, couple *models.Couple, creatorID string) error {
	if len(couple.Members) != 2 || couple.Members[0] == couple.Members[1] {
		return models.ErrInvalidCoupleSize
	}
	if !couple.HasMember(creatorID) {
		return fmt.Errorf("%w: creator %s is not a member", models.ErrValidation, creatorID)
	}
	names := couple.DisplayNames
	if names == nil {
		names = map[string]string{}
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		rows, _ := tx.Query(ctx, `
			SELECT id, couple_id FROM users
			WHERE id = ANY($1)
			ORDER BY id
			FOR UPDATE
		`, couple.Members)
		members, err := pgx.CollectRows(rows, pgx.RowToStructByPos[memberRow])
		if err != nil {
			return fmt.Errorf("failed to lock couple members: %w", err)
		}
		if len(members) != 2 {
			return fmt.Errorf("couple member %w", models.ErrNotFound)
		}
		for _, m := range members {
			if m.CoupleID != nil {
				return models.ErrAlreadyPaired
			}
		}

		var listed bool
		err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM couples WHERE members && $1)`, couple.Members).Scan(&listed)
		if err != nil {
			return fmt.Errorf("failed to check pending couples: %w", err)
		}
		if listed {
			return models.ErrAlreadyPaired
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO couples (id, members, display_names, created_at)
			VALUES ($1, $2, $3, $4)
		`, couple.ID, couple.Members, names, couple.CreatedAt)
		if err != nil {
			if pgErrorCode(err) == pgCheckViolation {
				return models.ErrInvalidCoupleSize
			}
			return fmt.Errorf("failed to create couple: %w", err)
		}

		result, err := tx.Exec(ctx, `UPDATE users SET couple_id = $2 WHERE id = $1 AND couple_id IS NULL`, creatorID, couple.ID)
		if err != nil {
			return fmt.Errorf("failed to set creator couple id: %w", err)
		}
		if result.RowsAffected() != 1 {
			return models.ErrAlreadyPaired
		}
		return nil
	})
}

func scanCouple(row pgx.Row) (*models.Couple, error) {
	var couple models.Couple
	if err := row.Scan(&couple.ID, &couple.Members, &couple.DisplayNames, &couple.CreatedAt); err != nil {
		return nil, err
	}
	return &couple, nil
}

// GetByID retrieves a couple by ID
func (r *CoupleRepository) GetByID(ctx context.Context, id string) (*models.Couple, error) {
	query := `
		SELECT id, members, display_names, created_at
		FROM couples
		WHERE id = $1
	`
	couple, err := scanCouple(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "couple")
	}
	return couple, nil
}

// FindByMember retrieves the couple listing the user as a member
func (r *CoupleRepository) FindByMember(ctx context.Context, userID string) (*models.Couple, error) {
	query := `
		SELECT id, members, display_names, created_at
		FROM couples
		WHERE $1 = ANY(members)
		ORDER BY created_at DESC
		LIMIT 1
	`
	couple, err := scanCouple(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, notFound(err, "couple")
	}
	return couple, nil
}

// AddMember appends a member; the members check constraint rejects a third
func (r *CoupleRepository) AddMember(ctx context.Context, coupleID, userID string) error {
	query := `
		UPDATE couples SET members = array_append(members, $2)
		WHERE id = $1 AND NOT ($2 = ANY(members))
	`
	result, err := r.db.Exec(ctx, query, coupleID, userID)
	if err != nil {
		if pgErrorCode(err) == pgCheckViolation {
			return models.ErrCoupleFull
		}
		return fmt.Errorf("failed to add couple member: %w", err)
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	var isMember bool
	err = r.db.QueryRow(ctx, `SELECT $2 = ANY(members) FROM couples WHERE id = $1`, coupleID, userID).Scan(&isMember)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("couple %w", models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check couple membership: %w", err)
	}
	return nil
}
