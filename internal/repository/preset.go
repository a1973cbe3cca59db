package repository

import (
	"context"
	"fmt"

	"marshmallow-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PresetRepository handles the preset pick reference data
type PresetRepository struct {
	db *pgxpool.Pool
}

// NewPresetRepository creates a new preset repository
func NewPresetRepository(db *pgxpool.Pool) *PresetRepository {
	return &PresetRepository{db: db}
}

// Upsert creates or replaces a preset pick
func (r *PresetRepository) Upsert(ctx context.Context, p *models.PresetPick) error {
	query := `
		INSERT INTO preset_picks (id, text, emoji, category, display_order)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			emoji = EXCLUDED.emoji,
			category = EXCLUDED.category,
			display_order = EXCLUDED.display_order
	`
	_, err := r.db.Exec(ctx, query, p.ID, p.Text, p.Emoji, p.Category, p.Order)
	if err != nil {
		return fmt.Errorf("failed to upsert preset: %w", err)
	}
	return nil
}

// GetByID retrieves a preset pick by ID
func (r *PresetRepository) GetByID(ctx context.Context, id string) (*models.PresetPick, error) {
	query := `SELECT id, text, emoji, category, display_order FROM preset_picks WHERE id = $1`
	var p models.PresetPick
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Text, &p.Emoji, &p.Category, &p.Order)
	if err != nil {
		return nil, notFound(err, "preset")
	}
	return &p, nil
}

// List retrieves all preset picks in display order
func (r *PresetRepository) List(ctx context.Context) ([]*models.PresetPick, error) {
	query := `SELECT id, text, emoji, category, display_order FROM preset_picks ORDER BY display_order, id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get presets: %w", err)
	}
	defer rows.Close()

	var presets []*models.PresetPick
	for rows.Next() {
		var p models.PresetPick
		if err := rows.Scan(&p.ID, &p.Text, &p.Emoji, &p.Category, &p.Order); err != nil {
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		presets = append(presets, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating presets: %w", err)
	}
	return presets, nil
}
