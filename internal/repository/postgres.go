package repository

import (
	"errors"
	"fmt"
	"time"

	"marshmallow-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	users    *UserRepository
	couples  *CoupleRepository
	messages *MessageRepository
	checkIns *CheckInRepository
	memories *MemoryRepository
	presets  *PresetRepository
	devices  *DeviceTokenRepository
}

// NewPostgresStore creates a store backed by db
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		users:    NewUserRepository(db),
		couples:  NewCoupleRepository(db),
		messages: NewMessageRepository(db),
		checkIns: NewCheckInRepository(db),
		memories: NewMemoryRepository(db),
		presets:  NewPresetRepository(db),
		devices:  NewDeviceTokenRepository(db),
	}
}

func (s *PostgresStore) Users() Users               { return s.users }
func (s *PostgresStore) Couples() Couples           { return s.couples }
func (s *PostgresStore) Messages() Messages         { return s.messages }
func (s *PostgresStore) CheckIns() CheckIns         { return s.checkIns }
func (s *PostgresStore) Memories() Memories         { return s.memories }
func (s *PostgresStore) Presets() Presets           { return s.presets }
func (s *PostgresStore) DeviceTokens() DeviceTokens { return s.devices }

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// notFound converts pgx.ErrNoRows into models.ErrNotFound
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %w", what, models.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// orderedCreatedAt is the SQL creation time of a new row in table for the
// couple bound to coupleParam. It comes from the database clock and is moved
// past the couple's newest row, so rows sort in insertion order no matter
// which API instance wrote them.
func orderedCreatedAt(table, coupleParam string) string {
	return `GREATEST(clock_timestamp(), (SELECT max(created_at) + interval '1 microsecond' FROM ` +
		table + ` WHERE couple_id = ` + coupleParam + `))`
}

// createdAt normalizes a nullable creation time
func createdAt(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return models.PendingTimestamp
	}
	return ts.Time.UTC()
}

func parseDate(value string) (time.Time, error) {
	d, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", models.ErrValidation, value)
	}
	return d, nil
}
