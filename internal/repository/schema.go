package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied in order; every statement is safe to re-run.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		code         TEXT NOT NULL UNIQUE,
		couple_id    TEXT NULL,
		avatar_url   TEXT NULL,
		settings     JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS couples (
		id            TEXT PRIMARY KEY,
		members       TEXT[] NOT NULL CHECK (cardinality(members) = 2 AND members[1] <> members[2]),
		display_names JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS couples_members_idx ON couples USING GIN (members)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id           TEXT PRIMARY KEY,
		couple_id    TEXT NOT NULL REFERENCES couples(id),
		sender_id    TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		body         TEXT NOT NULL DEFAULT '',
		kind         TEXT NOT NULL CHECK (kind IN ('text', 'preset', 'photo')),
		preset_id    TEXT NOT NULL DEFAULT '',
		photo_url    TEXT NOT NULL DEFAULT '',
		read         BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   TIMESTAMPTZ NULL,
		CHECK (sender_id <> recipient_id)
	)`,
	`CREATE INDEX IF NOT EXISTS messages_couple_created_idx ON messages (couple_id, created_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS check_ins (
		id         TEXT PRIMARY KEY,
		couple_id  TEXT NOT NULL REFERENCES couples(id),
		author_id  TEXT NOT NULL,
		date       DATE NOT NULL,
		mood       TEXT NOT NULL,
		mood_note  TEXT NOT NULL DEFAULT '',
		gratitude  TEXT NOT NULL,
		created_at TIMESTAMPTZ NULL,
		UNIQUE (author_id, date)
	)`,
	`CREATE INDEX IF NOT EXISTS check_ins_couple_date_idx ON check_ins (couple_id, date DESC)`,
	`CREATE TABLE IF NOT EXISTS memories (
		id          TEXT PRIMARY KEY,
		couple_id   TEXT NOT NULL REFERENCES couples(id),
		author_id   TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		photo_urls  TEXT[] NOT NULL DEFAULT '{}',
		video_urls  TEXT[] NOT NULL DEFAULT '{}',
		tags        TEXT[] NOT NULL DEFAULT '{}',
		date        DATE NOT NULL,
		source      TEXT NOT NULL CHECK (source IN ('manual', 'suggested', 'device_import')),
		created_at  TIMESTAMPTZ NULL
	)`,
	`CREATE INDEX IF NOT EXISTS memories_couple_date_idx ON memories (couple_id, date DESC)`,
	`CREATE TABLE IF NOT EXISTS preset_picks (
		id            TEXT PRIMARY KEY,
		text          TEXT NOT NULL,
		emoji         TEXT NOT NULL DEFAULT '',
		category      TEXT NOT NULL DEFAULT '',
		display_order INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS device_tokens (
		user_id    TEXT PRIMARY KEY,
		address    TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the tables and indexes the repositories rely on
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
