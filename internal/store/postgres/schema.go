package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS facilities (
		id            UUID PRIMARY KEY,
		name          TEXT NOT NULL,
		code          TEXT NOT NULL,
		country       TEXT NOT NULL DEFAULT '',
		city          TEXT NOT NULL DEFAULT '',
		latitude      DOUBLE PRECISION NOT NULL,
		longitude     DOUBLE PRECISION NOT NULL,
		h3_index      TEXT NOT NULL,
		facility_type TEXT NOT NULL,
		capacity      INTEGER,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS facilities_code_key ON facilities (upper(code))`,
	`CREATE INDEX IF NOT EXISTS facilities_h3_index_idx ON facilities (h3_index)`,
	`CREATE INDEX IF NOT EXISTS facilities_type_idx ON facilities (facility_type)`,
	`CREATE TABLE IF NOT EXISTS users (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL,
		latitude   DOUBLE PRECISION,
		longitude  DOUBLE PRECISION,
		h3_index   TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email))`,
	`CREATE INDEX IF NOT EXISTS users_h3_index_idx ON users (h3_index)`,
}

// EnsureSchema creates the tables and indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
