package postgres

import (
	"context"
	"fmt"
)

// viewerSetting is the session variable the row policies read to identify
// the caller. It is set per transaction by the scoped client.
const viewerSetting = "app.viewer_id"

// schemaStatements create the tables, the cascade rules and the row policies.
// Every statement is idempotent.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS users (
    id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    email      text NOT NULL UNIQUE,
    name       text NOT NULL DEFAULT '',
    image      text NOT NULL DEFAULT '',
    approved   boolean NOT NULL DEFAULT false,
    is_admin   boolean NOT NULL DEFAULT false,
    created_at timestamptz NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS photos (
    id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id     uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    url         text NOT NULL,
    blob_path   text,
    title       text CHECK (title IS NULL OR char_length(title) BETWEEN 1 AND 200),
    description text CHECK (description IS NULL OR char_length(description) <= 1000),
    year        integer NOT NULL CHECK (year >= 1988),
    created_at  timestamptz NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS photos_year_created_at_idx ON photos (year DESC, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS comments (
    id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    photo_id   uuid NOT NULL REFERENCES photos(id) ON DELETE CASCADE,
    user_id    uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    content    text NOT NULL CHECK (char_length(content) BETWEEN 1 AND 500),
    created_at timestamptz NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS comments_photo_id_created_at_idx ON comments (photo_id, created_at)`,
	`ALTER TABLE users ENABLE ROW LEVEL SECURITY`,
	`ALTER TABLE photos ENABLE ROW LEVEL SECURITY`,
	`ALTER TABLE comments ENABLE ROW LEVEL SECURITY`,
	// Signed-in viewers may read every photo, comment and author. There are
	// no write policies: writes go through the privileged connection.
	`DO $$
BEGIN
    IF NOT EXISTS (SELECT 1 FROM pg_policies WHERE tablename = 'users' AND policyname = 'users_read_signed_in') THEN
        CREATE POLICY users_read_signed_in ON users FOR SELECT
            USING (coalesce(current_setting('` + viewerSetting + `', true), '') <> '');
    END IF;
    IF NOT EXISTS (SELECT 1 FROM pg_policies WHERE tablename = 'photos' AND policyname = 'photos_read_signed_in') THEN
        CREATE POLICY photos_read_signed_in ON photos FOR SELECT
            USING (coalesce(current_setting('` + viewerSetting + `', true), '') <> '');
    END IF;
    IF NOT EXISTS (SELECT 1 FROM pg_policies WHERE tablename = 'comments' AND policyname = 'comments_read_signed_in') THEN
        CREATE POLICY comments_read_signed_in ON comments FOR SELECT
            USING (coalesce(current_setting('` + viewerSetting + `', true), '') <> '');
    END IF;
END
$$`,
}

// EnsureSchema applies schemaStatements through the privileged connection.
// The scoped role must be granted SELECT separately and must not own the
// tables, otherwise the row policies do not apply to it.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := s.service.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
