package store

import (
	"context"
	"fmt"
	"strings"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'PARTICIPANT',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS trainings (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	start_date       TIMESTAMPTZ NOT NULL,
	end_date         TIMESTAMPTZ NOT NULL,
	mode             TEXT NOT NULL,
	location         TEXT NOT NULL DEFAULT '',
	meeting_link     TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'DRAFT',
	max_participants INTEGER,
	trainer_id       TEXT NOT NULL REFERENCES users(id),
	created_by_id    TEXT NOT NULL REFERENCES users(id),
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (end_date >= start_date)
);

CREATE INDEX IF NOT EXISTS idx_trainings_status_start ON trainings (status, start_date);

CREATE TABLE IF NOT EXISTS enrollments (
	id                 TEXT PRIMARY KEY,
	training_id        TEXT NOT NULL REFERENCES trainings(id) ON DELETE CASCADE,
	user_id            TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	status             TEXT NOT NULL DEFAULT 'ENROLLED',
	enrolled_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at       TIMESTAMPTZ,
	pre_work_completed BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (training_id, user_id)
);

CREATE TABLE IF NOT EXISTS attendance (
	id            TEXT PRIMARY KEY,
	training_id   TEXT NOT NULL REFERENCES trainings(id) ON DELETE CASCADE,
	user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	status        TEXT NOT NULL DEFAULT 'PRESENT',
	check_in_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	marked_by     TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '',
	UNIQUE (training_id, user_id)
);

CREATE TABLE IF NOT EXISTS feedbacks (
	id              TEXT PRIMARY KEY,
	training_id     TEXT NOT NULL REFERENCES trainings(id) ON DELETE CASCADE,
	user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	rating          INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
	trainer_rating  INTEGER CHECK (trainer_rating BETWEEN 1 AND 5),
	comment         TEXT NOT NULL DEFAULT '',
	trainer_comment TEXT NOT NULL DEFAULT '',
	submitted_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (training_id, user_id)
);

CREATE TABLE IF NOT EXISTS training_materials (
	id             TEXT PRIMARY KEY,
	training_id    TEXT NOT NULL REFERENCES trainings(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	type           TEXT NOT NULL,
	file_url       TEXT NOT NULL DEFAULT '',
	file_name      TEXT NOT NULL DEFAULT '',
	file_size      BIGINT NOT NULL DEFAULT 0,
	mime_type      TEXT NOT NULL DEFAULT '',
	file_key       TEXT NOT NULL DEFAULT '',
	external_link  TEXT NOT NULL DEFAULT '',
	is_required    BOOLEAN NOT NULL DEFAULT TRUE,
	distributed_at TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL DEFAULT '',
	details     JSONB,
	ip_address  TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs (entity_type, entity_id);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'INFO',
	link       TEXT NOT NULL DEFAULT '',
	is_read    BOOLEAN NOT NULL DEFAULT FALSE,
	read_at    TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (user_id, is_read, created_at DESC);

CREATE TABLE IF NOT EXISTS training_templates (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	tags          JSONB NOT NULL DEFAULT '[]',
	template_data JSONB NOT NULL DEFAULT '{}',
	is_public     BOOLEAN NOT NULL DEFAULT FALSE,
	usage_count   INTEGER NOT NULL DEFAULT 0,
	created_by_id TEXT NOT NULL REFERENCES users(id),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS comments (
	id          TEXT PRIMARY KEY,
	training_id TEXT NOT NULL REFERENCES trainings(id) ON DELETE CASCADE,
	user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	parent_id   TEXT REFERENCES comments(id) ON DELETE CASCADE,
	content     TEXT NOT NULL,
	is_edited   BOOLEAN NOT NULL DEFAULT FALSE,
	edited_at   TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_comments_training ON comments (training_id, created_at)
`

// Migrate creates the schema when it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
