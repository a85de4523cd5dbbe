package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrMigrationFailed wraps any failure while applying schema migrations.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// Migration is one versioned schema step. Migrations are embedded in the
// binary and applied in order at startup when auto-migration is enabled.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// Migrator applies pending migrations, tracking applied versions in the
// schema_migrations table.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator returns a Migrator carrying the engine's schema.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn: conn,
		migrations: []Migration{
			{Version: 1, Name: "create_learner_progress", UpSQL: migration001Up},
			{Version: 2, Name: "create_sessions", UpSQL: migration002Up},
			{Version: 3, Name: "create_quota_counters", UpSQL: migration003Up},
		},
	}
}

// Migrate applies every migration not yet recorded, each in its own
// transaction together with its version row.
func (m *Migrator) Migrate(ctx context.Context) error {
	if _, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("%w: create tracking table: %v", ErrMigrationFailed, err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, done := applied[mig.Version]; done {
			continue
		}
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("%w: query applied versions: %v", ErrMigrationFailed, err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("%w: scan version row: %v", ErrMigrationFailed, err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE LEARNER PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create learner progress tables
-- Version: 001

-- One row per learner, created on the first answer event.
CREATE TABLE IF NOT EXISTS learner_progress (
    learner_id VARCHAR(64) PRIMARY KEY,
    timezone VARCHAR(64) NOT NULL DEFAULT '',
    total_answered INTEGER NOT NULL DEFAULT 0,
    total_correct INTEGER NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    highest_streak INTEGER NOT NULL DEFAULT 0,
    qualifying_sessions INTEGER NOT NULL DEFAULT 0,
    unlock_state VARCHAR(20) NOT NULL DEFAULT 'restricted',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- Constraints for data integrity
    CONSTRAINT valid_unlock_state CHECK (unlock_state IN ('restricted', 'unlocked')),
    CONSTRAINT valid_totals CHECK (total_answered >= 0 AND total_correct >= 0 AND total_correct <= total_answered),
    CONSTRAINT valid_streaks CHECK (current_streak >= 0 AND highest_streak >= 0),
    CONSTRAINT valid_qualifying CHECK (qualifying_sessions >= 0)
);

CREATE INDEX IF NOT EXISTS idx_learner_progress_unlock ON learner_progress(unlock_state);

-- Per-category adaptive state for the difficulty staircase.
CREATE TABLE IF NOT EXISTS category_states (
    learner_id VARCHAR(64) NOT NULL REFERENCES learner_progress(learner_id) ON DELETE CASCADE,
    category VARCHAR(100) NOT NULL,
    tier SMALLINT NOT NULL DEFAULT 1,
    consecutive_correct INTEGER NOT NULL DEFAULT 0,
    consecutive_incorrect INTEGER NOT NULL DEFAULT 0,
    total_answered INTEGER NOT NULL DEFAULT 0,
    total_correct INTEGER NOT NULL DEFAULT 0,
    last_updated TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (learner_id, category),

    CONSTRAINT valid_tier CHECK (tier >= 1 AND tier <= 4),
    CONSTRAINT valid_category_totals CHECK (total_answered >= 0 AND total_correct >= 0 AND total_correct <= total_answered)
);

-- Append-only sub-category counters, written only at session finish.
CREATE TABLE IF NOT EXISTS subcategory_stats (
    learner_id VARCHAR(64) NOT NULL REFERENCES learner_progress(learner_id) ON DELETE CASCADE,
    category VARCHAR(100) NOT NULL,
    sub_category VARCHAR(100) NOT NULL,
    total_answered INTEGER NOT NULL DEFAULT 0,
    total_correct INTEGER NOT NULL DEFAULT 0,
    last_updated TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (learner_id, category, sub_category),

    CONSTRAINT valid_subcategory_totals CHECK (total_answered >= 0 AND total_correct >= 0 AND total_correct <= total_answered)
);

CREATE INDEX IF NOT EXISTS idx_subcategory_stats_learner ON subcategory_stats(learner_id);
`


// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create session tables
-- Version: 002

CREATE TABLE IF NOT EXISTS sessions (
    id UUID PRIMARY KEY,
    learner_id VARCHAR(64) NOT NULL,
    mode VARCHAR(20) NOT NULL,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    finished_at TIMESTAMP WITH TIME ZONE,
    abandoned BOOLEAN NOT NULL DEFAULT FALSE,
    last_activity_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_mode CHECK (mode IN ('practice', 'exam'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_learner ON sessions(learner_id, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_finished ON sessions(learner_id, finished_at DESC) WHERE finished_at IS NOT NULL;

-- Partial index driving the abandoned-session sweep.
CREATE INDEX IF NOT EXISTS idx_sessions_idle ON sessions(last_activity_at) WHERE finished_at IS NULL;

-- Ordered answer log, immutable once written.
CREATE TABLE IF NOT EXISTS session_answers (
    session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    question_id VARCHAR(100) NOT NULL,
    category VARCHAR(100) NOT NULL,
    sub_category VARCHAR(100) NOT NULL DEFAULT '',
    is_correct BOOLEAN NOT NULL,
    time_taken_ms BIGINT NOT NULL DEFAULT 0,
    answered_at TIMESTAMP WITH TIME ZONE NOT NULL,

    PRIMARY KEY (session_id, position),

    CONSTRAINT valid_position CHECK (position >= 0),
    CONSTRAINT valid_time_taken CHECK (time_taken_ms >= 0)
);
`


// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE QUOTA COUNTERS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create quota counters
-- Version: 003

-- One row per learner per calendar day in the learner's quota zone.
CREATE TABLE IF NOT EXISTS quota_counters (
    learner_id VARCHAR(64) NOT NULL,
    day DATE NOT NULL,
    consumed INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (learner_id, day),

    CONSTRAINT valid_consumed CHECK (consumed >= 0)
);

-- Old counters are kept for usage analytics; this index serves cleanup
-- and reporting scans by day.
CREATE INDEX IF NOT EXISTS idx_quota_counters_day ON quota_counters(day);
`

