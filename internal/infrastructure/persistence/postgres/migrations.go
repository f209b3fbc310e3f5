package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrMigrationFailed wraps any failure while applying a migration.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// Migration is one forward-only schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations returns the schema history in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_user_chat_stats", SQL: migration001},
		{Version: 2, Name: "create_user_achievements", SQL: migration002},
		{Version: 3, Name: "create_processed_events", SQL: migration003},
		{Version: 4, Name: "create_chat_records", SQL: migration004},
		{Version: 5, Name: "create_applied_stat_updates", SQL: migration005},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migrator applies pending migrations, recording each in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: Migrations()}
}

// Migrate applies every pending migration, each in its own transaction, and
// returns the ones it applied.
func (m *Migrator) Migrate(ctx context.Context) ([]Migration, error) {
	if _, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("%w: create schema_migrations: %w", ErrMigrationFailed, err)
	}

	done, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	var applied []Migration
	for _, mig := range pending(m.migrations, done) {
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("%w: version %d (%s): %w", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		applied = append(applied, mig)
	}
	return applied, nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%w: read schema_migrations: %w", ErrMigrationFailed, err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("%w: read schema_migrations: %w", ErrMigrationFailed, err)
	}

	done := make(map[int]bool, len(versions))
	for _, v := range versions {
		done[v] = true
	}
	return done, nil
}

// pending returns the migrations not yet applied, keeping their order.
func pending(all []Migration, done map[int]bool) []Migration {
	var out []Migration
	for _, mig := range all {
		if !done[mig.Version] {
			out = append(out, mig)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: USER CHAT STATS
// ══════════════════════════════════════════════════════════════════════════════

const migration001 = `
CREATE TABLE IF NOT EXISTS user_chat_stats (
    user_id BIGINT NOT NULL,
    chat_id BIGINT NOT NULL,
    username VARCHAR(64) NOT NULL DEFAULT '',
    xp BIGINT NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    messages_count BIGINT NOT NULL DEFAULT 0,
    links_shared BIGINT NOT NULL DEFAULT 0,
    thanks_received BIGINT NOT NULL DEFAULT 0,
    thanks_given BIGINT NOT NULL DEFAULT 0,
    stickers_sent BIGINT NOT NULL DEFAULT 0,
    media_shared BIGINT NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    best_streak INTEGER NOT NULL DEFAULT 0,
    last_active_date DATE,
    messages_today INTEGER NOT NULL DEFAULT 0,
    last_activity TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, chat_id),

    CONSTRAINT valid_xp CHECK (xp >= 0),
    CONSTRAINT valid_level CHECK (level >= 1),
    CONSTRAINT valid_counters CHECK (
        messages_count >= 0 AND links_shared >= 0 AND thanks_received >= 0 AND
        thanks_given >= 0 AND stickers_sent >= 0 AND media_shared >= 0
    )
);

-- Leaderboard: xp desc, user_id asc within a chat
CREATE INDEX IF NOT EXISTS idx_user_chat_stats_leaderboard ON user_chat_stats(chat_id, xp DESC, user_id);
CREATE INDEX IF NOT EXISTS idx_user_chat_stats_username ON user_chat_stats(chat_id, lower(username)) WHERE username <> '';
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: USER ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002 = `
CREATE TABLE IF NOT EXISTS user_achievements (
    user_id BIGINT NOT NULL,
    chat_id BIGINT NOT NULL,
    achievement_id VARCHAR(64) NOT NULL,
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, chat_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_user_achievements_member ON user_achievements(user_id, chat_id, unlocked_at);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PROCESSED EVENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003 = `
CREATE TABLE IF NOT EXISTS processed_events (
    event_id VARCHAR(128) PRIMARY KEY,
    claimed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_processed_events_expires_at ON processed_events(expires_at);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: CHAT RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration004 = `
CREATE TABLE IF NOT EXISTS chat_records (
    chat_id BIGINT NOT NULL,
    record_key VARCHAR(64) NOT NULL,
    user_id BIGINT NOT NULL,
    value BIGINT NOT NULL,
    set_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (chat_id, record_key)
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 005: APPLIED STAT UPDATES
// ══════════════════════════════════════════════════════════════════════════════

// One row per (event, member) whose stats delta committed. Written in the
// same transaction as the stats row, so a retried update is detected.
const migration005 = `
CREATE TABLE IF NOT EXISTS applied_stat_updates (
    event_id VARCHAR(128) NOT NULL,
    user_id BIGINT NOT NULL,
    chat_id BIGINT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (event_id, user_id, chat_id)
);

CREATE INDEX IF NOT EXISTS idx_applied_stat_updates_applied_at ON applied_stat_updates(applied_at);
`
