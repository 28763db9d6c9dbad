// Package db provides SQLite persistence for room timelines, receipts and memberships.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite handle.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
	retry  retryPolicy
}

// Option configures a DB.
type Option func(*DB)

// WithLogger attaches a logger for migration and retry messages.
func WithLogger(logger zerolog.Logger) Option {
	return func(db *DB) {
		db.logger = logger
	}
}

// Open opens (or creates) the database at path using WAL journaling.
func Open(path string, opts ...Option) (*DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	return open(dsn, path, 4, opts...)
}

// OpenInMemory opens a private in-memory database. A single connection is
// kept so every query sees the same data.
func OpenInMemory(opts ...Option) (*DB, error) {
	return open("file::memory:?_pragma=foreign_keys(ON)", ":memory:", 1, opts...)
}

func open(dsn, path string, maxConns int, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	db := &DB{DB: sqlDB, path: path, logger: zerolog.Nop(), retry: defaultRetry}
	for _, opt := range opts {
		opt(db)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Path returns the database location.
func (db *DB) Path() string { return db.path }

// Transaction runs fn inside a transaction, committing when it returns nil.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "events",
		sql: `
		CREATE TABLE IF NOT EXISTS events (
			stream_pos   INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id     TEXT NOT NULL UNIQUE,
			room_id      TEXT NOT NULL,
			type         TEXT NOT NULL,
			state_key    TEXT,
			sender       TEXT NOT NULL DEFAULT '',
			origin_ts    INTEGER NOT NULL,
			content_json TEXT NOT NULL DEFAULT '{}',
			body         TEXT NOT NULL DEFAULT '',
			send_status  TEXT NOT NULL DEFAULT 'sent',
			txn_id       TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_events_room_pos ON events(room_id, stream_pos);
		`,
	},
	{
		version: 2,
		name:    "rooms_receipts_memberships",
		sql: `
		CREATE TABLE IF NOT EXISTS rooms (
			room_id    TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			sort_order INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS receipts (
			room_id    TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			event_id   TEXT NOT NULL,
			stream_pos INTEGER NOT NULL,
			PRIMARY KEY (room_id, user_id)
		);
		CREATE TABLE IF NOT EXISTS memberships (
			room_id    TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			membership TEXT NOT NULL,
			invited_by TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (room_id, user_id)
		);
		`,
	},
}

// MigrateUp applies pending migrations and returns how many ran.
func (db *DB) MigrateUp(ctx context.Context) (int, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := db.TransactionWithRetry(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
				m.version, m.name, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return applied, err
		}
		db.logger.Debug().Int("version", m.version).Str("name", m.name).Msg("applied migration")
		applied++
	}
	return applied, nil
}
