package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const defaultMaxConcurrentOps = 10

// DB wraps a sqlx handle with a limiter on concurrent transactions.
// The same queries run on postgres and sqlite; placeholders go through Rebind.
type DB struct {
	*sqlx.DB
	sem *semaphore.Weighted
}

// Wrap adapts an open sqlx handle.
func Wrap(db *sqlx.DB) *DB {
	return &DB{
		DB:  db,
		sem: semaphore.NewWeighted(defaultMaxConcurrentOps),
	}
}

// WithTx executes a function within a transaction
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("could not acquire semaphore: %w", err)
	}
	defer db.sem.Release(1)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Migrate creates the tables used by the application when they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if isSQLite(db.DriverName()) {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func isSQLite(driver string) bool {
	return driver == "sqlite" || driver == "sqlite3"
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		modified_time TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS rolls (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		value      INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, created_at, value)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id            BIGSERIAL PRIMARY KEY,
		status        TEXT NOT NULL,
		listed        INTEGER NOT NULL DEFAULT 0,
		qualified     INTEGER NOT NULL DEFAULT 0,
		processed     INTEGER NOT NULL DEFAULT 0,
		failed        INTEGER NOT NULL DEFAULT 0,
		uploaded      INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		started_at    TIMESTAMPTZ NOT NULL,
		finished_at   TIMESTAMPTZ NOT NULL
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		modified_time DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS rolls (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		value      INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (user_id, created_at, value)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		status        TEXT NOT NULL,
		listed        INTEGER NOT NULL DEFAULT 0,
		qualified     INTEGER NOT NULL DEFAULT 0,
		processed     INTEGER NOT NULL DEFAULT 0,
		failed        INTEGER NOT NULL DEFAULT 0,
		uploaded      INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		started_at    DATETIME NOT NULL,
		finished_at   DATETIME NOT NULL
	)`,
}
