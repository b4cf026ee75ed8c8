package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/rollstats/internal/domain"
	"github.com/jmoiron/sqlx"
)

// RollRepository persists imported users and their rolls.
type RollRepository struct {
	db *DB
}

func NewRollRepository(db *DB) *RollRepository {
	return &RollRepository{db: db}
}

// RollWriter is the transactional side used by the importer.
type RollWriter struct {
	tx *sqlx.Tx
}

// InTx runs fn with a writer bound to one transaction.
func (r *RollRepository) InTx(ctx context.Context, fn func(w *RollWriter) error) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&RollWriter{tx: tx})
	})
}

// UpsertUser returns the id of the user with name, creating it when missing.
func (w *RollWriter) UpsertUser(ctx context.Context, name string) (int64, error) {
	query := w.tx.Rebind(`
		INSERT INTO users (name)
		VALUES (?)
		ON CONFLICT (name)
		DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`)
	var id int64
	if err := w.tx.QueryRowxContext(ctx, query, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert user %q: %w", name, err)
	}
	return id, nil
}

// InsertRoll stores a roll unless an identical (user, created_at, value) row exists.
// It reports whether a row was inserted.
func (w *RollWriter) InsertRoll(ctx context.Context, userID int64, value int, createdAt time.Time) (bool, error) {
	query := w.tx.Rebind(`
		INSERT INTO rolls (user_id, value, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, created_at, value) DO NOTHING
	`)
	res, err := w.tx.ExecContext(ctx, query, userID, value, createdAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert roll: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *RollRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := r.db.SelectContext(ctx, &users, `SELECT id, name, created_at FROM users ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// ListRolls returns every roll with its user name, ordered by user then date.
func (r *RollRepository) ListRolls(ctx context.Context) ([]domain.Roll, error) {
	var rolls []domain.Roll
	err := r.db.SelectContext(ctx, &rolls, `
		SELECT r.id, r.user_id, u.name AS user_name, r.value, r.created_at
		FROM rolls r
		JOIN users u ON u.id = r.user_id
		ORDER BY u.name, r.created_at, r.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rolls: %w", err)
	}
	for i := range rolls {
		rolls[i].CreatedAt = rolls[i].CreatedAt.UTC()
	}
	return rolls, nil
}

func (r *RollRepository) CountRolls(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM rolls`); err != nil {
		return 0, fmt.Errorf("failed to count rolls: %w", err)
	}
	return n, nil
}

// DeleteAll removes every roll, then every user.
func (r *RollRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM rolls`); err != nil {
			return fmt.Errorf("failed to delete rolls: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
			return fmt.Errorf("failed to delete users: %w", err)
		}
		return nil
	})
}
