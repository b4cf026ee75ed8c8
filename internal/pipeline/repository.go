package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/rollstats/internal/repository"
)

// RunSummary is one row of sync run history.
type RunSummary struct {
	ID           int64     `json:"id" db:"id"`
	Status       RunStatus `json:"status" db:"status"`
	Listed       int       `json:"listed" db:"listed"`
	Qualified    int       `json:"qualified" db:"qualified"`
	Processed    int       `json:"processed" db:"processed"`
	Failed       int       `json:"failed" db:"failed"`
	Uploaded     int       `json:"uploaded" db:"uploaded"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
	StartedAt    time.Time `json:"started_at" db:"started_at"`
	FinishedAt   time.Time `json:"finished_at" db:"finished_at"`
}

// RunRepository handles database operations for sync run tracking
type RunRepository struct {
	db *repository.DB
}

// NewRunRepository creates a new sync run repository
func NewRunRepository(db *repository.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Record stores the summary of a finished cycle and sets report.ID.
func (r *RunRepository) Record(ctx context.Context, report *CycleReport) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`
			INSERT INTO sync_runs (
				status, listed, qualified, processed,
				failed, uploaded, error_message, started_at, finished_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`)
		err := tx.QueryRowxContext(ctx, query,
			report.Status, report.Listed, report.Qualified, report.Processed(),
			report.Failed(), report.Uploaded(), report.Error,
			report.StartedAt.UTC(), report.FinishedAt.UTC(),
		).Scan(&report.ID)
		if err != nil {
			return fmt.Errorf("failed to record sync run: %w", err)
		}
		return nil
	})
}

// Recent returns the latest runs, newest first.
func (r *RunRepository) Recent(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := r.db.Rebind(`
		SELECT id, status, listed, qualified, processed, failed, uploaded,
		       error_message, started_at, finished_at
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`)

	var runs []RunSummary
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	for i := range runs {
		runs[i].StartedAt = runs[i].StartedAt.UTC()
		runs[i].FinishedAt = runs[i].FinishedAt.UTC()
	}
	return runs, nil
}

var _ RunRecorder = (*RunRepository)(nil)
