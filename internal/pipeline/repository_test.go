package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/rollstats/internal/domain"
	"github.com/andresuchdata/rollstats/internal/repository/sqlite"
)

func TestRunRepository_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	repo := NewRunRepository(db)

	first := &CycleReport{
		Status:     StatusPartial,
		StartedAt:  t1,
		FinishedAt: t1.Add(time.Minute),
		Listed:     3,
		Qualified:  2,
		Files: []FileOutcome{
			{File: domain.RemoteFile{ID: "a"}, Status: FileStatusCompleted, Uploaded: 5},
			{File: domain.RemoteFile{ID: "b"}, Status: FileStatusFailed, Error: "bad"},
		},
	}
	second := &CycleReport{Status: StatusFailed, StartedAt: t2, FinishedAt: t2, Error: "list remote files: 503"}

	require.NoError(t, repo.Record(ctx, first))
	require.NoError(t, repo.Record(ctx, second))
	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)

	runs, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, "list remote files: 503", runs[0].ErrorMessage)

	assert.Equal(t, RunSummary{
		ID: first.ID, Status: StatusPartial, Listed: 3, Qualified: 2,
		Processed: 1, Failed: 1, Uploaded: 5,
		StartedAt: t1, FinishedAt: t1.Add(time.Minute),
	}, runs[1])

	runs, err = repo.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
