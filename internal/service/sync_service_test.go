package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/rollstats/internal/domain"
	"github.com/andresuchdata/rollstats/internal/filecache"
	"github.com/andresuchdata/rollstats/internal/pipeline"
	"github.com/andresuchdata/rollstats/internal/report"
)

type fakeTrigger struct {
	busy     bool
	running  bool
	last     *pipeline.CycleReport
	triggers int
}

func (f *fakeTrigger) TriggerAsync() bool {
	if f.busy {
		return false
	}
	f.triggers++
	return true
}
func (f *fakeTrigger) Running() bool                     { return f.running }
func (f *fakeTrigger) LastReport() *pipeline.CycleReport { return f.last }
func (f *fakeTrigger) Interval() time.Duration           { return 30 * time.Minute }

type fakePending []string

func (f fakePending) Pending() []string { return append([]string(nil), f...) }

type fakeHistory struct {
	runs  []pipeline.RunSummary
	err   error
	limit int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]pipeline.RunSummary, error) {
	f.limit = limit
	return f.runs, f.err
}

type fakeCatalog struct {
	images []string
	err    error
}

func (f *fakeCatalog) Reports() []report.Report  { return report.DefaultReports() }
func (f *fakeCatalog) Images() ([]string, error) { return f.images, f.err }

func newCache(t *testing.T, files ...domain.RemoteFile) *filecache.Cache {
	t.Helper()
	c, err := filecache.New(context.Background(), filecache.NoopMirror{})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	for _, f := range files {
		c.Upsert(f)
	}
	return c
}

func TestRunNow(t *testing.T) {
	trigger := &fakeTrigger{}
	svc := NewSyncService(trigger, newCache(t), nil, nil, &fakeCatalog{})

	require.NoError(t, svc.RunNow())
	assert.Equal(t, 1, trigger.triggers)

	trigger.busy = true
	assert.ErrorIs(t, svc.RunNow(), pipeline.ErrCycleInProgress)
	assert.Equal(t, 1, trigger.triggers)
}

func TestStatus(t *testing.T) {
	modified := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	last := &pipeline.CycleReport{Status: pipeline.StatusCompleted, Listed: 2}
	history := &fakeHistory{runs: []pipeline.RunSummary{{ID: 1, Status: pipeline.StatusCompleted}}}
	svc := NewSyncService(
		&fakeTrigger{running: true, last: last},
		newCache(t, domain.RemoteFile{ID: "f1", Name: "jan.csv", ModifiedTime: modified}),
		fakePending{"f9", "f2"},
		history,
		&fakeCatalog{},
	)

	status, err := svc.Status(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, "30m0s", status.Interval)
	assert.Equal(t, 1, status.TrackedFiles)
	assert.Equal(t, []string{"f2", "f9"}, status.Pending)
	assert.Same(t, last, status.LastCycle)
	assert.Len(t, status.History, 1)
	assert.Equal(t, 5, history.limit)
}

func TestStatus_HistoryError(t *testing.T) {
	svc := NewSyncService(&fakeTrigger{}, newCache(t), nil, &fakeHistory{err: errors.New("db down")}, &fakeCatalog{})

	_, err := svc.Status(context.Background(), 10)
	assert.ErrorContains(t, err, "db down")
}

func TestStatus_NoOptionalParts(t *testing.T) {
	svc := NewSyncService(&fakeTrigger{}, newCache(t), nil, nil, &fakeCatalog{})

	status, err := svc.Status(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, status.Pending)
	assert.Nil(t, status.History)
	assert.Nil(t, status.LastCycle)
}

func TestFilesAndRemove(t *testing.T) {
	cache := newCache(t,
		domain.RemoteFile{ID: "f2", Name: "feb.csv", ModifiedTime: time.Now()},
		domain.RemoteFile{ID: "f1", Name: "jan.csv", ModifiedTime: time.Now()},
	)
	svc := NewSyncService(&fakeTrigger{}, cache, nil, nil, &fakeCatalog{})

	files := svc.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "feb.csv", files[0].Name)

	require.NoError(t, svc.RemoveFile("f1"))
	assert.False(t, cache.HasFile("f1"))
	assert.ErrorIs(t, svc.RemoveFile("f1"), ErrFileNotFound)
}

func TestReportsAndImages(t *testing.T) {
	svc := NewSyncService(&fakeTrigger{}, newCache(t), nil, nil, &fakeCatalog{images: []string{"/images/a/b.png"}})

	reports := svc.Reports()
	require.Len(t, reports, 5)
	assert.Equal(t, "line_rolls_user", reports[0].Name)
	assert.NotEmpty(t, reports[0].Description)

	images, err := svc.Images()
	require.NoError(t, err)
	assert.Equal(t, []string{"/images/a/b.png"}, images)

	svc = NewSyncService(&fakeTrigger{}, newCache(t), nil, nil, &fakeCatalog{err: errors.New("walk failed")})
	_, err = svc.Images()
	assert.ErrorContains(t, err, "walk failed")
}
