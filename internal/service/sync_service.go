package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/andresuchdata/rollstats/internal/domain"
	"github.com/andresuchdata/rollstats/internal/filecache"
	"github.com/andresuchdata/rollstats/internal/pipeline"
	"github.com/andresuchdata/rollstats/internal/report"
	"github.com/andresuchdata/rollstats/pkg/logger"
)

var ErrFileNotFound = errors.New("file not tracked")

// Trigger is the part of the scheduler the service drives.
type Trigger interface {
	TriggerAsync() bool
	Running() bool
	LastReport() *pipeline.CycleReport
	Interval() time.Duration
}

// PendingLister reports files whose import has not been confirmed yet.
type PendingLister interface {
	Pending() []string
}

// RunHistory returns recorded cycles, newest first.
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]pipeline.RunSummary, error)
}

// ReportCatalog lists the registered reports and the images on disk.
type ReportCatalog interface {
	Reports() []report.Report
	Images() ([]string, error)
}

type SyncStatus struct {
	Running      bool                  `json:"running"`
	Interval     string                `json:"interval"`
	TrackedFiles int                   `json:"tracked_files"`
	Pending      []string              `json:"pending"`
	LastCycle    *pipeline.CycleReport `json:"last_cycle,omitempty"`
	History      []pipeline.RunSummary `json:"history,omitempty"`
}

type ReportInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Options     []report.Option `json:"options"`
}

type SyncService struct {
	trigger Trigger
	cache   *filecache.Cache
	pending PendingLister
	history RunHistory
	reports ReportCatalog
	log     zerolog.Logger
}

// NewSyncService wires the admin operations. pending and history may be nil.
func NewSyncService(trigger Trigger, cache *filecache.Cache, pending PendingLister, history RunHistory, reports ReportCatalog) *SyncService {
	return &SyncService{
		trigger: trigger,
		cache:   cache,
		pending: pending,
		history: history,
		reports: reports,
		log:     logger.Component("sync-service"),
	}
}

// RunNow starts a cycle in the background. It returns ErrCycleInProgress when
// one is already running.
func (s *SyncService) RunNow() error {
	if !s.trigger.TriggerAsync() {
		return pipeline.ErrCycleInProgress
	}
	s.log.Info().Msg("manual sync triggered")
	return nil
}

func (s *SyncService) Status(ctx context.Context, historyLimit int) (*SyncStatus, error) {
	status := &SyncStatus{
		Running:      s.trigger.Running(),
		Interval:     s.trigger.Interval().String(),
		TrackedFiles: s.cache.Len(),
		Pending:      []string{},
		LastCycle:    s.trigger.LastReport(),
	}
	if s.pending != nil {
		status.Pending = s.pending.Pending()
		sort.Strings(status.Pending)
	}
	if s.history != nil {
		runs, err := s.history.Recent(ctx, historyLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load sync history: %w", err)
		}
		status.History = runs
	}
	return status, nil
}

// Files lists the tracked remote files.
func (s *SyncService) Files() []domain.RemoteFile {
	return s.cache.Files()
}

// RemoveFile forgets a tracked file so the next cycle processes it again.
func (s *SyncService) RemoveFile(id string) error {
	if !s.cache.HasFile(id) {
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	s.cache.Remove(id)
	s.log.Info().Str("file_id", id).Msg("file removed from cache")
	return nil
}

func (s *SyncService) Reports() []ReportInfo {
	var out []ReportInfo
	for _, r := range s.reports.Reports() {
		out = append(out, ReportInfo{
			Name:        r.Name(),
			Description: r.Description(),
			Options:     r.Options(),
		})
	}
	return out
}

func (s *SyncService) Images() ([]string, error) {
	images, err := s.reports.Images()
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return images, nil
}
