package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/andresuchdata/rollstats/internal/domain"
	"github.com/andresuchdata/rollstats/internal/filecache"
	"github.com/andresuchdata/rollstats/internal/storage"
	"github.com/andresuchdata/rollstats/pkg/logger"
)

// Config holds the orchestrator's remote and local locations.
type Config struct {
	DataFolderID    string
	ReportsFolderID string
	DownloadDir     string
	// Extensions limits which remote files qualify. Empty means all files.
	Extensions []string
	// RetryFailed keeps files whose import did not succeed qualifying on
	// every cycle until it does.
	RetryFailed bool
}

// Orchestrator runs sync cycles: list, filter through the cache, then
// download, import, report, upload and clean each qualifying file in turn.
type Orchestrator struct {
	remote   storage.Remote
	cache    *filecache.Cache
	importer Importer
	reports  ReportGenerator
	runs     RunRecorder
	fs       afero.Fs
	cfg      Config
	now      func() time.Time
	log      zerolog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

type Option func(*Orchestrator)

// WithClock sets the time source used for month folders and reports.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithFs sets the local filesystem used for staging and reading report images.
func WithFs(fs afero.Fs) Option {
	return func(o *Orchestrator) { o.fs = fs }
}

// WithRunRecorder persists every finished cycle.
func WithRunRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) { o.runs = r }
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	remote storage.Remote,
	cache *filecache.Cache,
	importer Importer,
	reports ReportGenerator,
	cfg Config,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		remote:   remote,
		cache:    cache,
		importer: importer,
		reports:  reports,
		fs:       afero.NewOsFs(),
		cfg:      cfg,
		now:      time.Now,
		log:      logger.Component("sync"),
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunCycle performs one full sync pass. The returned error is non-nil only
// when the cycle could not run at all (listing failed or ctx was cancelled);
// per-file failures are reported in CycleReport.Files.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{Status: StatusRunning, StartedAt: o.now().UTC()}
	err := o.runCycle(ctx, report)
	report.finish(o.now().UTC(), err)
	o.record(report)

	ev := o.log.Info()
	if err != nil {
		ev = o.log.Error().Err(err)
	} else if report.Failed() > 0 {
		ev = o.log.Warn()
	}
	ev.Str("status", string(report.Status)).
		Int("listed", report.Listed).
		Int("qualified", report.Qualified).
		Int("processed", report.Processed()).
		Int("failed", report.Failed()).
		Int("uploaded", report.Uploaded()).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("sync cycle finished")

	return report, err
}

func (o *Orchestrator) runCycle(ctx context.Context, report *CycleReport) error {
	o.log.Info().Str("folder", o.cfg.DataFolderID).Msg("checking for new files")

	files, err := o.remote.ListFiles(ctx, o.cfg.DataFolderID)
	if err != nil {
		return fmt.Errorf("list remote files: %w", err)
	}
	report.Listed = len(files)

	qualifying := o.qualify(files)
	report.Qualified = len(qualifying)
	if len(qualifying) == 0 {
		o.log.Debug().Int("listed", len(files)).Msg("no new or updated files")
		return nil
	}

	for _, file := range qualifying {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Files = append(report.Files, o.processFile(ctx, file))
	}
	return nil
}

// qualify keeps files that are unseen or newer than the cached version,
// plus unconfirmed files when RetryFailed is set. Listing order is preserved.
func (o *Orchestrator) qualify(files []domain.RemoteFile) []domain.RemoteFile {
	return lo.Filter(files, func(f domain.RemoteFile, _ int) bool {
		if f.IsFolder() || !o.acceptsExtension(f) {
			return false
		}
		if !o.cache.HasFile(f.ID) || o.cache.IsNewer(f) {
			return true
		}
		return o.isPending(f.ID)
	})
}

func (o *Orchestrator) acceptsExtension(f domain.RemoteFile) bool {
	if len(o.cfg.Extensions) == 0 {
		return true
	}
	return lo.Contains(o.cfg.Extensions, f.Ext())
}

func (o *Orchestrator) markPending(id string) {
	if !o.cfg.RetryFailed {
		return
	}
	o.mu.Lock()
	o.pending[id] = struct{}{}
	o.mu.Unlock()
}

func (o *Orchestrator) confirm(id string) {
	o.mu.Lock()
	delete(o.pending, id)
	o.mu.Unlock()
}

func (o *Orchestrator) isPending(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.pending[id]
	return ok
}

// Pending lists file ids awaiting a successful import.
func (o *Orchestrator) Pending() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return lo.Keys(o.pending)
}

func (o *Orchestrator) record(report *CycleReport) {
	if o.runs == nil {
		return
	}
	// The cycle context may already be cancelled; the summary is still worth keeping.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.runs.Record(ctx, report); err != nil {
		o.log.Warn().Err(err).Msg("failed to record sync run")
	}
}
