package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/andresuchdata/rollstats/internal/domain"
)

// ErrCycleInProgress is returned when a sync is requested while one is running.
var ErrCycleInProgress = errors.New("sync cycle already in progress")

// Importer loads a staged data file into the roll store.
type Importer interface {
	Import(ctx context.Context, path string) error
	Clean(ctx context.Context) error
}

// ReportGenerator renders every report from the roll store to local images.
type ReportGenerator interface {
	RegenerateAll(ctx context.Context) ([]string, error)
	Clean(ctx context.Context) error
}

// RunRecorder persists a summary of finished cycles.
type RunRecorder interface {
	Record(ctx context.Context, report *CycleReport) error
}

// RunStatus represents the outcome of one sync cycle
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	// StatusPartial means at least one file failed.
	StatusPartial   RunStatus = "partial"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// FileStatus represents the outcome of processing one remote file
type FileStatus string

const (
	FileStatusCompleted FileStatus = "completed"
	FileStatusFailed    FileStatus = "failed"
)

// Stage names the pipeline step a file failed in.
type Stage string

const (
	StageDownload Stage = "download"
	StageImport   Stage = "import"
	StageReport   Stage = "report"
	StagePanic    Stage = "panic"
)

// FileOutcome tracks the processing of a single file
type FileOutcome struct {
	File          domain.RemoteFile `json:"file"`
	Status        FileStatus        `json:"status"`
	FailedStage   Stage             `json:"failed_stage,omitempty"`
	Error         string            `json:"error,omitempty"`
	Images        int               `json:"images"`
	Uploaded      int               `json:"uploaded"`
	UploadsFailed int               `json:"uploads_failed"`
	Duration      time.Duration     `json:"duration"`
}

func (o *FileOutcome) fail(stage Stage, err error) {
	o.Status = FileStatusFailed
	o.FailedStage = stage
	o.Error = err.Error()
}

// CycleReport tracks a single execution of the sync cycle
type CycleReport struct {
	ID         int64         `json:"id,omitempty"`
	Status     RunStatus     `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Listed     int           `json:"listed"`
	Qualified  int           `json:"qualified"`
	Files      []FileOutcome `json:"files"`
	Error      string        `json:"error,omitempty"`
}

func (r *CycleReport) Processed() int {
	n := 0
	for _, f := range r.Files {
		if f.Status == FileStatusCompleted {
			n++
		}
	}
	return n
}

func (r *CycleReport) Failed() int {
	return len(r.Files) - r.Processed()
}

func (r *CycleReport) Uploaded() int {
	n := 0
	for _, f := range r.Files {
		n += f.Uploaded
	}
	return n
}

func (r *CycleReport) finish(now time.Time, err error) {
	r.FinishedAt = now
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.Status = StatusCancelled
		r.Error = err.Error()
	case err != nil:
		r.Status = StatusFailed
		r.Error = err.Error()
	case r.Failed() > 0:
		r.Status = StatusPartial
	default:
		r.Status = StatusCompleted
	}
}
