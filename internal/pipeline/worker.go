package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/andresuchdata/rollstats/internal/domain"
	"github.com/andresuchdata/rollstats/internal/importer"
	"github.com/andresuchdata/rollstats/internal/storage"
)

const uploadAttempts = 2

// processFile runs the per-file pipeline. Failures and panics stop this file
// only; they are returned in the outcome, never propagated.
func (o *Orchestrator) processFile(ctx context.Context, file domain.RemoteFile) (outcome FileOutcome) {
	start := o.now()
	log := o.log.With().Str("file_id", file.ID).Str("file", file.Name).Logger()
	outcome = FileOutcome{File: file, Status: FileStatusCompleted}

	var staged []string
	defer func() {
		if r := recover(); r != nil {
			outcome.fail(StagePanic, fmt.Errorf("panic: %v", r))
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("file processing panicked")
		}
		o.removeStaged(staged)
		o.clean(ctx)
		outcome.Duration = o.now().Sub(start)
	}()

	log.Info().Time("modified", file.ModifiedTime).Msg("processing file")

	// Registered before download: a failed attempt is not retried until the
	// remote version changes, unless RetryFailed is set.
	o.cache.Upsert(file)
	o.markPending(file.ID)

	path, staged, err := o.stage(ctx, file)
	if err != nil {
		outcome.fail(StageDownload, err)
		log.Error().Err(err).Msg("download failed")
		return outcome
	}

	if err := o.importer.Import(ctx, path); err != nil {
		outcome.fail(StageImport, err)
		log.Error().Err(err).Msg("import failed")
		return outcome
	}
	o.confirm(file.ID)

	images, err := o.reports.RegenerateAll(ctx)
	if err != nil {
		outcome.fail(StageReport, err)
		log.Error().Err(err).Msg("report generation failed")
		return outcome
	}
	outcome.Images = len(images)

	outcome.Uploaded, outcome.UploadsFailed = o.uploadReports(ctx, images)
	log.Info().Int("images", len(images)).Int("uploaded", outcome.Uploaded).Msg("file processed")
	return outcome
}

// stage downloads file into the download dir and returns the path to import
// along with every local file created. XLSX files are converted to CSV.
func (o *Orchestrator) stage(ctx context.Context, file domain.RemoteFile) (string, []string, error) {
	if err := o.fs.MkdirAll(o.cfg.DownloadDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create download dir: %w", err)
	}

	local := filepath.Join(o.cfg.DownloadDir, filepath.Base(file.Name))
	out, err := o.fs.Create(local)
	if err != nil {
		return "", nil, fmt.Errorf("create %s: %w", local, err)
	}
	staged := []string{local}

	err = o.remote.DownloadFile(ctx, file.ID, out)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", staged, fmt.Errorf("download %s: %w", file.Name, err)
	}

	if file.Ext() != ".xlsx" {
		return local, staged, nil
	}

	csvPath := strings.TrimSuffix(local, filepath.Ext(local)) + ".csv"
	staged = append(staged, csvPath)
	if err := importer.ConvertXLSXToCSV(o.fs, local, csvPath); err != nil {
		return "", staged, fmt.Errorf("convert %s: %w", file.Name, err)
	}
	return csvPath, staged, nil
}

func (o *Orchestrator) removeStaged(paths []string) {
	for _, p := range paths {
		if err := o.fs.Remove(p); err != nil && !isNotExist(err) {
			o.log.Warn().Err(err).Str("path", p).Msg("failed to remove staged file")
		}
	}
}

// clean resets the working state. Failures are logged only.
func (o *Orchestrator) clean(ctx context.Context) {
	if err := o.importer.Clean(ctx); err != nil {
		o.log.Warn().Err(err).Msg("failed to clean imported data")
	}
	if err := o.reports.Clean(ctx); err != nil {
		o.log.Warn().Err(err).Msg("failed to clean generated images")
	}
}

// uploadReports uploads every image to <reports root>/<YYYY-MM>/<report>/.
// Each image gets two attempts; failures skip that image only.
func (o *Orchestrator) uploadReports(ctx context.Context, images []string) (uploaded, failed int) {
	month := o.now().UTC().Format("2006-01")
	resolver := storage.NewFolderResolver(o.remote, o.cfg.ReportsFolderID)

	for _, img := range images {
		if ctx.Err() != nil {
			failed++
			continue
		}
		reportName := filepath.Base(filepath.Dir(img))
		if err := o.uploadWithRetry(ctx, resolver, month, reportName, img); err != nil {
			o.log.Error().Err(err).Str("image", img).Msg("upload failed, skipping image")
			failed++
			continue
		}
		uploaded++
	}
	return uploaded, failed
}

func (o *Orchestrator) uploadWithRetry(ctx context.Context, resolver *storage.FolderResolver, month, reportName, img string) error {
	var err error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		if err = o.uploadImage(ctx, resolver, month, reportName, img); err == nil {
			return nil
		}
		if attempt < uploadAttempts {
			o.log.Warn().Err(err).Str("image", img).Msg("upload failed, retrying")
		}
	}
	return err
}

func (o *Orchestrator) uploadImage(ctx context.Context, resolver *storage.FolderResolver, month, reportName, img string) error {
	folderID, err := resolver.ResolvePath(ctx, month, reportName)
	if err != nil {
		return err
	}

	f, err := o.fs.Open(img)
	if err != nil {
		return fmt.Errorf("open %s: %w", img, err)
	}
	defer f.Close()

	if _, err := o.remote.UploadFile(ctx, filepath.Base(img), f, folderID); err != nil {
		return fmt.Errorf("upload %s: %w", img, err)
	}
	return nil
}

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}
