package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/rollstats/internal/app"
	"github.com/andresuchdata/rollstats/internal/config"
	"github.com/andresuchdata/rollstats/internal/filecache"
	"github.com/andresuchdata/rollstats/internal/importer"
	"github.com/andresuchdata/rollstats/internal/pipeline"
	"github.com/andresuchdata/rollstats/internal/report"
	"github.com/andresuchdata/rollstats/internal/repository"
)

func newGenerator(db *repository.DB, fs afero.Fs, imagesDir string) *report.Generator {
	cfg := config.Load()
	return report.NewGenerator(repository.NewRollRepository(db), report.NewImageStore(fs, imagesDir), report.Settings{
		Width:   cfg.Report.Width,
		Height:  cfg.Report.Height,
		StatsBy: cfg.Report.StatsBy,
	})
}

func runImport(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}
	db, err := dbFrom(c)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	imp := importer.New(repository.NewRollRepository(db), fs)
	for _, path := range c.Args().Slice() {
		if strings.EqualFold(filepath.Ext(path), ".xlsx") {
			csvPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".csv"
			if err := importer.ConvertXLSXToCSV(fs, path, csvPath); err != nil {
				return fmt.Errorf("convert %s: %w", path, err)
			}
			path = csvPath
		}

		stats, err := imp.ImportFile(c.Context, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s: %d rows, %d inserted, %d skipped\n", path, stats.Rows, stats.Inserted, stats.Skipped)
	}
	return nil
}

// parseOptions turns repeated key=value flags into a map.
func parseOptions(raw []string) (map[string]string, error) {
	opts := make(map[string]string, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid option %q, expected key=value", kv)
		}
		opts[key] = strings.TrimSpace(value)
	}
	return opts, nil
}

func runPlot(c *cli.Context) error {
	db, err := dbFrom(c)
	if err != nil {
		return err
	}
	opts, err := parseOptions(c.StringSlice("option"))
	if err != nil {
		return err
	}

	gen := newGenerator(db, afero.NewOsFs(), c.String("images-dir"))
	paths, err := gen.Run(c.Context, c.String("name"), opts)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(c.App.Writer, p)
	}
	return nil
}

func runPlots(c *cli.Context) error {
	printReports(c.App.Writer, report.DefaultReports())
	return nil
}

func printReports(w io.Writer, reports []report.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\n", r.Name(), r.Description())
		for _, o := range r.Options() {
			required := "optional"
			if o.Required {
				required = "required"
			}
			fmt.Fprintf(tw, "  --option %s=<%s>\t%s (%s, default %q)\n", o.Name, o.Type, o.Description, required, o.Default)
		}
	}
	tw.Flush()
}

func runClean(c *cli.Context) error {
	db, err := dbFrom(c)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	if err := importer.New(repository.NewRollRepository(db), fs).Clean(c.Context); err != nil {
		return err
	}
	if err := newGenerator(db, fs, c.String("images-dir")).Clean(c.Context); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "cleaned")
	return nil
}

func withCache(c *cli.Context, fn func(*filecache.Cache, filecache.Mirror) error) error {
	db, err := dbFrom(c)
	if err != nil {
		return err
	}
	cfg := config.Load()
	mirror, closeMirror, err := app.NewMirror(cfg.Cache, db)
	if err != nil {
		return err
	}
	defer closeMirror()

	cache, err := app.LoadCache(c.Context, cfg.Cache, mirror)
	if err != nil {
		return err
	}
	defer cache.Close()
	return fn(cache, mirror)
}

func runSync(c *cli.Context) error {
	db, err := dbFrom(c)
	if err != nil {
		return err
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	remote, folders, err := app.NewRemote(c.Context, cfg.Storage)
	if err != nil {
		return err
	}

	return withCache(c, func(cache *filecache.Cache, _ filecache.Mirror) error {
		fs := afero.NewOsFs()
		rolls := repository.NewRollRepository(db)
		orch := pipeline.NewOrchestrator(
			remote,
			cache,
			importer.New(rolls, fs),
			newGenerator(db, fs, cfg.App.ImagesDir),
			pipeline.Config{
				DataFolderID:    folders.Data,
				ReportsFolderID: folders.Reports,
				DownloadDir:     cfg.App.DownloadDir,
				Extensions:      cfg.Sync.Extensions,
				RetryFailed:     cfg.Sync.RetryFailed,
			},
			pipeline.WithFs(fs),
			pipeline.WithRunRecorder(pipeline.NewRunRepository(db)),
		)

		summary, err := orch.RunCycle(c.Context)
		if summary != nil {
			printCycle(c.App.Writer, summary)
		}
		return err
	})
}

func printCycle(w io.Writer, r *pipeline.CycleReport) {
	fmt.Fprintf(w, "status=%s listed=%d qualified=%d processed=%d failed=%d uploaded=%d\n",
		r.Status, r.Listed, r.Qualified, r.Processed(), r.Failed(), r.Uploaded())
	for _, f := range r.Files {
		if f.Status == pipeline.FileStatusFailed {
			fmt.Fprintf(w, "  %s (%s): failed at %s: %s\n", f.File.Name, f.File.ID, f.FailedStage, f.Error)
		}
	}
}

func runHistory(c *cli.Context) error {
	db, err := dbFrom(c)
	if err != nil {
		return err
	}
	runs, err := pipeline.NewRunRepository(db).Recent(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tQUALIFIED\tPROCESSED\tFAILED\tUPLOADED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Status, r.Qualified, r.Processed, r.Failed, r.Uploaded)
	}
	return tw.Flush()
}

func runCacheList(c *cli.Context) error {
	return withCache(c, func(cache *filecache.Cache, _ filecache.Mirror) error {
		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tMODIFIED")
		for _, f := range cache.Files() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.ID, f.Name, f.ModifiedTime.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	})
}

func runCacheRemove(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file id is required")
	}
	return withCache(c, func(cache *filecache.Cache, mirror filecache.Mirror) error {
		return removeTracked(c.Context, c.App.Writer, cache, mirror, c.Args().Slice())
	})
}

// removeTracked deletes ids from the mirror directly. The cache is only
// consulted to tell untracked ids apart.
func removeTracked(ctx context.Context, w io.Writer, cache *filecache.Cache, mirror filecache.Mirror, ids []string) error {
	for _, id := range ids {
		if !cache.HasFile(id) {
			fmt.Fprintf(w, "%s: not tracked\n", id)
			continue
		}
		if err := mirror.Delete(ctx, id); err != nil {
			return fmt.Errorf("remove %s: %w", id, err)
		}
		fmt.Fprintf(w, "%s: removed\n", id)
	}
	return nil
}
