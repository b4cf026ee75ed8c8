package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"

	"github.com/andresuchdata/rollstats/internal/api"
	"github.com/andresuchdata/rollstats/internal/app"
	"github.com/andresuchdata/rollstats/internal/config"
	"github.com/andresuchdata/rollstats/internal/drive"
	"github.com/andresuchdata/rollstats/internal/importer"
	"github.com/andresuchdata/rollstats/internal/pipeline"
	"github.com/andresuchdata/rollstats/internal/report"
	"github.com/andresuchdata/rollstats/internal/repository"
	"github.com/andresuchdata/rollstats/internal/service"
	"github.com/andresuchdata/rollstats/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.Setup(logger.Options{
		Level:             cfg.Log.Level,
		File:              cfg.Log.File,
		DiscordWebhookURL: cfg.Log.DiscordWebhookURL,
	})
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := cfg.Validate(); err != nil {
		logger.Log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := app.OpenDB(ctx, &cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	mirror, closeMirror, err := app.NewMirror(cfg.Cache, db)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize cache mirror")
	}
	defer closeMirror()

	fileCache, err := app.LoadCache(ctx, cfg.Cache, mirror)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load file cache")
	}
	// Flushes queued mirror writes before the mirror closes.
	defer fileCache.Close()

	remote, folders, err := app.NewRemote(ctx, cfg.Storage)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize remote storage")
	}

	// Initialize pipeline
	fs := afero.NewOsFs()
	rolls := repository.NewRollRepository(db)
	generator := report.NewGenerator(rolls, report.NewImageStore(fs, cfg.App.ImagesDir), report.Settings{
		Width:   cfg.Report.Width,
		Height:  cfg.Report.Height,
		StatsBy: cfg.Report.StatsBy,
	})
	runs := pipeline.NewRunRepository(db)

	orchestrator := pipeline.NewOrchestrator(
		remote,
		fileCache,
		importer.New(rolls, fs),
		generator,
		pipeline.Config{
			DataFolderID:    folders.Data,
			ReportsFolderID: folders.Reports,
			DownloadDir:     cfg.App.DownloadDir,
			Extensions:      cfg.Sync.Extensions,
			RetryFailed:     cfg.Sync.RetryFailed,
		},
		pipeline.WithFs(fs),
		pipeline.WithRunRecorder(runs),
	)
	scheduler := pipeline.NewScheduler(orchestrator, cfg.Sync.Interval, cfg.Sync.RunOnStart)

	// Initialize HTTP server
	router := api.NewRouter(&api.Services{
		SyncService:   service.NewSyncService(scheduler, fileCache, orchestrator, runs, generator),
		RemoteBrowser: drive.NewHandler(remote, folders.Data).Router(),
	}, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	scheduler.Start(ctx)

	// Start server in a goroutine
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error().Err(err).Msg("Failed to start server")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// ctx is already cancelled, so an in-flight cycle stops at its next check.
	scheduler.Stop()

	logger.Log.Info().Msg("Server exiting")
}
