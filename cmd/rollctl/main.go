package main

import (
	"context"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/rollstats/internal/app"
	"github.com/andresuchdata/rollstats/internal/config"
	"github.com/andresuchdata/rollstats/internal/repository"
	"github.com/andresuchdata/rollstats/internal/types"
	"github.com/andresuchdata/rollstats/pkg/logger"
)

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-url",
		Usage:   "Postgres connection string; defaults to the DB_* settings",
		EnvVars: []string{"DATABASE_URL"},
	}
}

func initDB(c *cli.Context) error {
	var (
		db  *repository.DB
		err error
	)
	if url := c.String("db-url"); url != "" {
		raw, openErr := sqlx.Open("pgx", url)
		if openErr != nil {
			return fmt.Errorf("failed to connect to database: %w", openErr)
		}
		if err := raw.PingContext(c.Context); err != nil {
			raw.Close()
			return fmt.Errorf("failed to ping database: %w", err)
		}
		db = repository.Wrap(raw)
		if err := db.Migrate(c.Context); err != nil {
			db.Close()
			return err
		}
	} else {
		db, err = app.OpenDB(c.Context, &config.Load().Database)
		if err != nil {
			return err
		}
	}

	// Store the database connection in the context
	c.Context = context.WithValue(c.Context, types.DBKey, db)
	return nil
}

func closeDB(c *cli.Context) error {
	if db, ok := c.Context.Value(types.DBKey).(*repository.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func dbFrom(c *cli.Context) (*repository.DB, error) {
	db, ok := c.Context.Value(types.DBKey).(*repository.DB)
	if !ok || db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return db, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "rollctl",
		Usage: "Import roll exports, render reports and manage the sync cache",
		Flags: []cli.Flag{
			newDBURLFlag(),
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.SetLevel(c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Import CSV or XLSX roll exports",
				ArgsUsage: "<file>...",
				Before:    initDB,
				After:     closeDB,
				Action:    runImport,
			},
			{
				Name:  "plot",
				Usage: "Render one report",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Report name (see plots)", Required: true},
					&cli.StringSliceFlag{Name: "option", Usage: "Report option as key=value"},
					imagesDirFlag(),
				},
				Before: initDB,
				After:  closeDB,
				Action: runPlot,
			},
			{
				Name:   "plots",
				Usage:  "List reports and their options",
				Action: runPlots,
			},
			{
				Name:  "clean",
				Usage: "Delete imported rolls and generated images",
				Flags: []cli.Flag{
					imagesDirFlag(),
				},
				Before: initDB,
				After:  closeDB,
				Action: runClean,
			},
			{
				Name:   "sync",
				Usage:  "Run one sync cycle against the configured remote storage",
				Before: initDB,
				After:  closeDB,
				Action: runSync,
			},
			{
				Name:   "history",
				Usage:  "Show recent sync cycles",
				Flags:  []cli.Flag{&cli.IntFlag{Name: "limit", Value: 10}},
				Before: initDB,
				After:  closeDB,
				Action: runHistory,
			},
			{
				Name:  "cache",
				Usage: "Inspect the change-detection cache",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List tracked files",
						Before: initDB,
						After:  closeDB,
						Action: runCacheList,
					},
					{
						Name:      "remove",
						Usage:     "Forget a tracked file so the next sync processes it again",
						ArgsUsage: "<file id>...",
						Before:    initDB,
						After:     closeDB,
						Action:    runCacheRemove,
					},
				},
			},
		},
	}
}

func imagesDirFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "images-dir",
		Usage:   "Directory generated images are written to",
		Value:   "./images",
		EnvVars: []string{"APP_IMAGES_DIR"},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("rollctl failed")
	}
}
