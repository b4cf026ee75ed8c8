// Package app builds the shared components from configuration for the
// server and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/andresuchdata/rollstats/internal/cache"
	"github.com/andresuchdata/rollstats/internal/config"
	"github.com/andresuchdata/rollstats/internal/domain"
	"github.com/andresuchdata/rollstats/internal/drive"
	"github.com/andresuchdata/rollstats/internal/filecache"
	"github.com/andresuchdata/rollstats/internal/repository"
	"github.com/andresuchdata/rollstats/internal/repository/postgres"
	"github.com/andresuchdata/rollstats/internal/repository/sqlite"
	"github.com/andresuchdata/rollstats/internal/storage"
	"github.com/andresuchdata/rollstats/pkg/logger"
)

// Folders are the remote locations the pipeline reads from and writes to.
type Folders struct {
	Data    string
	Reports string
}

// OpenDB connects to the configured database and creates missing tables.
func OpenDB(ctx context.Context, cfg *config.DatabaseConfig) (*repository.DB, error) {
	var (
		db  *repository.DB
		err error
	)
	switch cfg.Driver {
	case config.DBDriverSQLite:
		db, err = sqlite.Open(cfg.SQLitePath)
	default:
		db, err = postgres.NewDB(cfg)
	}
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewMirror returns the durable store behind the file cache and a func to
// release it.
func NewMirror(cfg config.CacheConfig, db *repository.DB) (filecache.Mirror, func() error, error) {
	switch cfg.MirrorDriver {
	case config.MirrorRedis:
		m, err := cache.NewRedisMirror(cfg)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	default:
		return repository.NewFileRepository(db), func() error { return nil }, nil
	}
}

// skipLoadMirror hides the stored records but keeps writing through.
type skipLoadMirror struct {
	filecache.Mirror
}

func (skipLoadMirror) ListAll(context.Context) ([]domain.RemoteFile, error) {
	return nil, nil
}

// LoadCache builds the file cache from mirror. A load failure is returned
// unless cfg.LoadOptional is set, in which case the cache starts empty and
// still writes through to mirror.
func LoadCache(ctx context.Context, cfg config.CacheConfig, mirror filecache.Mirror) (*filecache.Cache, error) {
	c, err := filecache.New(ctx, mirror)
	if err == nil || !cfg.LoadOptional {
		return c, err
	}

	logger.Log.Warn().Err(err).Msg("file cache could not be loaded, starting empty")
	return filecache.New(ctx, skipLoadMirror{mirror})
}

// NewRemote connects to the configured storage backend.
func NewRemote(ctx context.Context, cfg config.StorageConfig) (storage.Remote, Folders, error) {
	switch cfg.Backend {
	case config.StorageMinio:
		m := cfg.Minio
		client, err := storage.NewMinioClient(storage.MinioConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			Region:    m.Region,
			UseSSL:    m.UseSSL,
		})
		if err != nil {
			return nil, Folders{}, err
		}
		logger.Log.Info().Str("bucket", m.Bucket).Msg("using minio storage")
		return client, Folders{
			Data:    storage.FolderID(m.DataPrefix),
			Reports: storage.FolderID(m.ReportsPrefix),
		}, nil
	default:
		creds, err := cfg.Drive.DriveCredentials()
		if err != nil {
			return nil, Folders{}, err
		}
		client, err := drive.NewClient(ctx, creds)
		if err != nil {
			return nil, Folders{}, fmt.Errorf("init google drive: %w", err)
		}
		logger.Log.Info().Str("folder", cfg.Drive.DataFolderID).Msg("using google drive storage")
		return client, Folders{
			Data:    cfg.Drive.DataFolderID,
			Reports: cfg.Drive.ReportsFolderID,
		}, nil
	}
}
