package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/rollstats/internal/cache"
	"github.com/andresuchdata/rollstats/internal/config"
	"github.com/andresuchdata/rollstats/internal/domain"
	"github.com/andresuchdata/rollstats/internal/repository"
	"github.com/andresuchdata/rollstats/internal/storage"
)

func openSQLite(t *testing.T) *repository.DB {
	t.Helper()
	db, err := OpenDB(context.Background(), &config.DatabaseConfig{
		Driver:     config.DBDriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "app.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenDB_SQLiteMigrates(t *testing.T) {
	db := openSQLite(t)

	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM sync_runs"))
	assert.Zero(t, n)
}

func TestNewMirror_Database(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	mirror, closeFn, err := NewMirror(config.CacheConfig{MirrorDriver: config.MirrorDatabase}, db)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &repository.FileRepository{}, mirror)

	modified := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, mirror.Upsert(ctx, domain.RemoteFile{ID: "f1", Name: "jan.csv", ModifiedTime: modified}))
	files, err := mirror.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "jan.csv", files[0].Name)
}

func TestNewMirror_Redis(t *testing.T) {
	srv := miniredis.RunT(t)

	mirror, closeFn, err := NewMirror(config.CacheConfig{
		MirrorDriver: config.MirrorRedis,
		RedisURL:     "redis://" + srv.Addr(),
		RedisPrefix:  "rollstats:files",
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &cache.RedisMirror{}, mirror)
	assert.NoError(t, closeFn())
}

type unreadableMirror struct {
	mu      sync.Mutex
	upserts []string
}

func (m *unreadableMirror) ListAll(context.Context) ([]domain.RemoteFile, error) {
	return nil, errors.New("connection refused")
}

func (m *unreadableMirror) Upsert(_ context.Context, f domain.RemoteFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, f.ID)
	return nil
}

func (m *unreadableMirror) Delete(context.Context, string) error { return nil }

func TestLoadCache_FailureIsFatalByDefault(t *testing.T) {
	_, err := LoadCache(context.Background(), config.CacheConfig{}, &unreadableMirror{})
	assert.ErrorContains(t, err, "connection refused")
}

func TestLoadCache_OptionalStartsEmpty(t *testing.T) {
	mirror := &unreadableMirror{}
	c, err := LoadCache(context.Background(), config.CacheConfig{LoadOptional: true}, mirror)
	require.NoError(t, err)
	assert.Zero(t, c.Len())

	c.Upsert(domain.RemoteFile{ID: "f1", Name: "jan.csv", ModifiedTime: time.Now()})
	c.Close()

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	assert.Equal(t, []string{"f1"}, mirror.upserts, "writes still reach the mirror")
}

func TestNewRemote_Minio(t *testing.T) {
	remote, folders, err := NewRemote(context.Background(), config.StorageConfig{
		Backend: config.StorageMinio,
		Minio: config.MinioConfig{
			Endpoint:      "localhost:9000",
			AccessKey:     "key",
			SecretKey:     "secret",
			Bucket:        "rolls",
			DataPrefix:    "data",
			ReportsPrefix: "/graphs/",
		},
	})
	require.NoError(t, err)
	assert.IsType(t, &storage.MinioClient{}, remote)
	assert.Equal(t, Folders{Data: "data/", Reports: "graphs/"}, folders)
}

func TestNewRemote_DriveMissingCredentials(t *testing.T) {
	_, _, err := NewRemote(context.Background(), config.StorageConfig{
		Backend: config.StorageDrive,
		Drive:   config.DriveConfig{CredentialsFile: filepath.Join(t.TempDir(), "missing.json")},
	})
	assert.ErrorContains(t, err, "read drive credentials")
}

func TestNewRemote_DriveInvalidCredentials(t *testing.T) {
	_, _, err := NewRemote(context.Background(), config.StorageConfig{
		Backend: config.StorageDrive,
		Drive:   config.DriveConfig{CredentialsJSON: "{not json"},
	})
	assert.Error(t, err)
}
