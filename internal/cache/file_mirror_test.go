package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/rollstats/internal/config"
	"github.com/andresuchdata/rollstats/internal/domain"
)

func newTestMirror(t *testing.T) (*RedisMirror, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisMirrorWithClient(client, "test:files:"), srv
}

func TestRedisMirror_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m, srv := newTestMirror(t)

	t1 := time.Date(2024, 1, 1, 10, 0, 0, 123, time.UTC)
	t2 := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, m.Upsert(ctx, domain.RemoteFile{ID: "f2", Name: "feb.csv", ModifiedTime: t2, MimeType: "text/csv"}))
	require.NoError(t, m.Upsert(ctx, domain.RemoteFile{ID: "f1", Name: "jan.csv", ModifiedTime: t1}))
	require.NoError(t, m.Upsert(ctx, domain.RemoteFile{ID: "f1", Name: "jan-v2.csv", ModifiedTime: t2}))

	assert.True(t, srv.Exists("test:files:f1"))
	assert.Equal(t, "jan-v2.csv", srv.HGet("test:files:f1", "name"))

	files, err := m.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.RemoteFile{
		{ID: "f1", Name: "jan-v2.csv", ModifiedTime: t2},
		{ID: "f2", Name: "feb.csv", ModifiedTime: t2},
	}, files)

	require.NoError(t, m.Delete(ctx, "f1"))
	require.NoError(t, m.Delete(ctx, "f1"))
	files, err = m.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestRedisMirror_IgnoresOtherKeys(t *testing.T) {
	ctx := context.Background()
	m, srv := newTestMirror(t)
	require.NoError(t, srv.Set("other:key", "x"))
	require.NoError(t, m.Upsert(ctx, domain.RemoteFile{ID: "f1", Name: "a.csv", ModifiedTime: time.Now()}))

	require.NoError(t, m.Clear(ctx))

	files, err := m.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.True(t, srv.Exists("other:key"))
}

func TestRedisMirror_InvalidTimestamp(t *testing.T) {
	m, srv := newTestMirror(t)
	srv.HSet("test:files:bad", "name", "x.csv", "modified_time", "yesterday")

	_, err := m.ListAll(context.Background())
	assert.ErrorContains(t, err, "invalid modified time")
}

func TestRedisMirror_ServerDown(t *testing.T) {
	m, srv := newTestMirror(t)
	srv.Close()

	_, err := m.ListAll(context.Background())
	assert.Error(t, err)
	assert.Error(t, m.Upsert(context.Background(), domain.RemoteFile{ID: "f"}))
}

func TestBuildRedisOptions(t *testing.T) {
	opts, err := buildRedisOptions(config.CacheConfig{RedisHost: "redis", RedisPort: "6380", RedisDB: 2})
	require.NoError(t, err)
	assert.Equal(t, "redis:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	opts, err = buildRedisOptions(config.CacheConfig{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", opts.Addr)

	opts, err = buildRedisOptions(config.CacheConfig{RedisURL: "redis://:secret@cache:6379/3"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)

	_, err = buildRedisOptions(config.CacheConfig{RedisURL: "://bad"})
	assert.Error(t, err)
}

func TestNewRedisMirror_PingFails(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := NewRedisMirror(config.CacheConfig{RedisURL: "redis://" + addr})
	assert.ErrorContains(t, err, "redis ping failed")
}
