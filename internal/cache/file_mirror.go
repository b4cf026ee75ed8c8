package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/rollstats/internal/config"
	"github.com/andresuchdata/rollstats/internal/domain"
	"github.com/andresuchdata/rollstats/internal/filecache"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "rollstats:files"
	scanBatch     = 200

	fieldName     = "name"
	fieldModified = "modified_time"
)

// RedisMirror persists file cache records as one hash per file id under a key prefix.
type RedisMirror struct {
	client *redis.Client
	prefix string
}

// NewRedisMirror connects to redis and returns a mirror for cfg.RedisPrefix.
func NewRedisMirror(cfg config.CacheConfig) (*RedisMirror, error) {
	client, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewRedisMirrorWithClient(client, cfg.RedisPrefix), nil
}

func NewRedisMirrorWithClient(client *redis.Client, prefix string) *RedisMirror {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisMirror{client: client, prefix: prefix + ":"}
}

func (m *RedisMirror) key(id string) string {
	return m.prefix + id
}

// ListAll loads every stored record, sorted by id.
func (m *RedisMirror) ListAll(ctx context.Context) ([]domain.RemoteFile, error) {
	keys, err := scanKeys(ctx, m.client, m.prefix, scanBatch)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	pipe := m.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis load files failed: %w", err)
	}

	files := make([]domain.RemoteFile, 0, len(keys))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		modified, err := time.Parse(time.RFC3339Nano, fields[fieldModified])
		if err != nil {
			return nil, fmt.Errorf("redis file %s has invalid modified time: %w", keys[i], err)
		}
		files = append(files, domain.RemoteFile{
			ID:           strings.TrimPrefix(keys[i], m.prefix),
			Name:         fields[fieldName],
			ModifiedTime: modified.UTC(),
		})
	}
	return files, nil
}

func (m *RedisMirror) Upsert(ctx context.Context, file domain.RemoteFile) error {
	err := m.client.HSet(ctx, m.key(file.ID),
		fieldName, file.Name,
		fieldModified, file.ModifiedTime.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("redis upsert file %s failed: %w", file.ID, err)
	}
	return nil
}

func (m *RedisMirror) Delete(ctx context.Context, id string) error {
	if err := m.client.Del(ctx, m.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete file %s failed: %w", id, err)
	}
	return nil
}

// Clear removes every record under the mirror prefix.
func (m *RedisMirror) Clear(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, m.client, m.prefix, scanBatch)
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}

var _ filecache.Mirror = (*RedisMirror)(nil)
