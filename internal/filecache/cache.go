// Package filecache remembers which remote files have already been processed
// and at which version, so a sync cycle only picks up new or changed files.
package filecache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/rollstats/internal/domain"
	"github.com/andresuchdata/rollstats/pkg/logger"
	"github.com/rs/zerolog"
)

const defaultMirrorTimeout = 10 * time.Second

type opKind int

const (
	opUpsert opKind = iota
	opDelete
)

type mirrorOp struct {
	kind opKind
	file domain.RemoteFile
}

// Cache is the in-memory view of processed remote files. Reads never touch the
// mirror; writes are applied in memory first and then copied to the mirror by a
// single background writer in enqueue order.
type Cache struct {
	mu    sync.RWMutex
	files map[string]domain.RemoteFile

	mirror        Mirror
	mirrorTimeout time.Duration
	now           func() time.Time
	log           zerolog.Logger

	qmu     sync.Mutex
	pending []mirrorOp
	closed  bool
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Option customises a Cache.
type Option func(*Cache)

// WithMirrorTimeout bounds each mirror write.
func WithMirrorTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.mirrorTimeout = d
		}
	}
}

// WithClock overrides the clock used when a record carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New loads every persisted record from mirror and starts the mirror writer.
// The cache is fully populated when New returns.
func New(ctx context.Context, mirror Mirror, opts ...Option) (*Cache, error) {
	if mirror == nil {
		mirror = NoopMirror{}
	}

	c := &Cache{
		files:         make(map[string]domain.RemoteFile),
		mirror:        mirror,
		mirrorTimeout: defaultMirrorTimeout,
		now:           time.Now,
		log:           logger.Component("filecache"),
		wake:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.log.Info().Msg("syncing cache")
	records, err := mirror.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load file cache: %w", err)
	}
	for _, rec := range records {
		c.files[rec.ID] = rec
	}
	c.log.Info().Int("files", len(c.files)).Msg("found files in cache")

	go c.writer()

	return c, nil
}

// HasFile reports whether a record exists for id.
func (c *Cache) HasFile(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.files[id]
	return ok
}

// IsNewer reports whether candidate is strictly more recent than the cached
// record with the same id. A file without a record counts as newer.
func (c *Cache) IsNewer(candidate domain.RemoteFile) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.files[candidate.ID]
	if !ok {
		return true
	}
	return cached.ModifiedTime.Before(candidate.ModifiedTime)
}

// Upsert records file in memory and queues a mirror write.
func (c *Cache) Upsert(file domain.RemoteFile) {
	if file.ModifiedTime.IsZero() {
		file.ModifiedTime = c.now().UTC()
	}
	record := domain.RemoteFile{ID: file.ID, Name: file.Name, ModifiedTime: file.ModifiedTime}

	c.mu.Lock()
	c.files[record.ID] = record
	c.mu.Unlock()

	c.enqueue(mirrorOp{kind: opUpsert, file: record})
}

// Remove forgets id and queues a best-effort mirror delete.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	delete(c.files, id)
	c.mu.Unlock()

	c.enqueue(mirrorOp{kind: opDelete, file: domain.RemoteFile{ID: id}})
}

// Get returns the cached record for id.
func (c *Cache) Get(id string) (domain.RemoteFile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.files[id]
	return f, ok
}

// Files returns a copy of all records ordered by name, then id.
func (c *Cache) Files() []domain.RemoteFile {
	c.mu.RLock()
	out := make([]domain.RemoteFile, 0, len(c.files))
	for _, f := range c.files {
		out = append(out, f)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of tracked files.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.files)
}

// Close applies every queued mirror write and stops the writer.
// Mutations after Close only change the in-memory view.
func (c *Cache) Close() {
	c.once.Do(func() {
		c.qmu.Lock()
		c.closed = true
		c.qmu.Unlock()
		close(c.stop)
	})
	<-c.done
}

func (c *Cache) enqueue(op mirrorOp) {
	c.qmu.Lock()
	if c.closed {
		c.qmu.Unlock()
		c.log.Warn().Str("id", op.file.ID).Msg("cache closed, mirror write dropped")
		return
	}
	c.pending = append(c.pending, op)
	c.qmu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Cache) writer() {
	defer close(c.done)
	for {
		select {
		case <-c.wake:
			c.drain()
		case <-c.stop:
			c.drain()
			return
		}
	}
}

func (c *Cache) drain() {
	for {
		c.qmu.Lock()
		batch := c.pending
		c.pending = nil
		c.qmu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, op := range batch {
			c.apply(op)
		}
	}
}

func (c *Cache) apply(op mirrorOp) {
	ctx, cancel := context.WithTimeout(context.Background(), c.mirrorTimeout)
	defer cancel()

	var err error
	switch op.kind {
	case opUpsert:
		err = c.mirror.Upsert(ctx, op.file)
	case opDelete:
		err = c.mirror.Delete(ctx, op.file.ID)
	}
	if err != nil {
		c.log.Error().Err(err).Str("id", op.file.ID).Msg("mirror write failed")
	}
}
