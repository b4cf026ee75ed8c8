package filecache

import (
	"context"

	"github.com/andresuchdata/rollstats/internal/domain"
)

// Mirror is the durable store behind the cache. It is only read at startup;
// afterwards it receives a best-effort copy of every cache mutation.
type Mirror interface {
	ListAll(ctx context.Context) ([]domain.RemoteFile, error)
	Upsert(ctx context.Context, file domain.RemoteFile) error
	Delete(ctx context.Context, id string) error
}

// NoopMirror keeps nothing. Used when durability is not wanted (tests, dry runs).
type NoopMirror struct{}

func (NoopMirror) ListAll(context.Context) ([]domain.RemoteFile, error) { return nil, nil }

func (NoopMirror) Upsert(context.Context, domain.RemoteFile) error { return nil }

func (NoopMirror) Delete(context.Context, string) error { return nil }

var _ Mirror = NoopMirror{}
