package storage

import (
	"context"
	"errors"
	"io"

	"github.com/andresuchdata/rollstats/internal/domain"
)

// ErrNotFound is returned when a remote file or folder does not exist.
var ErrNotFound = errors.New("remote object not found")

// Remote captures the folder-oriented operations the sync pipeline needs from a
// remote object store.
type Remote interface {
	// ListFiles returns the direct children of folderID.
	ListFiles(ctx context.Context, folderID string) ([]domain.RemoteFile, error)
	// DownloadFile streams the content of fileID into w.
	DownloadFile(ctx context.Context, fileID string, w io.Writer) error
	// UploadFile stores r as name inside folderID and returns the new file id.
	UploadFile(ctx context.Context, name string, r io.Reader, folderID string) (string, error)
	// FindFolder looks up a folder by name directly under parentID.
	FindFolder(ctx context.Context, name, parentID string) (string, bool, error)
	// CreateFolder creates a folder named name under parentID and returns its id.
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
}
