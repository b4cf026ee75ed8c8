// internal/domain/models.go
package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// FolderMimeType marks a Drive entry as a folder.
const FolderMimeType = "application/vnd.google-apps.folder"

// RemoteFile is one entry of the watched remote folder.
type RemoteFile struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	ModifiedTime time.Time `json:"modified_time" db:"modified_time"`
	MimeType     string    `json:"mime_type,omitempty" db:"-"`
	Size         int64     `json:"size,omitempty" db:"-"`
}

// IsFolder reports whether the entry is a folder rather than a data file.
func (f RemoteFile) IsFolder() bool {
	return f.MimeType == FolderMimeType
}

// Ext returns the lower-cased file extension including the dot.
func (f RemoteFile) Ext() string {
	return strings.ToLower(filepath.Ext(f.Name))
}

// User is a player whose rolls are imported.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Roll is a single d12 roll.
type Roll struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	UserName  string    `json:"user_name,omitempty" db:"user_name"`
	Value     int       `json:"value" db:"value"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
