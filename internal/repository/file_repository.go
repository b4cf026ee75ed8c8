package repository

import (
	"context"
	"fmt"

	"github.com/andresuchdata/rollstats/internal/domain"
)

// FileRepository is the relational mirror of the file cache: one row per remote file.
type FileRepository struct {
	db *DB
}

func NewFileRepository(db *DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) ListAll(ctx context.Context) ([]domain.RemoteFile, error) {
	var files []domain.RemoteFile
	err := r.db.SelectContext(ctx, &files, `SELECT id, name, modified_time FROM files ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	for i := range files {
		files[i].ModifiedTime = files[i].ModifiedTime.UTC()
	}
	return files, nil
}

func (r *FileRepository) Upsert(ctx context.Context, file domain.RemoteFile) error {
	query := r.db.Rebind(`
		INSERT INTO files (id, name, modified_time)
		VALUES (?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, modified_time = EXCLUDED.modified_time
	`)
	if _, err := r.db.ExecContext(ctx, query, file.ID, file.Name, file.ModifiedTime.UTC()); err != nil {
		return fmt.Errorf("failed to upsert file %s: %w", file.ID, err)
	}
	return nil
}

func (r *FileRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM files WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", id, err)
	}
	return nil
}
