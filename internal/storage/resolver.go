package storage

import (
	"context"
	"fmt"
)

type folderKey struct {
	name   string
	parent string
}

// FolderResolver resolves folders by get-or-create, remembering each
// (name, parent) pair it has resolved. Use one resolver per upload phase.
type FolderResolver struct {
	remote Remote
	root   string
	seen   map[folderKey]string
}

// NewFolderResolver returns a resolver whose empty parent means root.
func NewFolderResolver(remote Remote, root string) *FolderResolver {
	return &FolderResolver{
		remote: remote,
		root:   root,
		seen:   make(map[folderKey]string),
	}
}

// Resolve returns the id of folder name under parentID, creating it when absent.
func (r *FolderResolver) Resolve(ctx context.Context, name, parentID string) (string, error) {
	if parentID == "" {
		parentID = r.root
	}
	key := folderKey{name: name, parent: parentID}
	if id, ok := r.seen[key]; ok {
		return id, nil
	}

	id, found, err := r.remote.FindFolder(ctx, name, parentID)
	if err != nil {
		return "", fmt.Errorf("find folder %s: %w", name, err)
	}
	if !found {
		id, err = r.remote.CreateFolder(ctx, name, parentID)
		if err != nil {
			return "", fmt.Errorf("create folder %s: %w", name, err)
		}
	}
	r.seen[key] = id
	return id, nil
}

// ResolvePath resolves each path element in turn starting at root.
func (r *FolderResolver) ResolvePath(ctx context.Context, names ...string) (string, error) {
	parent := r.root
	for _, name := range names {
		id, err := r.Resolve(ctx, name, parent)
		if err != nil {
			return "", err
		}
		parent = id
	}
	return parent, nil
}
