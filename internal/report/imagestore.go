package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

var unsafeFileChars = regexp.MustCompile(`(?i)[^a-z0-9]`)

// CleanFileName replaces every character outside [a-z0-9] with '_' and lower-cases the result.
func CleanFileName(name string) string {
	return strings.ToLower(unsafeFileChars.ReplaceAllString(name, "_"))
}

// uniqueFileName cleans name and adds a _2, _3... suffix when another plot
// of the same run already took the cleaned name.
func uniqueFileName(used map[string]bool, name string) string {
	base := CleanFileName(name)
	clean := base
	for n := 2; used[clean]; n++ {
		clean = fmt.Sprintf("%s_%d", base, n)
	}
	used[clean] = true
	return clean
}

// ImageStore keeps generated charts under <root>/<report>/<file>.png.
type ImageStore struct {
	fs   afero.Fs
	root string
}

func NewImageStore(fs afero.Fs, root string) *ImageStore {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &ImageStore{fs: fs, root: root}
}

func (s *ImageStore) Root() string { return s.root }

func (s *ImageStore) Fs() afero.Fs { return s.fs }

// Write stores data as the PNG for name under the report's directory and returns its path.
func (s *ImageStore) Write(report, name string, data []byte) (string, error) {
	dir := filepath.Join(s.root, report)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, CleanFileName(name)+".png")
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image %s: %w", path, err)
	}
	return path, nil
}

// List returns every stored image path, sorted.
func (s *ImageStore) List() ([]string, error) {
	var paths []string
	err := afero.Walk(s.fs, s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.root {
				return nil
			}
			return err
		}
		if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".png") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ReportOf returns the report directory name an image path belongs to.
func (s *ImageStore) ReportOf(path string) string {
	return filepath.Base(filepath.Dir(path))
}

func (s *ImageStore) Open(path string) (afero.File, error) {
	return s.fs.Open(path)
}

// Clean removes all generated images. Cleaning an empty store is a no-op.
func (s *ImageStore) Clean() error {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read image dir: %w", err)
	}
	for _, e := range entries {
		if err := s.fs.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}
	return nil
}
