package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/andresuchdata/rollstats/internal/domain"
)

type upload struct {
	FolderID string
	Name     string
	Content  string
}

// fakeRemote is an in-memory remote store. Folder ids are slash-joined paths.
type fakeRemote struct {
	mu        sync.Mutex
	files     []domain.RemoteFile
	contents  map[string][]byte
	listErr   error
	listCalls int

	downloadErr map[string]error
	// uploadFailures counts how many upload attempts of a file name fail.
	uploadFailures map[string]int
	uploadCalls    map[string]int
	uploads        []upload

	folders     map[string]bool
	findCalls   int
	createCalls int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		contents:       make(map[string][]byte),
		downloadErr:    make(map[string]error),
		uploadFailures: make(map[string]int),
		uploadCalls:    make(map[string]int),
		folders:        make(map[string]bool),
	}
}

func (r *fakeRemote) put(file domain.RemoteFile, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.files {
		if f.ID == file.ID {
			r.files[i] = file
			r.contents[file.ID] = []byte(content)
			return
		}
	}
	r.files = append(r.files, file)
	r.contents[file.ID] = []byte(content)
}

func (r *fakeRemote) ListFiles(_ context.Context, _ string) ([]domain.RemoteFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]domain.RemoteFile(nil), r.files...), nil
}

func (r *fakeRemote) DownloadFile(_ context.Context, fileID string, w io.Writer) error {
	r.mu.Lock()
	err := r.downloadErr[fileID]
	data, ok := r.contents[fileID]
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no such file %s", fileID)
	}
	_, err = w.Write(data)
	return err
}

func (r *fakeRemote) UploadFile(_ context.Context, name string, rd io.Reader, folderID string) (string, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploadCalls[name]++
	if r.uploadFailures[name] > 0 {
		r.uploadFailures[name]--
		return "", errors.New("upload refused")
	}
	r.uploads = append(r.uploads, upload{FolderID: folderID, Name: name, Content: string(data)})
	return path.Join(folderID, name), nil
}

func (r *fakeRemote) FindFolder(_ context.Context, name, parentID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	id := path.Join(parentID, name)
	return id, r.folders[id], nil
}

func (r *fakeRemote) CreateFolder(_ context.Context, name, parentID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	id := path.Join(parentID, name)
	r.folders[id] = true
	return id, nil
}

func (r *fakeRemote) uploaded() []upload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]upload(nil), r.uploads...)
}

// fakeImporter records imported files and reads them from fs.
type fakeImporter struct {
	mu       sync.Mutex
	fs       afero.Fs
	imported []string
	contents []string
	cleans   int
	failOn   map[string]error
	panicOn  string
}

func (f *fakeImporter) Import(_ context.Context, p string) error {
	if f.panicOn != "" && filepath.Base(p) == f.panicOn {
		panic("corrupt row")
	}
	data, err := afero.ReadFile(f.fs, p)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[filepath.Base(p)]; err != nil {
		return err
	}
	f.imported = append(f.imported, p)
	f.contents = append(f.contents, string(data))
	return nil
}

func (f *fakeImporter) Clean(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleans++
	return nil
}

// fakeReports writes one small image per configured plot.
type fakeReports struct {
	mu     sync.Mutex
	fs     afero.Fs
	root   string
	plots  []string // "<report>/<name>"
	err    error
	runs   int
	cleans int
}

func (f *fakeReports) RegenerateAll(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	if f.err != nil {
		return nil, f.err
	}
	var paths []string
	for _, p := range f.plots {
		full := filepath.Join(f.root, p+".png")
		if err := f.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, err
		}
		if err := afero.WriteFile(f.fs, full, []byte("png:"+p), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, full)
	}
	return paths, nil
}

func (f *fakeReports) Clean(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleans++
	return f.fs.RemoveAll(f.root)
}

type fakeRecorder struct {
	mu      sync.Mutex
	reports []*CycleReport
}

func (f *fakeRecorder) Record(_ context.Context, r *CycleReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return nil
}
