package drive

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"github.com/andresuchdata/rollstats/internal/storage"
	"github.com/andresuchdata/rollstats/pkg/logger"
)

// Handler exposes read-only browsing of the remote store.
type Handler struct {
	remote        storage.Remote
	defaultFolder string
}

func NewHandler(remote storage.Remote, defaultFolder string) *Handler {
	return &Handler{
		remote:        remote,
		defaultFolder: defaultFolder,
	}
}

// Router returns a mux router with the browse routes registered.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return router
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/drive/files", h.ListFiles).Methods("GET")
	router.HandleFunc("/api/drive/files/download", h.DownloadFile).Methods("GET")
}

func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	folderID := r.URL.Query().Get("folderId")
	if folderID == "" {
		folderID = h.defaultFolder
	}

	files, err := h.remote.ListFiles(r.Context(), folderID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(files); err != nil {
		logger.Log.Error().Err(err).Msg("failed to encode file listing")
	}
}

func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	fileID := query.Get("fileId")
	if fileID == "" {
		http.Error(w, "fileId parameter is required", http.StatusBadRequest)
		return
	}

	name := query.Get("name")
	if name == "" {
		name = filepath.Base(fileID)
	}
	contentType := contentTypeFor(name)

	// Headers are only committed once the first byte is written, so an early
	// download error still produces a proper status.
	hw := &headerWriter{ResponseWriter: w, header: func() {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	}}
	if err := h.remote.DownloadFile(r.Context(), fileID, hw); err != nil {
		if hw.wrote {
			logger.Log.Error().Err(err).Str("file_id", fileID).Msg("download interrupted")
			return
		}
		writeError(w, err)
	}
}

type headerWriter struct {
	http.ResponseWriter
	header func()
	wrote  bool
}

func (w *headerWriter) Write(p []byte) (int, error) {
	if !w.wrote {
		w.wrote = true
		w.header()
	}
	return w.ResponseWriter.Write(p)
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".csv" {
		return "text/csv"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthorized):
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}
