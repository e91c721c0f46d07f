package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/telemed-portal/internal/auth"
	"github.com/isdelr/telemed-portal/internal/services"
	"github.com/rs/zerolog/log"
)

// MaxUploadSize caps a single upload.
const MaxUploadSize = 10 << 20

// FileHandler serves the downloadable cheat sheet and admin uploads.
type FileHandler struct {
	service   services.FileServiceProvider
	staticDir string
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(service services.FileServiceProvider, staticDir string) *FileHandler {
	return &FileHandler{service: service, staticDir: staticDir}
}

// Download serves the cheat sheet as an attachment.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.staticDir, "files", "cheat_sheet.pdf")
	if _, err := os.Stat(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Cheat sheet missing")
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="cheat_sheet.pdf"`)
	http.ServeFile(w, r, path)
}

// Upload handles a multipart upload in the "file" field.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	if header.Size > MaxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	stored, err := h.service.Save(r.Context(), auth.CurrentUser(r.Context()), header.Filename, file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// ServeUpload serves a previously uploaded file.
func (h *FileHandler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	path, err := h.service.Path(chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	http.ServeFile(w, r, path)
}
