package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/rs/zerolog/log"
)

// FileServiceProvider defines the interface for uploaded files.
type FileServiceProvider interface {
	Save(ctx context.Context, actor *models.User, filename string, content io.Reader) (models.StoredFile, error)
	Path(name string) (string, error)
}

// FileService stores admin uploads on local disk.
type FileService struct {
	uploadPath string
	events     EventServiceProvider
}

// NewFileService creates a new FileService.
func NewFileService(uploadPath string, events EventServiceProvider) *FileService {
	// Ensure the base directory for uploads exists
	if err := os.MkdirAll(uploadPath, 0o755); err != nil {
		log.Error().Err(err).Str("path", uploadPath).Msg("Failed to create upload directory")
	}
	return &FileService{uploadPath: uploadPath, events: events}
}

// Save writes content under a unique name derived from filename. Admin only.
func (s *FileService) Save(ctx context.Context, actor *models.User, filename string, content io.Reader) (models.StoredFile, error) {
	if !actor.IsAdmin() {
		return models.StoredFile{}, ErrForbidden
	}

	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || strings.TrimSpace(base) == "" {
		return models.StoredFile{}, &ValidationError{Fields: map[string]string{"file": "is required"}}
	}

	stored := models.StoredFile{
		Name:         uuid.New().String() + "-" + base,
		OriginalName: base,
	}
	path := filepath.Join(s.uploadPath, stored.Name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("could not create upload file: %w", err)
	}
	stored.Size, err = io.Copy(f, content)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path) // Clean up partial file
		return models.StoredFile{}, fmt.Errorf("failed to write upload: %w", err)
	}

	stored.URL = "/uploads/" + stored.Name
	recordEvent(ctx, s.events, "file.upload", "info", fmt.Sprintf("File '%s' uploaded (%d bytes).", base, stored.Size), 0)
	return stored, nil
}

// Path resolves a stored file name to its location on disk.
func (s *FileService) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("file %w", ErrNotFound)
	}
	path := filepath.Join(s.uploadPath, name)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return "", fmt.Errorf("file %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("could not stat upload: %w", err)
	}
	return path, nil
}
