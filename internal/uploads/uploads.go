// Package uploads validates and stores uploaded documents on disk.
package uploads

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/docqa/config"
)

// ErrFileTooLarge is returned when an upload exceeds the configured maximum.
var ErrFileTooLarge = errors.New("uploads: file exceeds maximum size")

// ErrExtensionNotAllowed is returned for extensions outside the whitelist.
var ErrExtensionNotAllowed = errors.New("uploads: file extension not allowed")

// Storage writes accepted documents under a single directory, renamed to
// <uuid><ext> so original filenames never collide or escape the directory.
type Storage struct {
	dir      string
	maxBytes int64
	allowed  map[string]struct{}
}

func NewStorage(cfg config.UploadsConfig) (*Storage, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	return &Storage{dir: cfg.Dir, maxBytes: cfg.MaxBytes, allowed: allowed}, nil
}

// Validate checks filename extension and size without touching the disk.
// Callers run it before any side effect so rejected uploads leave no trace.
func (s *Storage) Validate(filename string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := s.allowed[ext]; !ok {
		return fmt.Errorf("%w: %q", ErrExtensionNotAllowed, ext)
	}
	if size > s.maxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, size, s.maxBytes)
	}
	return nil
}

// Save validates and writes the document, returning the generated file id and
// the name it was stored under.
func (s *Storage) Save(filename string, data []byte) (fileID, storedName string, err error) {
	if err := s.Validate(filename, int64(len(data))); err != nil {
		return "", "", err
	}
	fileID = uuid.NewString()
	storedName = fileID + strings.ToLower(filepath.Ext(filename))
	if err := os.WriteFile(filepath.Join(s.dir, storedName), data, 0o644); err != nil {
		return "", "", fmt.Errorf("save upload: %w", err)
	}
	return fileID, storedName, nil
}

// Path returns the on-disk location of a stored document.
func (s *Storage) Path(storedName string) string {
	return filepath.Join(s.dir, storedName)
}
