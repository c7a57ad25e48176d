package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalFileStorage implements FileStorage for local filesystem
type LocalFileStorage struct {
	basePath string
}

// NewLocalFileStorage creates a new local file storage
func NewLocalFileStorage(basePath string) (*LocalFileStorage, error) {
	// Ensure directory exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalFileStorage{basePath: basePath}, nil
}

// SaveFile writes the content to basePath/name and returns the file path
func (s *LocalFileStorage) SaveFile(ctx context.Context, file io.Reader, name string, contentType string) (string, error) {
	fullPath := filepath.Join(s.basePath, filepath.Base(name))

	// Partial writes stay under a dot-prefixed temp name
	tmp, err := os.CreateTemp(s.basePath, ".export-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file on disk: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to save file content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to save file content: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}

	return fullPath, nil
}
