package storage

import (
	"context"
	"io"
)

// FileStorage receives archive exports
type FileStorage interface {
	// SaveFile stores the content under name and returns where it landed
	SaveFile(ctx context.Context, file io.Reader, name string, contentType string) (string, error)
}
