// Package storage persists raw submission bytes under deterministic names.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound indicates the stored object does not exist.
var ErrNotFound = errors.New("stored object not found")

// ContentStore saves uploads and reopens them by the returned path.
// Saving an existing name overwrites it.
type ContentStore interface {
	Save(ctx context.Context, name string, reader io.Reader, size int64) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}
