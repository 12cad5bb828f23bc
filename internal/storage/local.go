package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// LocalStore keeps uploads in a directory of an afero filesystem.
type LocalStore struct {
	fs     afero.Fs
	root   string
	logger zerolog.Logger
}

// NewLocalStore creates the root directory when missing.
func NewLocalStore(fs afero.Fs, root string, logger zerolog.Logger) (*LocalStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	root = filepath.Clean(root)
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	return &LocalStore{
		fs:     fs,
		root:   root,
		logger: logger.With().Str("component", "local_store").Logger(),
	}, nil
}

// Save writes to a temporary sibling then renames it into place.
func (s *LocalStore) Save(ctx context.Context, name string, reader io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	base := filepath.Base(filepath.Clean(name))
	if base == "." || base == string(filepath.Separator) || base == ".." {
		return "", fmt.Errorf("invalid storage name %q", name)
	}
	target := filepath.Join(s.root, base)

	tmp, err := afero.TempFile(s.fs, s.root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	written, copyErr := io.Copy(tmp, reader)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = s.fs.Remove(tmpName)
		if copyErr != nil {
			return "", fmt.Errorf("write upload: %w", copyErr)
		}
		return "", fmt.Errorf("close upload: %w", closeErr)
	}
	if size >= 0 && written != size {
		_ = s.fs.Remove(tmpName)
		return "", fmt.Errorf("short write: expected %d bytes, wrote %d", size, written)
	}

	if err := s.fs.Rename(tmpName, target); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", fmt.Errorf("move upload into place: %w", err)
	}

	s.logger.Debug().Str("path", target).Int64("bytes", written).Msg("upload stored")
	return target, nil
}

// Open returns the file at path. Paths outside the root are treated as missing.
func (s *LocalStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cleaned := filepath.Clean(path)
	if !strings.HasPrefix(cleaned, s.root+string(filepath.Separator)) {
		return nil, ErrNotFound
	}

	file, err := s.fs.Open(cleaned)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return file, nil
}
