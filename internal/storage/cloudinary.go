package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AssetUploader uploads a named asset and returns its public URL.
type AssetUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// CloudinaryStore keeps uploads on Cloudinary. The stored path is the secure URL.
type CloudinaryStore struct {
	uploader AssetUploader
	client   *http.Client
}

// NewCloudinaryStore wraps an uploader. A nil client uses a 30 second timeout.
func NewCloudinaryStore(uploader AssetUploader, client *http.Client) *CloudinaryStore {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CloudinaryStore{uploader: uploader, client: client}
}

func (s *CloudinaryStore) Save(ctx context.Context, name string, reader io.Reader, _ int64) (string, error) {
	url, err := s.uploader.Upload(ctx, name, reader)
	if err != nil {
		return "", err
	}
	return url, nil
}

func (s *CloudinaryStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNotFound
	case resp.StatusCode >= http.StatusBadRequest:
		resp.Body.Close()
		return nil, fmt.Errorf("fetch asset: unexpected status %d", resp.StatusCode)
	}

	return resp.Body, nil
}
