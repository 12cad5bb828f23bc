package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-portal/internal/capability"
	"github.com/noah-isme/gema-portal/internal/dto"
	"github.com/noah-isme/gema-portal/internal/intake"
	"github.com/noah-isme/gema-portal/internal/models"
	"github.com/noah-isme/gema-portal/internal/repository"
	"github.com/noah-isme/gema-portal/internal/storage"
	"github.com/noah-isme/gema-portal/pkg/extract"
)

var (
	// ErrPreviewUnavailable indicates the preview capability is switched off.
	ErrPreviewUnavailable = errors.New("file preview not available")
	// ErrPreviewUnsupported indicates the stored file cannot be previewed.
	ErrPreviewUnsupported = errors.New("preview not supported for this file type")
)

const (
	previewExcerptRunes   = 3000
	defaultThumbnailWidth = 320
	maxThumbnailWidth     = 1024
	minThumbnailWidth     = 32
)

var imageExtensions = map[string]struct{}{"png": {}, "jpg": {}, "jpeg": {}}

// PreviewService renders previews of stored submissions.
type PreviewService interface {
	Preview(ctx context.Context, id uint, actor Actor) (dto.PreviewResponse, error)
	Thumbnail(ctx context.Context, id uint, actor Actor, width int) (Download, error)
}

type previewService struct {
	submissions  repository.SubmissionRepository
	content      storage.ContentStore
	capabilities capability.Checker
	maxBytes     int64
	policy       *bluemonday.Policy
	logger       zerolog.Logger
}

// NewPreviewService constructs the preview service. maxBytes bounds how much
// of a stored file is read.
func NewPreviewService(submissions repository.SubmissionRepository, content storage.ContentStore, capabilities capability.Checker, maxBytes int64, logger zerolog.Logger) PreviewService {
	if maxBytes <= 0 {
		maxBytes = intake.DefaultMaxBytes
	}
	return &previewService{
		submissions:  submissions,
		content:      content,
		capabilities: capabilities,
		maxBytes:     maxBytes,
		policy:       bluemonday.UGCPolicy(),
		logger:       logger.With().Str("component", "preview_service").Logger(),
	}
}

func (s *previewService) Preview(ctx context.Context, id uint, actor Actor) (dto.PreviewResponse, error) {
	submission, err := s.load(ctx, id, actor)
	if err != nil {
		return dto.PreviewResponse{}, err
	}

	response := dto.PreviewResponse{SubmissionID: submission.ID, MimeType: submission.MimeType}

	var text string
	switch {
	case !submission.HasFile():
		response.MimeType = "text/plain"
		text = submission.TextContent
	case isImage(submission.FileExt):
		response.FileName = filepath.Base(submission.FilePath)
		response.HTML = s.policy.Sanitize(fmt.Sprintf(`<img src="/api/v1/submissions/%d/thumbnail" alt="%s">`, submission.ID, html.EscapeString(response.FileName)))
		return response, nil
	case intake.TextBearing(submission.FileExt):
		response.FileName = filepath.Base(submission.FilePath)
		payload, err := s.read(ctx, submission)
		if err != nil {
			return dto.PreviewResponse{}, err
		}
		text, err = extract.Text(payload, submission.FileExt)
		if err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("preview extraction failed")
			return dto.PreviewResponse{}, ErrPreviewUnsupported
		}
	default:
		return dto.PreviewResponse{}, ErrPreviewUnsupported
	}

	excerpt, truncated := excerptOf(text, previewExcerptRunes)
	response.Truncated = truncated
	response.HTML = s.policy.Sanitize("<pre>" + html.EscapeString(excerpt) + "</pre>")
	return response, nil
}

func (s *previewService) Thumbnail(ctx context.Context, id uint, actor Actor, width int) (Download, error) {
	submission, err := s.load(ctx, id, actor)
	if err != nil {
		return Download{}, err
	}
	if !submission.HasFile() || !isImage(submission.FileExt) {
		return Download{}, ErrPreviewUnsupported
	}

	switch {
	case width <= 0:
		width = defaultThumbnailWidth
	case width < minThumbnailWidth:
		width = minThumbnailWidth
	case width > maxThumbnailWidth:
		width = maxThumbnailWidth
	}

	payload, err := s.read(ctx, submission)
	if err != nil {
		return Download{}, err
	}

	img, err := imaging.Decode(bytes.NewReader(payload), imaging.AutoOrientation(true))
	if err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("thumbnail decode failed")
		return Download{}, ErrPreviewUnsupported
	}
	thumb := imaging.Fit(img, width, width, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return Download{}, fmt.Errorf("encode thumbnail: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(submission.FilePath), filepath.Ext(submission.FilePath)) + "_thumb.jpg"
	return Download{Name: name, ContentType: "image/jpeg", Body: io.NopCloser(&buf)}, nil
}

func (s *previewService) load(ctx context.Context, id uint, actor Actor) (models.Submission, error) {
	if !s.capabilities.Available(capability.Preview) {
		return models.Submission{}, ErrPreviewUnavailable
	}

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return models.Submission{}, mapSubmissionLookup(err)
	}
	if !actor.CanView(submission) {
		return models.Submission{}, ErrForbidden
	}
	return submission, nil
}

func (s *previewService) read(ctx context.Context, submission models.Submission) ([]byte, error) {
	body, err := s.content.Open(ctx, submission.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	defer body.Close()

	payload, err := io.ReadAll(io.LimitReader(body, s.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read stored file: %w", err)
	}
	return payload, nil
}

func isImage(ext string) bool {
	_, ok := imageExtensions[strings.ToLower(ext)]
	return ok
}

func excerptOf(text string, limit int) (string, bool) {
	if utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:limit]), true
}
