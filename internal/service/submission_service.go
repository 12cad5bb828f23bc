package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-portal/internal/dto"
	"github.com/noah-isme/gema-portal/internal/models"
	"github.com/noah-isme/gema-portal/internal/pipeline"
	"github.com/noah-isme/gema-portal/internal/report"
	"github.com/noah-isme/gema-portal/internal/repository"
	"github.com/noah-isme/gema-portal/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SubmissionProcessor runs the intake pipeline for one submission.
type SubmissionProcessor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Run, error)
}

// ReportOpener reads stored report artifacts.
type ReportOpener interface {
	Open(path string) (io.ReadCloser, error)
}

// CacheInvalidator drops cached aggregates after a write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// Download is a readable artifact handed to the HTTP layer. Callers close Body.
type Download struct {
	Name        string
	ContentType string
	Body        io.ReadCloser
}

// SubmissionService orchestrates submission workflows.
type SubmissionService interface {
	Submit(ctx context.Context, payload dto.SubmissionCreateRequest, file *multipart.FileHeader, actor Actor) (dto.SubmissionReceipt, error)
	List(ctx context.Context, filter dto.SubmissionFilter, actor Actor) (dto.SubmissionListResponse, error)
	Get(ctx context.Context, id uint, actor Actor) (dto.SubmissionResponse, error)
	OpenFile(ctx context.Context, id uint, actor Actor) (Download, error)
	OpenReport(ctx context.Context, id uint, actor Actor) (Download, error)
}

type submissionService struct {
	processor     SubmissionProcessor
	submissions   repository.SubmissionRepository
	students      repository.StudentRepository
	content       storage.ContentStore
	reports       ReportOpener
	cache         CacheInvalidator
	validator     *validator.Validate
	flagThreshold int
	logger        zerolog.Logger
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(
	processor SubmissionProcessor,
	submissions repository.SubmissionRepository,
	students repository.StudentRepository,
	content storage.ContentStore,
	reports ReportOpener,
	cache CacheInvalidator,
	validate *validator.Validate,
	flagThreshold int,
	logger zerolog.Logger,
) SubmissionService {
	return &submissionService{
		processor:     processor,
		submissions:   submissions,
		students:      students,
		content:       content,
		reports:       reports,
		cache:         cache,
		validator:     validate,
		flagThreshold: flagThreshold,
		logger:        logger.With().Str("component", "submission_service").Logger(),
	}
}

func (s *submissionService) Submit(ctx context.Context, payload dto.SubmissionCreateRequest, file *multipart.FileHeader, actor Actor) (dto.SubmissionReceipt, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionReceipt{}, err
	}

	req := pipeline.Request{
		AssignmentID: payload.AssignmentID,
		Submitter: pipeline.Submitter{
			StudentID: s.linkedStudent(ctx, actor),
			Name:      payload.StudentName,
			Email:     payload.Email,
			RegNo:     payload.RegNo,
		},
		Text: payload.TextData,
	}

	if file != nil {
		reader, err := file.Open()
		if err != nil {
			return dto.SubmissionReceipt{}, fmt.Errorf("failed to open file: %w", err)
		}
		defer reader.Close()

		req.Filename = file.Filename
		req.Size = file.Size
		req.Content = reader
	}

	run, err := s.processor.Process(ctx, req)
	if err != nil {
		return dto.SubmissionReceipt{}, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}

	receipt := dto.SubmissionReceipt{Submission: dto.NewSubmissionResponse(run.Submission)}
	for _, stage := range run.Degraded() {
		receipt.Degraded = append(receipt.Degraded, stage.Label())
	}

	s.logger.Info().
		Uint("submission_id", run.Submission.ID).
		Uint("assignment_id", run.Submission.AssignmentID).
		Str("report_source", string(run.ReportSource)).
		Msg("submission accepted")

	return receipt, nil
}

// linkedStudent returns the student id when the caller is a known student.
func (s *submissionService) linkedStudent(ctx context.Context, actor Actor) *uint {
	if !actor.IsStudent() || s.students == nil {
		return nil
	}

	student, err := s.students.GetByID(ctx, actor.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn().Err(err).Uint("student_id", actor.ID).Msg("student lookup failed; submitting as guest")
		}
		return nil
	}

	id := student.ID
	return &id
}

func (s *submissionService) List(ctx context.Context, filter dto.SubmissionFilter, actor Actor) (dto.SubmissionListResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return dto.SubmissionListResponse{}, err
	}

	if !actor.IsStaff() {
		if !actor.IsStudent() {
			return dto.SubmissionListResponse{}, ErrForbidden
		}
		if filter.StudentID != nil && *filter.StudentID != actor.ID {
			return dto.SubmissionListResponse{}, ErrForbidden
		}
		id := actor.ID
		filter.StudentID = &id
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	submissions, total, err := s.submissions.List(ctx, repository.SubmissionFilter{
		AssignmentID:  filter.AssignmentID,
		StudentID:     filter.StudentID,
		RegNo:         filter.RegNo,
		Late:          filter.Late,
		Flagged:       filter.Flagged,
		FlagThreshold: s.flagThreshold,
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		return dto.SubmissionListResponse{}, err
	}

	return dto.SubmissionListResponse{
		Items:    dto.NewSubmissionResponseSlice(submissions),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (s *submissionService) Get(ctx context.Context, id uint, actor Actor) (dto.SubmissionResponse, error) {
	submission, err := s.visible(ctx, id, actor)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) OpenFile(ctx context.Context, id uint, actor Actor) (Download, error) {
	submission, err := s.visible(ctx, id, actor)
	if err != nil {
		return Download{}, err
	}
	if !submission.HasFile() {
		return Download{}, ErrFileNotFound
	}

	body, err := s.content.Open(ctx, submission.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Download{}, ErrFileNotFound
		}
		return Download{}, err
	}

	contentType := submission.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return Download{Name: filepath.Base(submission.FilePath), ContentType: contentType, Body: body}, nil
}

func (s *submissionService) OpenReport(ctx context.Context, id uint, actor Actor) (Download, error) {
	submission, err := s.visible(ctx, id, actor)
	if err != nil {
		return Download{}, err
	}
	if submission.ReportPath == nil || *submission.ReportPath == "" || s.reports == nil {
		return Download{}, ErrReportNotFound
	}

	body, err := s.reports.Open(*submission.ReportPath)
	if err != nil {
		if errors.Is(err, report.ErrUnavailable) {
			return Download{}, ErrReportNotFound
		}
		return Download{}, err
	}

	return Download{Name: filepath.Base(*submission.ReportPath), ContentType: "application/pdf", Body: body}, nil
}

func (s *submissionService) visible(ctx context.Context, id uint, actor Actor) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return models.Submission{}, mapSubmissionLookup(err)
	}

	if !actor.CanView(submission) {
		return models.Submission{}, ErrForbidden
	}
	return submission, nil
}

func mapSubmissionLookup(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSubmissionNotFound
	}
	return err
}
