package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-portal/internal/capability"
	"github.com/noah-isme/gema-portal/internal/dto"
	"github.com/noah-isme/gema-portal/internal/models"
	"github.com/noah-isme/gema-portal/internal/notify"
	"github.com/noah-isme/gema-portal/internal/repository"
)

// GradingService records grades and feedback. It never touches analysis fields.
type GradingService interface {
	Grade(ctx context.Context, submissionID uint, payload dto.GradeRequest) (dto.SubmissionResponse, error)
	BulkGrade(ctx context.Context, payload dto.BulkGradeRequest) (dto.BulkGradeResponse, error)
}

// defaultNotifyTimeout bounds the feedback notices sent after one grading call.
const defaultNotifyTimeout = 10 * time.Second

type gradingService struct {
	submissions   repository.SubmissionRepository
	notifier      notify.Notifier
	capabilities  capability.Checker
	cache         CacheInvalidator
	notifyTimeout time.Duration
	validator     *validator.Validate
	logger        zerolog.Logger
}

// NewGradingService constructs the grading service. notifyTimeout caps the
// time spent on feedback notices per call; zero uses a ten second budget.
func NewGradingService(submissions repository.SubmissionRepository, notifier notify.Notifier, capabilities capability.Checker, cache CacheInvalidator, notifyTimeout time.Duration, validate *validator.Validate, logger zerolog.Logger) GradingService {
	if notifyTimeout <= 0 {
		notifyTimeout = defaultNotifyTimeout
	}
	return &gradingService{
		submissions:   submissions,
		notifier:      notifier,
		capabilities:  capabilities,
		cache:         cache,
		notifyTimeout: notifyTimeout,
		validator:     validate,
		logger:        logger.With().Str("component", "grading_service").Logger(),
	}
}

func (s *gradingService) Grade(ctx context.Context, submissionID uint, payload dto.GradeRequest) (dto.SubmissionResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-portal/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.update")
	span.SetAttributes(attribute.Int64("grading.submission_id", int64(submissionID)))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	grade := strings.TrimSpace(payload.Grade)
	feedback := trimmedFeedback(payload.Feedback)

	updated, err := s.submissions.UpdateGrade(ctx, []uint{submissionID}, grade, feedback)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_update_failed")
		return dto.SubmissionResponse{}, err
	}
	if updated == 0 {
		span.SetStatus(codes.Error, "submission_not_found")
		return dto.SubmissionResponse{}, ErrSubmissionNotFound
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_reload_failed")
		return dto.SubmissionResponse{}, err
	}

	s.afterGrading(ctx, []models.Submission{submission})
	s.logger.Info().Uint("submission_id", submissionID).Str("grade", grade).Msg("submission graded")

	return dto.NewSubmissionResponse(submission), nil
}

func (s *gradingService) BulkGrade(ctx context.Context, payload dto.BulkGradeRequest) (dto.BulkGradeResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-portal/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.bulk_update")
	span.SetAttributes(attribute.Int("grading.requested", len(payload.SubmissionIDs)))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.BulkGradeResponse{}, err
	}

	ids := uniqueIDs(payload.SubmissionIDs)
	existing, err := s.submissions.ListByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_lookup_failed")
		return dto.BulkGradeResponse{}, err
	}

	found := make(map[uint]struct{}, len(existing))
	for _, submission := range existing {
		found[submission.ID] = struct{}{}
	}
	var missing []uint
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(existing) == 0 {
		return dto.BulkGradeResponse{Missing: missing}, ErrSubmissionNotFound
	}

	grade := strings.TrimSpace(payload.Grade)
	feedback := trimmedFeedback(payload.Feedback)
	targets := make([]uint, 0, len(existing))
	for i := range existing {
		targets = append(targets, existing[i].ID)
		existing[i].Grade = &grade
		existing[i].Feedback = feedback
	}

	updated, err := s.submissions.UpdateGrade(ctx, targets, grade, feedback)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_update_failed")
		return dto.BulkGradeResponse{}, err
	}

	s.afterGrading(ctx, existing)
	span.SetAttributes(attribute.Int64("grading.updated", updated))
	s.logger.Info().Int64("updated", updated).Int("missing", len(missing)).Msg("bulk grade applied")

	return dto.BulkGradeResponse{Updated: updated, Missing: missing}, nil
}

// afterGrading sends feedback notices and drops cached analytics. Failures
// are logged only; the grade is already committed. All notices of one call
// share the notify budget, so a stalled provider cannot hold the request.
func (s *gradingService) afterGrading(ctx context.Context, graded []models.Submission) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	if s.notifier == nil || !s.capabilities.Available(capability.Notification) {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	for _, submission := range graded {
		notice := notify.FeedbackNotice{
			SubmissionID:    submission.ID,
			AssignmentID:    submission.AssignmentID,
			AssignmentTitle: submission.Assignment.Title,
			StudentName:     submission.StudentName,
			StudentEmail:    submission.StudentEmail,
		}
		if submission.Grade != nil {
			notice.Grade = *submission.Grade
		}
		if submission.Feedback != nil {
			notice.Feedback = *submission.Feedback
		}

		if err := s.notifyFeedback(ctx, notice); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("feedback notification failed")
		}
	}
}

// notifyFeedback gives up once ctx expires, even when the notifier ignores it.
func (s *gradingService) notifyFeedback(ctx context.Context, notice notify.FeedbackNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- fmt.Errorf("feedback notifier panicked: %v", recovered)
			}
		}()
		done <- s.notifier.GradeRecorded(ctx, notice)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func trimmedFeedback(feedback *string) *string {
	if feedback == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*feedback)
	return &trimmed
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
