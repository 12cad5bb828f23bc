package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-portal/internal/capability"
	"github.com/noah-isme/gema-portal/internal/intake"
	"github.com/noah-isme/gema-portal/internal/models"
	"github.com/noah-isme/gema-portal/internal/notify"
	"github.com/noah-isme/gema-portal/internal/observability"
	"github.com/noah-isme/gema-portal/internal/report"
	"github.com/noah-isme/gema-portal/internal/repository"
	"github.com/noah-isme/gema-portal/internal/storage"
	"github.com/noah-isme/gema-portal/pkg/extract"
)

// Submitter is the denormalised snapshot of whoever submitted.
type Submitter struct {
	StudentID *uint
	Name      string
	Email     string
	RegNo     string
}

// Request is the raw input of one run. Content may be nil for text-only submissions.
type Request struct {
	AssignmentID uint
	Submitter    Submitter
	Filename     string
	Size         int64
	Content      io.Reader
	Text         string
}

// AssignmentLookup resolves the assignment a submission targets.
type AssignmentLookup interface {
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
}

// SubmissionStore persists submission records atomically.
type SubmissionStore interface {
	InTransaction(ctx context.Context, fn func(tx repository.SubmissionWriter) error) error
}

// AIDetector classifies text.
type AIDetector interface {
	Detect(ctx context.Context, text string) (bool, error)
}

// ReportGenerator produces the permanent report artifact.
type ReportGenerator interface {
	Generate(ctx context.Context, in report.Input, allowFallback bool) (report.Outcome, error)
}

// TextExtractor pulls text out of an uploaded document.
type TextExtractor func(payload []byte, ext string) (string, error)

// Dependencies are the collaborators of the orchestrator. Optional ones may be
// nil; the capability checker decides whether they are consulted at all.
type Dependencies struct {
	Capabilities capability.Checker
	Validator    *intake.Validator
	Assignments  AssignmentLookup
	Content      storage.ContentStore
	Submissions  SubmissionStore
	Plagiarism   PlagiarismAnalyzer
	Detector     AIDetector
	Reports      ReportGenerator
	Notifier     notify.Notifier
	Extract      TextExtractor
}

// Options tune the orchestrator.
type Options struct {
	// StageTimeout bounds each call into an optional capability. Zero disables it.
	StageTimeout time.Duration
	Now          func() time.Time
	Logger       zerolog.Logger
}

// Orchestrator sequences the submission pipeline.
type Orchestrator struct {
	deps    Dependencies
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// New constructs an orchestrator.
func New(deps Dependencies, opts Options) *Orchestrator {
	if deps.Validator == nil {
		deps.Validator = intake.NewValidator(intake.DefaultMaxBytes)
	}
	if deps.Extract == nil {
		deps.Extract = extract.Text
	}
	if deps.Capabilities == nil {
		deps.Capabilities = capability.Static()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		deps:    deps,
		timeout: opts.StageTimeout,
		now:     now,
		logger:  opts.Logger.With().Str("component", "submission_pipeline").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/gema-portal/internal/pipeline"),
	}
}

// run carries the mutable state of one invocation.
type run struct {
	Run
	assignment models.Assignment
	accepted   intake.Accepted
	payload    []byte
	highlight  string
	logger     zerolog.Logger
}

// Process executes one submission run. It returns a *intake.ValidationError
// or ErrAssignmentNotFound for rejected input and a *PersistenceError when
// the submission could not be kept; every other failure degrades in place.
func (o *Orchestrator) Process(ctx context.Context, req Request) (Run, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(
		attribute.Int("assignment.id", int(req.AssignmentID)),
		attribute.Bool("submission.has_file", strings.TrimSpace(req.Filename) != ""),
	))
	defer span.End()

	start := time.Now()
	r := &run{
		Run:    Run{State: StateReceived, ReportSource: report.SourceNone},
		logger: o.logger.With().Str("correlation_id", observability.CorrelationID(ctx)).Uint("assignment_id", req.AssignmentID).Str("reg_no", req.Submitter.RegNo).Logger(),
	}
	defer func() {
		observability.PipelineDuration().WithLabelValues(string(r.State)).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("pipeline.final_state", string(r.State)))
	}()

	if err := o.validate(ctx, r, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
		return r.Run, err
	}

	// Once validated the run goes to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if err := o.store(ctx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return r.Run, err
	}

	o.analyze(ctx, r)

	if err := o.reportAndPersist(ctx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return r.Run, err
	}

	o.notify(ctx, r)

	r.State = StateDone
	span.SetAttributes(attribute.Int("submission.id", int(r.Submission.ID)))
	span.SetStatus(codes.Ok, "done")
	r.logger.Info().
		Uint("submission_id", r.Submission.ID).
		Bool("is_late", r.Submission.IsLate).
		Int("plagiarism", r.Submission.Plagiarism).
		Bool("ai_detected", r.Submission.AIDetected).
		Int("degraded_stages", len(r.Degraded())).
		Msg("submission processed")

	return r.Run, nil
}

func (o *Orchestrator) validate(ctx context.Context, r *run, req Request) error {
	started := time.Now()

	assignment, err := o.deps.Assignments.GetByID(ctx, req.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = ErrAssignmentNotFound
		} else {
			err = &PersistenceError{Stage: StateReceived, Err: fmt.Errorf("load assignment: %w", err)}
		}
		o.reject(ctx, r, started, err, "assignment")
		return err
	}
	r.assignment = assignment

	accepted, err := o.deps.Validator.Validate(assignment.ID, strings.TrimSpace(req.Submitter.RegNo), intake.Upload{
		Filename: req.Filename,
		Size:     req.Size,
		Text:     req.Text,
	})
	if err == nil && accepted.HasFile {
		r.payload, err = o.readPayload(req.Content)
	}
	if err != nil {
		o.reject(ctx, r, started, err, rejectionReason(err))
		return err
	}

	r.accepted = accepted
	r.accepted.Size = int64(len(r.payload))
	r.Submission.StudentID = req.Submitter.StudentID
	r.Submission.StudentName = strings.TrimSpace(req.Submitter.Name)
	r.Submission.StudentEmail = strings.TrimSpace(req.Submitter.Email)
	r.Submission.RegNo = strings.TrimSpace(req.Submitter.RegNo)
	o.record(ctx, r, StageResult{State: StateValidated, Outcome: OutcomeOK, Duration: time.Since(started)})
	r.State = StateValidated
	return nil
}

func (o *Orchestrator) readPayload(content io.Reader) ([]byte, error) {
	if content == nil {
		return nil, nil
	}
	limit := o.deps.Validator.MaxBytes()
	payload, err := io.ReadAll(io.LimitReader(content, limit+1))
	if err != nil {
		return nil, &PersistenceError{Stage: StateReceived, Err: fmt.Errorf("read upload: %w", err)}
	}
	if err := o.deps.Validator.CheckSize(int64(len(payload))); err != nil {
		return nil, err
	}
	return payload, nil
}

func (o *Orchestrator) reject(ctx context.Context, r *run, started time.Time, err error, reason string) {
	r.State = StateRejected
	var persistence *PersistenceError
	if errors.As(err, &persistence) {
		// lookup or read failures are not the submitter's fault
		r.State = StateReceived
	}
	o.record(ctx, r, StageResult{State: StateValidated, Outcome: OutcomeFatal, Error: err.Error(), Duration: time.Since(started)})
	observability.SubmissionsRejected().WithLabelValues(reason).Inc()
	r.logger.Info().Err(err).Str("reason", reason).Msg("submission rejected")
}

func rejectionReason(err error) string {
	var validation *intake.ValidationError
	if errors.As(err, &validation) {
		return string(validation.Kind)
	}
	if errors.Is(err, ErrPersistence) {
		return "io"
	}
	return "unknown"
}

func (o *Orchestrator) store(ctx context.Context, r *run) error {
	started := time.Now()
	submittedAt := o.now().UTC()

	sub := &r.Submission
	sub.AssignmentID = r.assignment.ID
	sub.SubmittedAt = submittedAt
	sub.IsLate = r.assignment.IsPastDue(submittedAt)
	sub.TextContent = r.accepted.Text

	if !r.accepted.HasFile {
		o.record(ctx, r, StageResult{State: StateStored, Outcome: OutcomeSkipped, Duration: time.Since(started)})
		r.State = StateStored
		return nil
	}

	path, err := guard(ctx, 0, func(ctx context.Context) (string, error) {
		return o.deps.Content.Save(ctx, r.accepted.StorageName, bytes.NewReader(r.payload), int64(len(r.payload)))
	})
	if err != nil {
		failure := &PersistenceError{Stage: StateStored, Err: err}
		o.record(ctx, r, StageResult{State: StateStored, Outcome: OutcomeFatal, Error: err.Error(), Duration: time.Since(started)})
		r.logger.Error().Err(err).Str("storage_name", r.accepted.StorageName).Msg("upload could not be stored")
		return failure
	}

	sub.FilePath = path
	sub.FileExt = r.accepted.Ext
	sub.MimeType = intake.DetectMIME(r.payload)
	o.record(ctx, r, StageResult{State: StateStored, Outcome: OutcomeOK, Duration: time.Since(started)})
	r.State = StateStored
	return nil
}

func (o *Orchestrator) analyze(ctx context.Context, r *run) {
	sub := &r.Submission
	text := o.analysisText(ctx, r)
	sub.AnalyzedText = text

	sub.Plagiarism, r.highlight = o.plagiarism(ctx, r, text)
	sub.AIDetected = o.detectAI(ctx, r, text)

	r.State = StateAnalyzed
}

// analysisText picks what the analyzers see: the inline text when no file
// was sent, the extracted text of a text-bearing file, nothing for images.
func (o *Orchestrator) analysisText(ctx context.Context, r *run) string {
	if !r.accepted.HasFile {
		return r.accepted.Text
	}
	if !intake.TextBearing(r.accepted.Ext) {
		return ""
	}

	started := time.Now()
	text, err := guard(ctx, o.timeout, func(context.Context) (string, error) {
		return o.deps.Extract(r.payload, r.accepted.Ext)
	})
	if err != nil {
		o.degrade(ctx, r, StageResult{State: StateAnalyzed, Step: "extraction", Duration: time.Since(started)}, err)
		return ""
	}
	o.record(ctx, r, StageResult{State: StateAnalyzed, Step: "extraction", Outcome: OutcomeOK, Duration: time.Since(started)})
	return text
}

func (o *Orchestrator) plagiarism(ctx context.Context, r *run, text string) (int, string) {
	started := time.Now()
	stage := StageResult{State: StateAnalyzed, Step: string(capability.Plagiarism)}

	if !o.available(capability.Plagiarism) || o.deps.Plagiarism == nil {
		stage.Outcome, stage.Error = OutcomeSkipped, "capability unavailable"
		o.record(ctx, r, stage)
		return 0, ""
	}
	if strings.TrimSpace(text) == "" {
		stage.Outcome, stage.Error = OutcomeSkipped, "no text to analyse"
		o.record(ctx, r, stage)
		return 0, ""
	}

	result, err := guard(ctx, o.timeout, func(ctx context.Context) (PlagiarismResult, error) {
		return o.deps.Plagiarism.Analyze(ctx, PlagiarismInput{
			AssignmentID: r.assignment.ID,
			RegNo:        r.Submission.RegNo,
			Text:         text,
			Key:          fmt.Sprintf("%d_%s_%s", r.assignment.ID, intake.SecureName(r.Submission.RegNo), uuid.NewString()),
		})
	})
	stage.Duration = time.Since(started)
	if err != nil {
		o.degrade(ctx, r, stage, err)
		return 0, ""
	}

	stage.Outcome = OutcomeOK
	o.record(ctx, r, stage)
	return clampScore(result.Score), result.HighlightPath
}

func (o *Orchestrator) detectAI(ctx context.Context, r *run, text string) bool {
	started := time.Now()
	stage := StageResult{State: StateAnalyzed, Step: string(capability.AIDetection)}

	if !o.available(capability.AIDetection) || o.deps.Detector == nil {
		stage.Outcome, stage.Error = OutcomeSkipped, "capability unavailable"
		o.record(ctx, r, stage)
		return false
	}
	if strings.TrimSpace(text) == "" {
		stage.Outcome, stage.Error = OutcomeSkipped, "no text-bearing content"
		o.record(ctx, r, stage)
		return false
	}

	flagged, err := guard(ctx, o.timeout, func(ctx context.Context) (bool, error) {
		return o.deps.Detector.Detect(ctx, text)
	})
	stage.Duration = time.Since(started)
	if err != nil {
		o.degrade(ctx, r, stage, err)
		return false
	}

	stage.Outcome = OutcomeOK
	o.record(ctx, r, stage)
	return flagged
}

// reportAndPersist creates the record, generates the report for the new id
// and patches the report path, all inside one transaction.
func (o *Orchestrator) reportAndPersist(ctx context.Context, r *run) error {
	started := time.Now()

	var persisted models.Submission
	err := o.deps.Submissions.InTransaction(ctx, func(tx repository.SubmissionWriter) error {
		draft := r.Submission
		draft.AnalysisNotes = notesJSON(r.Stages)
		if err := tx.Create(ctx, &draft); err != nil {
			return fmt.Errorf("create submission: %w", err)
		}

		reportPath := o.generateReport(ctx, r, draft)
		r.State = StateReported

		notes := notesJSON(r.Stages)
		if reportPath != "" || !bytes.Equal(notes, draft.AnalysisNotes) {
			patch := map[string]interface{}{"analysis_notes": notes}
			if reportPath != "" {
				patch["report_path"] = reportPath
			}
			if err := tx.Patch(ctx, draft.ID, patch); err != nil {
				return fmt.Errorf("attach report: %w", err)
			}
			draft.AnalysisNotes = notes
			if reportPath != "" {
				draft.ReportPath = &reportPath
			}
		}

		persisted = draft
		return nil
	})
	if err != nil {
		o.record(ctx, r, StageResult{State: StatePersisted, Outcome: OutcomeFatal, Error: err.Error(), Duration: time.Since(started)})
		r.logger.Error().Err(err).Msg("submission could not be persisted")
		return &PersistenceError{Stage: StatePersisted, Err: err}
	}

	persisted.Assignment = r.assignment
	r.Submission = persisted
	o.record(ctx, r, StageResult{State: StatePersisted, Outcome: OutcomeOK, Duration: time.Since(started)})
	r.State = StatePersisted
	return nil
}

func (o *Orchestrator) generateReport(ctx context.Context, r *run, sub models.Submission) string {
	started := time.Now()
	stage := StageResult{State: StateReported}

	allowFallback := o.available(capability.Reporting)
	if o.deps.Reports == nil || (r.highlight == "" && !allowFallback) {
		stage.Outcome, stage.Error = OutcomeSkipped, "capability unavailable"
		o.record(ctx, r, stage)
		return ""
	}

	outcome, err := guard(ctx, o.timeout, func(ctx context.Context) (report.Outcome, error) {
		return o.deps.Reports.Generate(ctx, report.Input{
			AssignmentID:    r.assignment.ID,
			SubmissionID:    sub.ID,
			AssignmentTitle: r.assignment.Title,
			StudentName:     sub.StudentName,
			StudentEmail:    sub.StudentEmail,
			RegNo:           sub.RegNo,
			SubmittedAt:     sub.SubmittedAt,
			IsLate:          sub.IsLate,
			Plagiarism:      sub.Plagiarism,
			AIDetected:      sub.AIDetected,
			HighlightPath:   r.highlight,
		}, allowFallback)
	})
	stage.Duration = time.Since(started)
	if err != nil {
		o.degrade(ctx, r, stage, err)
		return ""
	}

	r.ReportSource = outcome.Source
	if outcome.Path == "" {
		stage.Outcome, stage.Error = OutcomeSkipped, "no report produced"
		o.record(ctx, r, stage)
		return ""
	}

	stage.Outcome = OutcomeOK
	stage.Step = string(outcome.Source)
	o.record(ctx, r, stage)
	return outcome.Path
}

func (o *Orchestrator) notify(ctx context.Context, r *run) {
	started := time.Now()
	stage := StageResult{State: StateNotified}

	if !o.available(capability.Notification) || o.deps.Notifier == nil {
		stage.Outcome, stage.Error = OutcomeSkipped, "capability unavailable"
		o.record(ctx, r, stage)
		return
	}

	sub := r.Submission
	_, err := guard(ctx, o.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.deps.Notifier.SubmissionReceived(ctx, notify.SubmissionNotice{
			SubmissionID:    sub.ID,
			AssignmentID:    r.assignment.ID,
			AssignmentTitle: r.assignment.Title,
			TeacherID:       r.assignment.TeacherID,
			StudentName:     sub.StudentName,
			RegNo:           sub.RegNo,
			IsLate:          sub.IsLate,
			Plagiarism:      sub.Plagiarism,
		})
	})
	stage.Duration = time.Since(started)
	if err != nil {
		o.degrade(ctx, r, stage, err)
	} else {
		stage.Outcome = OutcomeOK
		o.record(ctx, r, stage)
	}
	r.State = StateNotified
}

func (o *Orchestrator) available(name capability.Capability) bool {
	return o.deps.Capabilities.Available(name)
}

func (o *Orchestrator) degrade(ctx context.Context, r *run, stage StageResult, err error) {
	stage.Outcome = OutcomeDegraded
	stage.Error = err.Error()
	o.record(ctx, r, stage)
	r.logger.Warn().Err(err).Str("stage", stage.Label()).Msg("stage degraded to default")
}

func (o *Orchestrator) record(ctx context.Context, r *run, stage StageResult) {
	r.Stages = append(r.Stages, stage)
	observability.PipelineStages().WithLabelValues(stage.Label(), string(stage.Outcome)).Inc()
	trace.SpanFromContext(ctx).AddEvent("pipeline.stage", trace.WithAttributes(
		attribute.String("stage", stage.Label()),
		attribute.String("outcome", string(stage.Outcome)),
	))
	r.logger.Debug().Str("stage", stage.Label()).Str("outcome", string(stage.Outcome)).Dur("duration", stage.Duration).Msg("stage finished")
}

// notesJSON keeps the stages that did not complete normally.
func notesJSON(stages []StageResult) datatypes.JSON {
	notes := make([]StageResult, 0)
	for _, stage := range stages {
		if stage.Outcome == OutcomeDegraded || stage.Outcome == OutcomeSkipped {
			notes = append(notes, stage)
		}
	}
	if len(notes) == 0 {
		return nil
	}
	encoded, err := json.Marshal(notes)
	if err != nil {
		return nil
	}
	return datatypes.JSON(encoded)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
