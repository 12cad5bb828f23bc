package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-portal/internal/capability"
	"github.com/noah-isme/gema-portal/internal/dto"
	"github.com/noah-isme/gema-portal/internal/models"
	"github.com/noah-isme/gema-portal/internal/notify"
	"github.com/noah-isme/gema-portal/internal/repository"
)

type recordingFeedbackNotifier struct {
	feedback []notify.FeedbackNotice
	err      error
	panics   bool
}

func (n *recordingFeedbackNotifier) SubmissionReceived(context.Context, notify.SubmissionNotice) error {
	return nil
}

func (n *recordingFeedbackNotifier) GradeRecorded(_ context.Context, notice notify.FeedbackNotice) error {
	n.feedback = append(n.feedback, notice)
	if n.panics {
		panic("mail client nil")
	}
	return n.err
}

// stalledNotifier blocks until released and never looks at its context,
// like an HTTP client without a timeout.
type stalledNotifier struct {
	release chan struct{}
	calls   chan struct{}
}

func (n *stalledNotifier) SubmissionReceived(context.Context, notify.SubmissionNotice) error {
	return nil
}

func (n *stalledNotifier) GradeRecorded(context.Context, notify.FeedbackNotice) error {
	n.calls <- struct{}{}
	<-n.release
	return nil
}

func TestGradingServiceDoesNotWaitOnStalledNotifier(t *testing.T) {
	db := setupServiceDB(t)
	assignment := seedAssignment(t, db)
	first := seedSubmission(t, db, models.Submission{AssignmentID: assignment.ID, StudentName: "Rina", StudentEmail: "rina@student.test", RegNo: "2024-01"})
	second := seedSubmission(t, db, models.Submission{AssignmentID: assignment.ID, StudentName: "Dani", StudentEmail: "dani@student.test", RegNo: "2024-02"})

	notifier := &stalledNotifier{release: make(chan struct{}), calls: make(chan struct{}, 4)}
	defer close(notifier.release)
	svc := NewGradingService(repository.NewSubmissionRepository(db), notifier, capability.Static(capability.Notification), nil, 50*time.Millisecond, testValidator(), testLogger())

	start := time.Now()
	resp, err := svc.Grade(context.Background(), first.ID, dto.GradeRequest{Grade: "A"})
	require.NoError(t, err)
	require.Equal(t, "A", *resp.Grade)
	require.Less(t, time.Since(start), 2*time.Second)

	start = time.Now()
	bulk, err := svc.BulkGrade(context.Background(), dto.BulkGradeRequest{SubmissionIDs: []uint{first.ID, second.ID}, Grade: "B"})
	require.NoError(t, err)
	require.Equal(t, int64(2), bulk.Updated)
	require.Less(t, time.Since(start), 2*time.Second)

	var stored models.Submission
	require.NoError(t, db.First(&stored, second.ID).Error)
	require.Equal(t, "B", *stored.Grade)
}

func TestGradingServiceGradeLeavesAnalysisUntouched(t *testing.T) {
	db := setupServiceDB(t)
	assignment := seedAssignment(t, db)
	reportPath := "reports/report_1_1_2024-01.pdf"
	sub := seedSubmission(t, db, models.Submission{
		AssignmentID: assignment.ID,
		StudentName:  "Rina",
		StudentEmail: "rina@student.test",
		RegNo:        "2024-01",
		Plagiarism:   64,
		AIDetected:   true,
		ReportPath:   &reportPath,
	})

	notifier := &recordingFeedbackNotifier{}
	cache := &countingInvalidator{}
	svc := NewGradingService(repository.NewSubmissionRepository(db), notifier, capability.Static(capability.Notification), cache, 0, testValidator(), testLogger())

	resp, err := svc.Grade(context.Background(), sub.ID, dto.GradeRequest{Grade: " A- ", Feedback: ptr("  Solid method section. ")})
	require.NoError(t, err)
	require.Equal(t, "A-", *resp.Grade)
	require.Equal(t, "Solid method section.", *resp.Feedback)

	var stored models.Submission
	require.NoError(t, db.First(&stored, sub.ID).Error)
	require.Equal(t, 64, stored.Plagiarism)
	require.True(t, stored.AIDetected)
	require.Equal(t, reportPath, *stored.ReportPath)
	require.Equal(t, "A-", *stored.Grade)

	require.Len(t, notifier.feedback, 1)
	require.Equal(t, "rina@student.test", notifier.feedback[0].StudentEmail)
	require.Equal(t, "A-", notifier.feedback[0].Grade)
	require.Equal(t, "Photosynthesis Lab", notifier.feedback[0].AssignmentTitle)
	require.Equal(t, 1, cache.calls)

	// regrading is allowed any number of times
	_, err = svc.Grade(context.Background(), sub.ID, dto.GradeRequest{Grade: "B"})
	require.NoError(t, err)
	require.NoError(t, db.First(&stored, sub.ID).Error)
	require.Equal(t, "B", *stored.Grade)
	require.Nil(t, stored.Feedback)
	require.Equal(t, 64, stored.Plagiarism)
}

func TestGradingServiceNotificationFailureDoesNotFailGrade(t *testing.T) {
	db := setupServiceDB(t)
	assignment := seedAssignment(t, db)
	sub := seedSubmission(t, db, models.Submission{AssignmentID: assignment.ID, StudentName: "Rina", StudentEmail: "rina@student.test", RegNo: "2024-01"})

	for _, notifier := range []*recordingFeedbackNotifier{{err: errors.New("sendgrid 500")}, {panics: true}} {
		svc := NewGradingService(repository.NewSubmissionRepository(db), notifier, capability.Static(capability.Notification), nil, 0, testValidator(), testLogger())
		resp, err := svc.Grade(context.Background(), sub.ID, dto.GradeRequest{Grade: "C"})
		require.NoError(t, err)
		require.Equal(t, "C", *resp.Grade)
		require.Len(t, notifier.feedback, 1)
	}
}

func TestGradingServiceSkipsNotificationWhenUnavailable(t *testing.T) {
	db := setupServiceDB(t)
	assignment := seedAssignment(t, db)
	sub := seedSubmission(t, db, models.Submission{AssignmentID: assignment.ID, StudentName: "Rina", StudentEmail: "rina@student.test", RegNo: "2024-01"})

	notifier := &recordingFeedbackNotifier{}
	svc := NewGradingService(repository.NewSubmissionRepository(db), notifier, capability.Static(), nil, 0, testValidator(), testLogger())
	_, err := svc.Grade(context.Background(), sub.ID, dto.GradeRequest{Grade: "A"})
	require.NoError(t, err)
	require.Empty(t, notifier.feedback)
}

func TestGradingServiceGradeErrors(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewGradingService(repository.NewSubmissionRepository(db), nil, capability.Static(), nil, 0, testValidator(), testLogger())

	_, err := svc.Grade(context.Background(), 77, dto.GradeRequest{Grade: "A"})
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	_, err = svc.Grade(context.Background(), 1, dto.GradeRequest{Grade: "this grade is far too long"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrSubmissionNotFound)
}

func TestGradingServiceBulkGrade(t *testing.T) {
	db := setupServiceDB(t)
	assignment := seedAssignment(t, db)
	first := seedSubmission(t, db, models.Submission{AssignmentID: assignment.ID, StudentName: "Rina", StudentEmail: "rina@student.test", RegNo: "2024-01", Plagiarism: 10})
	second := seedSubmission(t, db, models.Submission{AssignmentID: assignment.ID, StudentName: "Guest", RegNo: "G-1", AIDetected: true})

	notifier := &recordingFeedbackNotifier{}
	svc := NewGradingService(repository.NewSubmissionRepository(db), notifier, capability.Static(capability.Notification), nil, 0, testValidator(), testLogger())

	resp, err := svc.BulkGrade(context.Background(), dto.BulkGradeRequest{
		SubmissionIDs: []uint{first.ID, second.ID, second.ID, 999},
		Grade:         "B+",
		Feedback:      ptr("Good work"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), resp.Updated)
	require.Equal(t, []uint{999}, resp.Missing)
	require.Len(t, notifier.feedback, 2)

	var rows []models.Submission
	require.NoError(t, db.Order("id ASC").Find(&rows).Error)
	for _, row := range rows {
		require.Equal(t, "B+", *row.Grade)
		require.Equal(t, "Good work", *row.Feedback)
	}
	require.Equal(t, 10, rows[0].Plagiarism)
	require.True(t, rows[1].AIDetected)

	_, err = svc.BulkGrade(context.Background(), dto.BulkGradeRequest{SubmissionIDs: []uint{500}, Grade: "A"})
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}
