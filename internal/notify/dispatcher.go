// Package notify delivers best-effort alerts about submissions and grading.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-portal/internal/observability"
)

// DefaultPlagiarismThreshold is the score above which teachers are alerted.
const DefaultPlagiarismThreshold = 50

// Kind identifies the trigger of a notification.
type Kind string

const (
	KindLateSubmission Kind = "late_submission"
	KindHighPlagiarism Kind = "high_plagiarism"
	KindFeedback       Kind = "grading_feedback"
)

// ErrNoRecipient indicates the notification has nobody to go to.
var ErrNoRecipient = errors.New("notification recipient missing")

// Recipient is a named email address.
type Recipient struct {
	ID    uint
	Name  string
	Email string
}

// Message is a rendered notification handed to every channel.
type Message struct {
	Kind         Kind      `json:"kind"`
	To           Recipient `json:"to"`
	Subject      string    `json:"subject"`
	Text         string    `json:"text"`
	HTML         string    `json:"-"`
	SubmissionID uint      `json:"submission_id"`
	AssignmentID uint      `json:"assignment_id"`
	SentAt       time.Time `json:"sent_at"`
}

// Channel delivers a message over one transport.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// TeacherDirectory resolves the owner of an assignment.
type TeacherDirectory interface {
	Teacher(ctx context.Context, teacherID uint) (Recipient, error)
}

// SubmissionNotice describes a freshly persisted submission.
type SubmissionNotice struct {
	SubmissionID    uint
	AssignmentID    uint
	AssignmentTitle string
	TeacherID       uint
	StudentName     string
	RegNo           string
	IsLate          bool
	Plagiarism      int
}

// FeedbackNotice describes a grading action.
type FeedbackNotice struct {
	SubmissionID    uint
	AssignmentID    uint
	AssignmentTitle string
	StudentName     string
	StudentEmail    string
	Grade           string
	Feedback        string
}

// Notifier is the surface used by the pipeline and the grading workflow.
type Notifier interface {
	SubmissionReceived(ctx context.Context, notice SubmissionNotice) error
	GradeRecorded(ctx context.Context, notice FeedbackNotice) error
}

// Config tunes the dispatcher.
type Config struct {
	AppName             string
	PlagiarismThreshold int
}

// Dispatcher fans messages out to its channels. Failures and panics are
// logged, counted and returned joined; they never propagate as panics.
type Dispatcher struct {
	channels  []Channel
	teachers  TeacherDirectory
	threshold int
	appName   string
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDispatcher constructs a dispatcher over the given channels. Nil
// channels are ignored.
func NewDispatcher(cfg Config, teachers TeacherDirectory, logger zerolog.Logger, channels ...Channel) *Dispatcher {
	threshold := cfg.PlagiarismThreshold
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultPlagiarismThreshold
	}
	appName := strings.TrimSpace(cfg.AppName)
	if appName == "" {
		appName = "GEMA Portal"
	}

	active := make([]Channel, 0, len(channels))
	for _, channel := range channels {
		if channel != nil {
			active = append(active, channel)
		}
	}

	return &Dispatcher{
		channels:  active,
		teachers:  teachers,
		threshold: threshold,
		appName:   appName,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "notification_dispatcher").Logger(),
		now:       time.Now,
	}
}

// Channels returns the names of the configured channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, channel := range d.channels {
		names = append(names, channel.Name())
	}
	return names
}

// SubmissionReceived alerts the owning teacher about late or suspicious work.
func (d *Dispatcher) SubmissionReceived(ctx context.Context, notice SubmissionNotice) error {
	late := notice.IsLate
	suspicious := notice.Plagiarism > d.threshold
	if !late && !suspicious {
		return nil
	}

	teacher, err := d.lookupTeacher(ctx, notice.TeacherID)
	if err != nil {
		kind := KindLateSubmission
		if !late {
			kind = KindHighPlagiarism
		}
		observability.NotificationFailures().WithLabelValues(string(kind), "directory").Inc()
		d.logger.Warn().Err(err).Uint("teacher_id", notice.TeacherID).Uint("submission_id", notice.SubmissionID).Msg("teacher lookup failed; alerts dropped")
		return err
	}

	student := d.clean(notice.StudentName)
	title := d.clean(notice.AssignmentTitle)

	var errs []error
	if late {
		text := fmt.Sprintf("Hello %s,\n\n%s (%s) submitted \"%s\" after the due date.\n", d.clean(teacher.Name), student, d.clean(notice.RegNo), title)
		errs = append(errs, d.send(ctx, Message{
			Kind:         KindLateSubmission,
			To:           teacher,
			Subject:      fmt.Sprintf("[%s] Late submission: %s", d.appName, title),
			Text:         text,
			SubmissionID: notice.SubmissionID,
			AssignmentID: notice.AssignmentID,
		}))
	}
	if suspicious {
		text := fmt.Sprintf("Hello %s,\n\nThe submission by %s for \"%s\" scored %d%% on the plagiarism check. Please review the attached report in the portal.\n", d.clean(teacher.Name), student, title, notice.Plagiarism)
		errs = append(errs, d.send(ctx, Message{
			Kind:         KindHighPlagiarism,
			To:           teacher,
			Subject:      fmt.Sprintf("[%s] Plagiarism alert: %s (%d%%)", d.appName, title, notice.Plagiarism),
			Text:         text,
			SubmissionID: notice.SubmissionID,
			AssignmentID: notice.AssignmentID,
		}))
	}

	return errors.Join(errs...)
}

// GradeRecorded tells the submitter about a new grade when an email is on file.
func (d *Dispatcher) GradeRecorded(ctx context.Context, notice FeedbackNotice) error {
	email := strings.TrimSpace(notice.StudentEmail)
	if email == "" {
		return nil
	}

	feedback := d.clean(notice.Feedback)
	if feedback == "" {
		feedback = "No written feedback."
	}
	title := d.clean(notice.AssignmentTitle)
	text := fmt.Sprintf("Hello %s,\n\nYour submission for \"%s\" was graded.\n\nGrade: %s\nFeedback: %s\n", d.clean(notice.StudentName), title, d.clean(notice.Grade), feedback)

	return d.send(ctx, Message{
		Kind:         KindFeedback,
		To:           Recipient{Name: notice.StudentName, Email: email},
		Subject:      fmt.Sprintf("[%s] Feedback for %s", d.appName, title),
		Text:         text,
		SubmissionID: notice.SubmissionID,
		AssignmentID: notice.AssignmentID,
	})
}

func (d *Dispatcher) lookupTeacher(ctx context.Context, teacherID uint) (teacher Recipient, err error) {
	if d.teachers == nil {
		return Recipient{}, ErrNoRecipient
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("teacher lookup panicked: %v", recovered)
		}
	}()

	teacher, err = d.teachers.Teacher(ctx, teacherID)
	if err != nil {
		return Recipient{}, err
	}
	if strings.TrimSpace(teacher.Email) == "" {
		return Recipient{}, ErrNoRecipient
	}
	return teacher, nil
}

// send is the single guarded path for every delivery.
func (d *Dispatcher) send(ctx context.Context, msg Message) error {
	msg.SentAt = d.now().UTC()
	msg.HTML = renderHTML(msg.Text)

	var errs []error
	for _, channel := range d.channels {
		name := channel.Name()
		if err := deliver(ctx, channel, msg); err != nil {
			observability.NotificationFailures().WithLabelValues(string(msg.Kind), name).Inc()
			d.logger.Warn().Err(err).
				Str("kind", string(msg.Kind)).
				Str("channel", name).
				Uint("submission_id", msg.SubmissionID).
				Msg("notification delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		observability.NotificationsSent().WithLabelValues(string(msg.Kind), name).Inc()
	}

	return errors.Join(errs...)
}

func deliver(ctx context.Context, channel Channel, msg Message) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("channel panicked: %v", recovered)
		}
	}()
	return channel.Deliver(ctx, msg)
}

func (d *Dispatcher) clean(value string) string {
	// strict policy strips tags and escapes entities; the text body is plain
	return strings.TrimSpace(html.UnescapeString(d.sanitizer.Sanitize(value)))
}
