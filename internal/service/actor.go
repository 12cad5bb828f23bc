package service

import (
	"errors"
	"strings"

	"github.com/noah-isme/gema-portal/internal/models"
	"github.com/noah-isme/gema-portal/internal/pipeline"
)

var (
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrAssignmentNotFound indicates the referenced assignment does not exist.
	ErrAssignmentNotFound = pipeline.ErrAssignmentNotFound
	// ErrForbidden indicates the actor may not access the submission.
	ErrForbidden = errors.New("access denied")
	// ErrFileNotFound indicates the submission has no stored upload.
	ErrFileNotFound = errors.New("file not found")
	// ErrReportNotFound indicates no report artifact exists for the submission.
	ErrReportNotFound = errors.New("report not found")
)

// Role names carried in JWT claims.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Actor identifies the caller of a service operation. The zero value is an
// anonymous guest.
type Actor struct {
	ID   uint
	Role string
}

// IsStaff reports whether the actor may see every submission.
func (a Actor) IsStaff() bool {
	role := strings.ToLower(a.Role)
	return role == RoleTeacher || role == RoleAdmin
}

// IsStudent reports whether the actor is an authenticated student.
func (a Actor) IsStudent() bool {
	return a.ID != 0 && strings.EqualFold(a.Role, RoleStudent)
}

// CanView reports whether the actor may read the submission.
func (a Actor) CanView(submission models.Submission) bool {
	if a.IsStaff() {
		return true
	}
	return a.IsStudent() && submission.StudentID != nil && *submission.StudentID == a.ID
}
