package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission is one student's attempt at an assignment together with its
// analysis results. Submitter fields are a snapshot taken at submit time and
// stay valid even when no student account exists.
type Submission struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	AssignmentID  uint           `gorm:"not null;index" json:"assignment_id"`
	StudentID     *uint          `gorm:"index" json:"student_id"`
	StudentName   string         `gorm:"size:120;not null" json:"student_name"`
	StudentEmail  string         `gorm:"size:120" json:"student_email"`
	RegNo         string         `gorm:"size:20;index" json:"reg_no"`
	FilePath      string         `gorm:"size:300" json:"file_path"`
	FileExt       string         `gorm:"size:16" json:"file_ext"`
	MimeType      string         `gorm:"size:128" json:"mime_type"`
	TextContent   string         `gorm:"type:text" json:"text_content"`
	AnalyzedText  string         `gorm:"type:text" json:"-"`
	SubmittedAt   time.Time      `gorm:"not null" json:"submitted_at"`
	IsLate        bool           `gorm:"not null;default:false" json:"is_late"`
	Plagiarism    int            `gorm:"not null;default:0" json:"plagiarism"`
	AIDetected    bool           `gorm:"not null;default:false" json:"ai_detected"`
	ReportPath    *string        `gorm:"size:300" json:"report_path"`
	Grade         *string        `gorm:"size:10" json:"grade"`
	Feedback      *string        `gorm:"type:text" json:"feedback"`
	AnalysisNotes datatypes.JSON `json:"analysis_notes"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Assignment    Assignment     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// HasFile reports whether the submission carries uploaded bytes.
func (s Submission) HasFile() bool {
	return s.FilePath != ""
}

// IsGraded reports whether a teacher has recorded a grade.
func (s Submission) IsGraded() bool {
	return s.Grade != nil && *s.Grade != ""
}

// SubmissionOverview aggregates submission counters for the analytics view.
type SubmissionOverview struct {
	TotalAssignments  int64
	TotalSubmissions  int64
	LateSubmissions   int64
	HighPlagiarism    int64
	AIDetected        int64
	GradedSubmissions int64
}
