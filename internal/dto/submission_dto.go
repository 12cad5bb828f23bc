package dto

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/noah-isme/gema-portal/internal/models"
)

// SubmissionCreateRequest describes the multipart form of a submission.
// The file part is optional when text_data is present.
type SubmissionCreateRequest struct {
	AssignmentID uint   `form:"assignment_id" validate:"required,gt=0"`
	StudentName  string `form:"student_name" validate:"required,max=120"`
	RegNo        string `form:"reg_no" validate:"required,max=20"`
	Email        string `form:"email" validate:"omitempty,email,max=120"`
	TextData     string `form:"text_data"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	AssignmentID *uint  `query:"assignment_id"`
	StudentID    *uint  `query:"student_id"`
	RegNo        string `query:"reg_no" validate:"omitempty,max=20"`
	Late         *bool  `query:"late"`
	Flagged      *bool  `query:"flagged"`
	Page         int    `query:"page" validate:"omitempty,gte=1"`
	PageSize     int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// GradeRequest records a grade and optional feedback on one submission.
type GradeRequest struct {
	Grade    string  `json:"grade" validate:"required,max=10"`
	Feedback *string `json:"feedback" validate:"omitempty,max=5000"`
}

// BulkGradeRequest applies one grade to several submissions.
type BulkGradeRequest struct {
	SubmissionIDs []uint  `json:"submission_ids" validate:"required,min=1,max=200,dive,gt=0"`
	Grade         string  `json:"grade" validate:"required,max=10"`
	Feedback      *string `json:"feedback" validate:"omitempty,max=5000"`
}

// BulkGradeResponse reports how many submissions were graded.
type BulkGradeResponse struct {
	Updated int64  `json:"updated"`
	Missing []uint `json:"missing,omitempty"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID            uint            `json:"id"`
	AssignmentID  uint            `json:"assignment_id"`
	StudentID     *uint           `json:"student_id"`
	StudentName   string          `json:"student_name"`
	StudentEmail  string          `json:"student_email"`
	RegNo         string          `json:"reg_no"`
	FileName      string          `json:"file_name,omitempty"`
	FileExt       string          `json:"file_ext,omitempty"`
	MimeType      string          `json:"mime_type,omitempty"`
	TextContent   string          `json:"text_content,omitempty"`
	SubmittedAt   time.Time       `json:"submitted_at"`
	IsLate        bool            `json:"is_late"`
	Plagiarism    int             `json:"plagiarism"`
	AIDetected    bool            `json:"ai_detected"`
	HasReport     bool            `json:"has_report"`
	Grade         *string         `json:"grade"`
	Feedback      *string         `json:"feedback"`
	AnalysisNotes json.RawMessage `json:"analysis_notes,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Assignment    *AssignmentLite `json:"assignment,omitempty"`
}

// AssignmentLite summarizes an assignment in submission responses.
type AssignmentLite struct {
	ID      uint      `json:"id"`
	Title   string    `json:"title"`
	DueDate time.Time `json:"due_date"`
}

// SubmissionListResponse wraps a page of submissions.
type SubmissionListResponse struct {
	Items    []SubmissionResponse `json:"items"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// SubmissionReceipt is returned after a successful intake.
type SubmissionReceipt struct {
	Submission SubmissionResponse `json:"submission"`
	Degraded   []string           `json:"degraded,omitempty"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		StudentID:    model.StudentID,
		StudentName:  model.StudentName,
		StudentEmail: model.StudentEmail,
		RegNo:        model.RegNo,
		FileExt:      model.FileExt,
		MimeType:     model.MimeType,
		TextContent:  model.TextContent,
		SubmittedAt:  model.SubmittedAt,
		IsLate:       model.IsLate,
		Plagiarism:   model.Plagiarism,
		AIDetected:   model.AIDetected,
		HasReport:    model.ReportPath != nil && *model.ReportPath != "",
		Grade:        model.Grade,
		Feedback:     model.Feedback,
		UpdatedAt:    model.UpdatedAt,
	}

	if model.HasFile() {
		response.FileName = filepath.Base(model.FilePath)
	}

	if len(model.AnalysisNotes) > 0 {
		response.AnalysisNotes = json.RawMessage(model.AnalysisNotes)
	}

	if model.Assignment.ID != 0 {
		response.Assignment = &AssignmentLite{
			ID:      model.Assignment.ID,
			Title:   model.Assignment.Title,
			DueDate: model.Assignment.DueDate,
		}
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(models []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(models))
	for _, submission := range models {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
