package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-portal/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	AssignmentID *uint
	StudentID    *uint
	RegNo        string
	Late         *bool
	// Flagged keeps submissions above FlagThreshold or flagged as AI generated.
	Flagged       *bool
	FlagThreshold int
	Page          int
	PageSize      int
}

// SubmissionWriter is the subset of operations available inside a transaction.
type SubmissionWriter interface {
	Create(ctx context.Context, submission *models.Submission) error
	Patch(ctx context.Context, id uint, fields map[string]interface{}) error
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	SubmissionWriter
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	ListByIDs(ctx context.Context, ids []uint) ([]models.Submission, error)
	UpdateGrade(ctx context.Context, ids []uint, grade string, feedback *string) (int64, error)
	Corpus(ctx context.Context, assignmentID uint, excludeRegNo string) ([]models.Submission, error)
	Overview(ctx context.Context, plagiarismThreshold int) (models.SubmissionOverview, error)
	InTransaction(ctx context.Context, fn func(tx SubmissionWriter) error) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).Preload("Assignment")
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{})

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if regNo := strings.TrimSpace(filter.RegNo); regNo != "" {
		query = query.Where("reg_no = ?", regNo)
	}

	if filter.Late != nil {
		query = query.Where("is_late = ?", *filter.Late)
	}

	if filter.Flagged != nil {
		if *filter.Flagged {
			query = query.Where("plagiarism > ? OR ai_detected = ?", filter.FlagThreshold, true)
		} else {
			query = query.Where("plagiarism <= ? AND ai_detected = ?", filter.FlagThreshold, false)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Preload("Assignment").Order("submitted_at DESC").Order("id DESC")
	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var submissions []models.Submission
	if err := query.Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListByIDs(ctx context.Context, ids []uint) ([]models.Submission, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var submissions []models.Submission
	if err := r.baseQuery(ctx).Where("id IN ?", ids).Order("id ASC").Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Omit("Assignment").Create(submission).Error
}

func (r *submissionRepository) Patch(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Model(&models.Submission{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateGrade writes grade and feedback only; analysis columns are never part of the update.
func (r *submissionRepository) UpdateGrade(ctx context.Context, ids []uint, grade string, feedback *string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"grade":    grade,
			"feedback": feedback,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Corpus returns earlier submissions of an assignment that carry analysable
// text, excluding the given registration number.
func (r *submissionRepository) Corpus(ctx context.Context, assignmentID uint, excludeRegNo string) ([]models.Submission, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{}).
		Select("id", "assignment_id", "student_name", "reg_no", "analyzed_text", "text_content").
		Where("assignment_id = ?", assignmentID).
		Where("(analyzed_text <> '' OR text_content <> '')")

	if regNo := strings.TrimSpace(excludeRegNo); regNo != "" {
		query = query.Where("reg_no <> ?", regNo)
	}

	var submissions []models.Submission
	if err := query.Order("id ASC").Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) Overview(ctx context.Context, plagiarismThreshold int) (models.SubmissionOverview, error) {
	var overview models.SubmissionOverview
	db := r.db.WithContext(ctx)

	if err := db.Model(&models.Assignment{}).Count(&overview.TotalAssignments).Error; err != nil {
		return overview, err
	}

	counts := []struct {
		target *int64
		where  string
		args   []interface{}
	}{
		{target: &overview.TotalSubmissions},
		{target: &overview.LateSubmissions, where: "is_late = ?", args: []interface{}{true}},
		{target: &overview.HighPlagiarism, where: "plagiarism > ?", args: []interface{}{plagiarismThreshold}},
		{target: &overview.AIDetected, where: "ai_detected = ?", args: []interface{}{true}},
		{target: &overview.GradedSubmissions, where: "grade IS NOT NULL AND grade <> ''"},
	}

	for _, c := range counts {
		query := db.Model(&models.Submission{})
		if c.where != "" {
			query = query.Where(c.where, c.args...)
		}
		if err := query.Count(c.target).Error; err != nil {
			return overview, err
		}
	}

	return overview, nil
}

func (r *submissionRepository) InTransaction(ctx context.Context, fn func(tx SubmissionWriter) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&submissionRepository{db: tx})
	})
}
