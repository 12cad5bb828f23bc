package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-portal/internal/models"
)

// TeacherRepository resolves assignment owners.
type TeacherRepository interface {
	GetByID(ctx context.Context, id uint) (models.Teacher, error)
}

type teacherRepository struct {
	db *gorm.DB
}

// NewTeacherRepository constructs a teacher repository.
func NewTeacherRepository(db *gorm.DB) TeacherRepository {
	return &teacherRepository{db: db}
}

func (r *teacherRepository) GetByID(ctx context.Context, id uint) (models.Teacher, error) {
	var teacher models.Teacher
	if err := r.db.WithContext(ctx).First(&teacher, id).Error; err != nil {
		return models.Teacher{}, err
	}

	return teacher, nil
}
