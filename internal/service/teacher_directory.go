package service

import (
	"context"

	"github.com/noah-isme/gema-portal/internal/notify"
	"github.com/noah-isme/gema-portal/internal/repository"
)

// TeacherDirectory resolves assignment owners for the notification dispatcher.
type TeacherDirectory struct {
	teachers repository.TeacherRepository
}

// NewTeacherDirectory wraps the teacher repository.
func NewTeacherDirectory(teachers repository.TeacherRepository) *TeacherDirectory {
	return &TeacherDirectory{teachers: teachers}
}

func (d *TeacherDirectory) Teacher(ctx context.Context, teacherID uint) (notify.Recipient, error) {
	teacher, err := d.teachers.GetByID(ctx, teacherID)
	if err != nil {
		return notify.Recipient{}, err
	}
	return notify.Recipient{ID: teacher.ID, Name: teacher.Name, Email: teacher.Email}, nil
}
