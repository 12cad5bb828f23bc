package service

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-portal/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Teacher{}, &models.Student{}, &models.Assignment{}, &models.Submission{}))
	return db
}

func seedAssignment(t *testing.T, db *gorm.DB) models.Assignment {
	t.Helper()
	teacher := models.Teacher{Name: "Pak Budi", Email: "budi@school.test"}
	require.NoError(t, db.Create(&teacher).Error)
	assignment := models.Assignment{Title: "Photosynthesis Lab", DueDate: time.Now().Add(72 * time.Hour), TeacherID: teacher.ID}
	require.NoError(t, db.Create(&assignment).Error)
	return assignment
}

func seedSubmission(t *testing.T, db *gorm.DB, submission models.Submission) models.Submission {
	t.Helper()
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	require.NoError(t, db.Omit("Assignment").Create(&submission).Error)
	return submission
}

func ptr[T any](v T) *T { return &v }
