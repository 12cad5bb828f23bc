package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-portal/internal/models"
)

// ErrUnknownTeacher indicates a seeded assignment names a teacher that is
// neither stored nor part of the same roster.
var ErrUnknownTeacher = errors.New("unknown teacher")

// RosterAssignment is an assignment whose owner is given by email.
type RosterAssignment struct {
	Assignment   models.Assignment
	TeacherEmail string
}

// Roster is a batch of reference data applied together.
type Roster struct {
	Teachers    []models.Teacher
	Students    []models.Student
	Assignments []RosterAssignment
}

// RosterResult counts the rows written per table.
type RosterResult struct {
	Teachers    int64
	Students    int64
	Assignments int64
}

// RosterRepository upserts teachers, students and assignments.
type RosterRepository interface {
	Apply(ctx context.Context, roster Roster) (RosterResult, error)
}

type rosterRepository struct {
	db *gorm.DB
}

// NewRosterRepository constructs the repository implementation.
func NewRosterRepository(db *gorm.DB) RosterRepository {
	return &rosterRepository{db: db}
}

// Apply writes the roster in one transaction. Teachers are keyed by email,
// students by registration number and assignments by title within a teacher.
func (r *rosterRepository) Apply(ctx context.Context, roster Roster) (RosterResult, error) {
	var result RosterResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(roster.Teachers) > 0 {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "email"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
			}).Create(&roster.Teachers)
			if res.Error != nil {
				return fmt.Errorf("upsert teachers: %w", res.Error)
			}
			result.Teachers = res.RowsAffected
		}

		if len(roster.Students) > 0 {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "reg_no"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "email", "updated_at"}),
			}).Create(&roster.Students)
			if res.Error != nil {
				return fmt.Errorf("upsert students: %w", res.Error)
			}
			result.Students = res.RowsAffected
		}

		for _, item := range roster.Assignments {
			var teacher models.Teacher
			if err := tx.Where("email = ?", strings.ToLower(strings.TrimSpace(item.TeacherEmail))).First(&teacher).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: %s", ErrUnknownTeacher, item.TeacherEmail)
				}
				return err
			}

			assignment := item.Assignment
			assignment.TeacherID = teacher.ID
			var stored models.Assignment
			res := tx.Where(models.Assignment{Title: assignment.Title, TeacherID: teacher.ID}).
				Assign(models.Assignment{Description: assignment.Description, DueDate: assignment.DueDate}).
				FirstOrCreate(&stored)
			if res.Error != nil {
				return fmt.Errorf("upsert assignment %q: %w", assignment.Title, res.Error)
			}
			result.Assignments++
		}

		return nil
	})
	if err != nil {
		return RosterResult{}, err
	}

	return result, nil
}
