package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-portal/internal/dto"
	"github.com/noah-isme/gema-portal/internal/models"
	"github.com/noah-isme/gema-portal/internal/repository"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
)

// SeedService loads teachers, students and assignments.
type SeedService interface {
	SeedRoster(ctx context.Context, token string, payload dto.RosterSeedRequest) (dto.RosterSeedResponse, error)
}

type seedService struct {
	repo      repository.RosterRepository
	validator *validator.Validate
	enabled   bool
	token     string
	logger    zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(repo repository.RosterRepository, validate *validator.Validate, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		repo:      repo,
		validator: validate,
		enabled:   enabled,
		token:     token,
		logger:    logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedRoster(ctx context.Context, token string, payload dto.RosterSeedRequest) (dto.RosterSeedResponse, error) {
	if !s.enabled {
		return dto.RosterSeedResponse{}, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return dto.RosterSeedResponse{}, ErrSeedUnauthorized
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.RosterSeedResponse{}, err
	}

	roster := repository.Roster{
		Teachers: make([]models.Teacher, 0, len(payload.Teachers)),
		Students: make([]models.Student, 0, len(payload.Students)),
	}
	for _, teacher := range payload.Teachers {
		roster.Teachers = append(roster.Teachers, models.Teacher{
			Name:  strings.TrimSpace(teacher.Name),
			Email: normalizeEmail(teacher.Email),
		})
	}
	for _, student := range payload.Students {
		roster.Students = append(roster.Students, models.Student{
			Name:  strings.TrimSpace(student.Name),
			RegNo: strings.TrimSpace(student.RegNo),
			Email: normalizeEmail(student.Email),
		})
	}
	for _, item := range payload.Assignments {
		// validated above
		due, _ := time.Parse(time.RFC3339, item.DueDate)
		roster.Assignments = append(roster.Assignments, repository.RosterAssignment{
			Assignment: models.Assignment{
				Title:       strings.TrimSpace(item.Title),
				Description: item.Description,
				DueDate:     due.UTC(),
			},
			TeacherEmail: normalizeEmail(item.TeacherEmail),
		})
	}

	result, err := s.repo.Apply(ctx, roster)
	if err != nil {
		return dto.RosterSeedResponse{}, err
	}

	s.logger.Info().
		Int64("teachers", result.Teachers).
		Int64("students", result.Students).
		Int64("assignments", result.Assignments).
		Msg("roster seeded")

	return dto.RosterSeedResponse{
		Teachers:    result.Teachers,
		Students:    result.Students,
		Assignments: result.Assignments,
	}, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
