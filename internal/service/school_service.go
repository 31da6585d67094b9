package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

type schoolRepository interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
	List(ctx context.Context, filter models.SchoolFilter) ([]models.School, int, error)
	Create(ctx context.Context, school *models.School) error
	Update(ctx context.Context, school *models.School) error
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// SchoolService manages tenant lifecycle. Creating a school also seeds its
// onboarding checklist and system calendar categories so both trackers are
// ready before the first admin logs in.
type SchoolService struct {
	repo       schoolRepository
	onboarding *OnboardingService
	calendar   *CalendarService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSchoolService constructs the school service.
func NewSchoolService(repo schoolRepository, onboarding *OnboardingService, calendar *CalendarService, validate *validator.Validate, logger *zap.Logger) *SchoolService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchoolService{repo: repo, onboarding: onboarding, calendar: calendar, validator: validate, logger: logger}
}

// CreateSchoolRequest is the payload for registering a tenant.
type CreateSchoolRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Slug     string `json:"slug" validate:"omitempty,min=2,max=60"`
	Timezone string `json:"timezone" validate:"required"`
	Address  string `json:"address" validate:"max=300"`
}

// UpdateSchoolRequest is the payload for updating a tenant.
type UpdateSchoolRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Timezone string `json:"timezone" validate:"required"`
	Address  string `json:"address" validate:"max=300"`
	Active   *bool  `json:"active"`
}

// Get returns a school by ID.
func (s *SchoolService) Get(ctx context.Context, id string) (*models.School, error) {
	school, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to load school")
	}
	return school, nil
}

// List returns schools matching the filter.
func (s *SchoolService) List(ctx context.Context, filter models.SchoolFilter) ([]models.School, int, error) {
	schools, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal, "failed to list schools")
	}
	return schools, total, nil
}

// Create registers a school and seeds its onboarding checklist and system
// calendar categories.
func (s *SchoolService) Create(ctx context.Context, req CreateSchoolRequest) (*models.School, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid school payload")
	}

	slug := req.Slug
	if slug == "" {
		slug = slugify(req.Name)
	}
	school := &models.School{
		Name:           req.Name,
		Slug:           slug,
		Timezone:       req.Timezone,
		Address:        req.Address,
		Active:         true,
		OnboardingStep: 1,
	}
	if err := s.repo.Create(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to create school")
	}

	if err := s.onboarding.InitializeSteps(ctx, school.ID); err != nil {
		s.logger.Error("seed onboarding steps", zap.String("school_id", school.ID), zap.Error(err))
	}
	if err := s.calendar.EnsureSystemCategories(ctx, school.ID); err != nil {
		s.logger.Error("seed system categories", zap.String("school_id", school.ID), zap.Error(err))
	}
	return school, nil
}

// Update modifies mutable school fields.
func (s *SchoolService) Update(ctx context.Context, id string, req UpdateSchoolRequest) (*models.School, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid school payload")
	}

	school, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	school.Name = req.Name
	school.Timezone = req.Timezone
	school.Address = req.Address
	if req.Active != nil {
		school.Active = *req.Active
	}
	if err := s.repo.Update(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to update school")
	}
	return school, nil
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugPattern.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
