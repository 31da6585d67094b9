package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id string) error
	ListSections(ctx context.Context, classID string) ([]models.Section, error)
	CreateSection(ctx context.Context, section *models.Section) error
	DeleteSection(ctx context.Context, id string) error
}

// ClassService manages classes and their sections.
type ClassService struct {
	repo      classRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs the class service.
func NewClassService(repo classRepository, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, validator: validate, logger: logger}
}

// ClassRequest is the create/update payload.
type ClassRequest struct {
	Name              string  `json:"name" validate:"required,min=1,max=60"`
	Grade             string  `json:"grade" validate:"required,max=10"`
	HomeroomTeacherID *string `json:"homeroom_teacher_id"`
}

// SectionRequest is the payload for adding a section to a class.
type SectionRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=30"`
	Capacity int    `json:"capacity" validate:"gte=0,lte=200"`
}

// List returns classes matching the filter.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal, "failed to list classes")
	}
	return classes, total, nil
}

// Get returns a class, scoped to the school.
func (s *ClassService) Get(ctx context.Context, schoolID, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to load class")
	}
	if class.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	return class, nil
}

// Create registers a class.
func (s *ClassService) Create(ctx context.Context, schoolID string, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid class payload")
	}
	class := &models.Class{
		SchoolID:          schoolID,
		Name:              req.Name,
		Grade:             req.Grade,
		HomeroomTeacherID: req.HomeroomTeacherID,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to create class")
	}
	return class, nil
}

// Update modifies a class.
func (s *ClassService) Update(ctx context.Context, schoolID, id string, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid class payload")
	}
	class, err := s.Get(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}
	class.Name = req.Name
	class.Grade = req.Grade
	class.HomeroomTeacherID = req.HomeroomTeacherID
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to update class")
	}
	return class, nil
}

// Delete removes a class.
func (s *ClassService) Delete(ctx context.Context, schoolID, id string) error {
	if _, err := s.Get(ctx, schoolID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "failed to delete class")
	}
	return nil
}

// Sections lists the sections of a class.
func (s *ClassService) Sections(ctx context.Context, schoolID, classID string) ([]models.Section, error) {
	if _, err := s.Get(ctx, schoolID, classID); err != nil {
		return nil, err
	}
	sections, err := s.repo.ListSections(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to list sections")
	}
	return sections, nil
}

// AddSection appends a section to a class.
func (s *ClassService) AddSection(ctx context.Context, schoolID, classID string, req SectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid section payload")
	}
	if _, err := s.Get(ctx, schoolID, classID); err != nil {
		return nil, err
	}
	section := &models.Section{ClassID: classID, Name: req.Name, Capacity: req.Capacity}
	if err := s.repo.CreateSection(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to create section")
	}
	return section, nil
}

// RemoveSection deletes a section from a class.
func (s *ClassService) RemoveSection(ctx context.Context, schoolID, classID, sectionID string) error {
	if _, err := s.Get(ctx, schoolID, classID); err != nil {
		return err
	}
	if err := s.repo.DeleteSection(ctx, sectionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "failed to delete section")
	}
	return nil
}
