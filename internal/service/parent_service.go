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

type parentRepository interface {
	List(ctx context.Context, filter models.ParentFilter) ([]models.Parent, int, error)
	FindByID(ctx context.Context, id string) (*models.Parent, error)
	Create(ctx context.Context, parent *models.Parent) error
	Update(ctx context.Context, parent *models.Parent) error
	Delete(ctx context.Context, id string) error
	LinkStudent(ctx context.Context, link *models.ParentStudent) error
	UnlinkStudent(ctx context.Context, parentID, studentID string) error
	ListChildren(ctx context.Context, parentID string) ([]models.Student, error)
}

type parentStudentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// ParentService manages guardian accounts and their student links. The links
// drive the parent's transitive calendar visibility.
type ParentService struct {
	repo      parentRepository
	students  parentStudentLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewParentService constructs the parent service.
func NewParentService(repo parentRepository, students parentStudentLookup, validate *validator.Validate, logger *zap.Logger) *ParentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParentService{repo: repo, students: students, validator: validate, logger: logger}
}

// ParentRequest is the create/update payload.
type ParentRequest struct {
	FullName string `json:"full_name" validate:"required,min=2,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"max=30"`
	Address  string `json:"address" validate:"max=300"`
}

// LinkStudentRequest attaches a student to a parent.
type LinkStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Relation  string `json:"relation" validate:"required,oneof=FATHER MOTHER GUARDIAN"`
}

// List returns parents matching the filter.
func (s *ParentService) List(ctx context.Context, filter models.ParentFilter) ([]models.Parent, int, error) {
	parents, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal, "failed to list parents")
	}
	return parents, total, nil
}

// Get returns a parent, scoped to the school.
func (s *ParentService) Get(ctx context.Context, schoolID, id string) (*models.Parent, error) {
	parent, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "parent not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to load parent")
	}
	if parent.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "parent not found")
	}
	return parent, nil
}

// Create registers a parent.
func (s *ParentService) Create(ctx context.Context, schoolID string, req ParentRequest) (*models.Parent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid parent payload")
	}
	parent := &models.Parent{
		SchoolID: schoolID,
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
	}
	if err := s.repo.Create(ctx, parent); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to create parent")
	}
	return parent, nil
}

// Update modifies a parent.
func (s *ParentService) Update(ctx context.Context, schoolID, id string, req ParentRequest) (*models.Parent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid parent payload")
	}
	parent, err := s.Get(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}
	parent.FullName = req.FullName
	parent.Email = req.Email
	parent.Phone = req.Phone
	parent.Address = req.Address
	if err := s.repo.Update(ctx, parent); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to update parent")
	}
	return parent, nil
}

// Delete removes a parent and its student links.
func (s *ParentService) Delete(ctx context.Context, schoolID, id string) error {
	if _, err := s.Get(ctx, schoolID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "failed to delete parent")
	}
	return nil
}

// LinkStudent attaches a student of the same school to the parent.
func (s *ParentService) LinkStudent(ctx context.Context, schoolID, parentID string, req LinkStudentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation, "invalid link payload")
	}
	if _, err := s.Get(ctx, schoolID, parentID); err != nil {
		return err
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal, "failed to load student")
	}
	if student.SchoolID != schoolID {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	link := &models.ParentStudent{ParentID: parentID, StudentID: req.StudentID, Relation: req.Relation}
	if err := s.repo.LinkStudent(ctx, link); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "failed to link student")
	}
	return nil
}

// UnlinkStudent removes a parent/student link.
func (s *ParentService) UnlinkStudent(ctx context.Context, schoolID, parentID, studentID string) error {
	if _, err := s.Get(ctx, schoolID, parentID); err != nil {
		return err
	}
	if err := s.repo.UnlinkStudent(ctx, parentID, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "failed to unlink student")
	}
	return nil
}

// Children lists the students linked to a parent.
func (s *ParentService) Children(ctx context.Context, schoolID, parentID string) ([]models.Student, error) {
	if _, err := s.Get(ctx, schoolID, parentID); err != nil {
		return nil, err
	}
	children, err := s.repo.ListChildren(ctx, parentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to list children")
	}
	return children, nil
}
