package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

type assignmentRepository interface {
	List(ctx context.Context, schoolID string) ([]models.Assignment, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id string) error
}

// AssignmentService manages homework assignments. The calendar mirror is a
// point-in-time entry at the due date.
type AssignmentService struct {
	repo      assignmentRepository
	sync      *CalendarSyncService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs the assignment service.
func NewAssignmentService(repo assignmentRepository, sync *CalendarSyncService, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, sync: sync, validator: validate, logger: logger}
}

// AssignmentRequest is the create/update payload.
type AssignmentRequest struct {
	Title       string    `json:"title" validate:"required,min=1,max=200"`
	Description string    `json:"description" validate:"max=2000"`
	SubjectID   string    `json:"subject_id" validate:"required"`
	ClassID     string    `json:"class_id" validate:"required"`
	SectionIDs  []string  `json:"section_ids"`
	DueAt       time.Time `json:"due_at" validate:"required"`
}

// List returns the school's assignments.
func (s *AssignmentService) List(ctx context.Context, schoolID string) ([]models.Assignment, error) {
	assignments, err := s.repo.List(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to list assignments")
	}
	return assignments, nil
}

// Get returns an assignment, scoped to the school.
func (s *AssignmentService) Get(ctx context.Context, schoolID, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to load assignment")
	}
	if assignment.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	return assignment, nil
}

// Create registers an assignment and mirrors it onto the calendar.
func (s *AssignmentService) Create(ctx context.Context, schoolID, createdBy string, req AssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid assignment payload")
	}
	assignment := &models.Assignment{
		SchoolID:    schoolID,
		Title:       req.Title,
		Description: req.Description,
		SubjectID:   req.SubjectID,
		ClassID:     req.ClassID,
		SectionIDs:  req.SectionIDs,
		DueAt:       req.DueAt,
		CreatedBy:   createdBy,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to create assignment")
	}
	s.mirror(ctx, assignment)
	return assignment, nil
}

// Update modifies an assignment and refreshes its calendar mirror.
func (s *AssignmentService) Update(ctx context.Context, schoolID, id string, req AssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid assignment payload")
	}
	assignment, err := s.Get(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}
	assignment.Title = req.Title
	assignment.Description = req.Description
	assignment.SubjectID = req.SubjectID
	assignment.ClassID = req.ClassID
	assignment.SectionIDs = req.SectionIDs
	assignment.DueAt = req.DueAt
	if err := s.repo.Update(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to update assignment")
	}
	if err := s.sync.Refresh(ctx, assignment.Source()); err != nil {
		s.logger.Warn("refresh assignment mirror", zap.String("assignment_id", assignment.ID), zap.Error(err))
	}
	return assignment, nil
}

// Delete removes an assignment and its calendar mirror.
func (s *AssignmentService) Delete(ctx context.Context, schoolID, id string) error {
	if _, err := s.Get(ctx, schoolID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "failed to delete assignment")
	}
	if err := s.sync.Remove(ctx, models.SourceTypeAssignment, id); err != nil {
		s.logger.Warn("remove assignment mirror", zap.String("assignment_id", id), zap.Error(err))
	}
	return nil
}

func (s *AssignmentService) mirror(ctx context.Context, assignment *models.Assignment) {
	if err := s.sync.Sync(ctx, assignment.Source()); err != nil {
		s.logger.Warn("mirror assignment", zap.String("assignment_id", assignment.ID), zap.Error(err))
	}
}
