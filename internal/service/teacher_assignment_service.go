package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

type teacherAssignmentRepository interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAssignmentDetail, error)
	ListByClass(ctx context.Context, classID string) ([]models.TeacherAssignmentDetail, error)
	Create(ctx context.Context, assignment *models.TeacherAssignment) error
	Delete(ctx context.Context, id string) error
}

type assignmentTeacherLookup interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type assignmentClassLookup interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// TeacherAssignmentService links teachers to the class/section/subject tuples
// they teach. These links feed the teacher branch of event visibility.
type TeacherAssignmentService struct {
	repo      teacherAssignmentRepository
	teachers  assignmentTeacherLookup
	classes   assignmentClassLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherAssignmentService constructs the teacher assignment service.
func NewTeacherAssignmentService(repo teacherAssignmentRepository, teachers assignmentTeacherLookup, classes assignmentClassLookup, validate *validator.Validate, logger *zap.Logger) *TeacherAssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherAssignmentService{repo: repo, teachers: teachers, classes: classes, validator: validate, logger: logger}
}

// AssignTeacherRequest is the payload for creating an assignment.
type AssignTeacherRequest struct {
	TeacherID  string  `json:"teacher_id" validate:"required"`
	ClassID    string  `json:"class_id" validate:"required"`
	SectionID  *string `json:"section_id"`
	SubjectID  string  `json:"subject_id" validate:"required"`
	SchoolYear string  `json:"school_year" validate:"required,max=12"`
}

// ListByTeacher returns a teacher's assignments.
func (s *TeacherAssignmentService) ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TeacherAssignmentDetail, error) {
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil || teacher.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	assignments, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to list assignments")
	}
	return assignments, nil
}

// ListByClass returns the assignments attached to a class.
func (s *TeacherAssignmentService) ListByClass(ctx context.Context, schoolID, classID string) ([]models.TeacherAssignmentDetail, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil || class.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	assignments, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to list assignments")
	}
	return assignments, nil
}

// Assign links a teacher to a class/subject tuple.
func (s *TeacherAssignmentService) Assign(ctx context.Context, schoolID string, req AssignTeacherRequest) (*models.TeacherAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid assignment payload")
	}
	teacher, err := s.teachers.FindByID(ctx, req.TeacherID)
	if err != nil || teacher.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil || class.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}

	assignment := &models.TeacherAssignment{
		TeacherID:  req.TeacherID,
		ClassID:    req.ClassID,
		SectionID:  req.SectionID,
		SubjectID:  req.SubjectID,
		SchoolYear: req.SchoolYear,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to create assignment")
	}
	return assignment, nil
}

// Unassign removes an assignment.
func (s *TeacherAssignmentService) Unassign(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "failed to delete assignment")
	}
	return nil
}
