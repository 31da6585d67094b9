package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Transfer(ctx context.Context, studentID string, next *models.Enrollment) error
	Leave(ctx context.Context, studentID string) error
}

type enrollmentStudentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type enrollmentClassLookup interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// EnrollmentService manages student enrollments. Enrollments are what make
// class and section scoped calendar events visible to a student, so every
// mutation here immediately changes what the student's feed shows.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  enrollmentStudentLookup
	classes   enrollmentClassLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(repo enrollmentRepository, students enrollmentStudentLookup, classes enrollmentClassLookup, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, students: students, classes: classes, validator: validate, logger: logger}
}

// EnrollRequest is the payload for enrolling or transferring a student.
type EnrollRequest struct {
	StudentID  string  `json:"student_id" validate:"required"`
	ClassID    string  `json:"class_id" validate:"required"`
	SectionID  *string `json:"section_id"`
	SchoolYear string  `json:"school_year" validate:"required,max=12"`
}

// List returns enrollments matching the filter.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal, "failed to list enrollments")
	}
	return enrollments, total, nil
}

// Enroll creates an active enrollment for a student. A student with an active
// enrollment must be transferred instead.
func (s *EnrollmentService) Enroll(ctx context.Context, schoolID string, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid enrollment payload")
	}
	if err := s.verifyScope(ctx, schoolID, req); err != nil {
		return nil, err
	}

	active, err := s.repo.ListActiveByStudent(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to check active enrollment")
	}
	if len(active) > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has an active enrollment")
	}

	enrollment := &models.Enrollment{
		StudentID:  req.StudentID,
		ClassID:    req.ClassID,
		SectionID:  req.SectionID,
		SchoolYear: req.SchoolYear,
		Status:     models.EnrollmentStatusActive,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to create enrollment")
	}
	return enrollment, nil
}

// Transfer closes the student's active enrollment and opens a new one.
func (s *EnrollmentService) Transfer(ctx context.Context, schoolID string, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid enrollment payload")
	}
	if err := s.verifyScope(ctx, schoolID, req); err != nil {
		return nil, err
	}

	next := &models.Enrollment{
		ClassID:    req.ClassID,
		SectionID:  req.SectionID,
		SchoolYear: req.SchoolYear,
	}
	if err := s.repo.Transfer(ctx, req.StudentID, next); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to transfer enrollment")
	}
	return next, nil
}

// Leave marks the student's active enrollment as LEFT.
func (s *EnrollmentService) Leave(ctx context.Context, schoolID, studentID string) error {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil || student.SchoolID != schoolID {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if err := s.repo.Leave(ctx, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "failed to close enrollment")
	}
	return nil
}

// verifyScope checks that the student and class both belong to the school.
func (s *EnrollmentService) verifyScope(ctx context.Context, schoolID string, req EnrollRequest) error {
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil || student.SchoolID != schoolID {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil || class.SchoolID != schoolID {
		return appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	return nil
}
