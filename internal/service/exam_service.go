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

type examRepository interface {
	List(ctx context.Context, schoolID string) ([]models.Exam, error)
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	Create(ctx context.Context, exam *models.Exam) error
	Update(ctx context.Context, exam *models.Exam) error
	Delete(ctx context.Context, id string) error
}

// ExamService manages exam schedules. Writes are mirrored onto the calendar;
// a mirror failure never fails the exam write, the next update repairs it.
type ExamService struct {
	repo      examRepository
	sync      *CalendarSyncService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExamService constructs the exam service.
func NewExamService(repo examRepository, sync *CalendarSyncService, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamService{repo: repo, sync: sync, validator: validate, logger: logger}
}

// ExamRequest is the create/update payload.
type ExamRequest struct {
	Title       string    `json:"title" validate:"required,min=1,max=200"`
	Description string    `json:"description" validate:"max=2000"`
	SubjectID   string    `json:"subject_id" validate:"required"`
	ClassID     string    `json:"class_id" validate:"required"`
	SectionIDs  []string  `json:"section_ids"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at" validate:"required"`
}

// List returns the school's exams.
func (s *ExamService) List(ctx context.Context, schoolID string) ([]models.Exam, error) {
	exams, err := s.repo.List(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to list exams")
	}
	return exams, nil
}

// Get returns an exam, scoped to the school.
func (s *ExamService) Get(ctx context.Context, schoolID, id string) (*models.Exam, error) {
	exam, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to load exam")
	}
	if exam.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
	}
	return exam, nil
}

// Create schedules an exam and mirrors it onto the calendar.
func (s *ExamService) Create(ctx context.Context, schoolID, createdBy string, req ExamRequest) (*models.Exam, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	exam := &models.Exam{
		SchoolID:    schoolID,
		Title:       req.Title,
		Description: req.Description,
		SubjectID:   req.SubjectID,
		ClassID:     req.ClassID,
		SectionIDs:  req.SectionIDs,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		CreatedBy:   createdBy,
	}
	if err := s.repo.Create(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to create exam")
	}
	s.mirror(ctx, exam)
	return exam, nil
}

// Update modifies an exam and refreshes its calendar mirror.
func (s *ExamService) Update(ctx context.Context, schoolID, id string, req ExamRequest) (*models.Exam, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	exam, err := s.Get(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}
	exam.Title = req.Title
	exam.Description = req.Description
	exam.SubjectID = req.SubjectID
	exam.ClassID = req.ClassID
	exam.SectionIDs = req.SectionIDs
	exam.StartsAt = req.StartsAt
	exam.EndsAt = req.EndsAt
	if err := s.repo.Update(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to update exam")
	}
	if err := s.sync.Refresh(ctx, exam.Source()); err != nil {
		s.logger.Warn("refresh exam mirror", zap.String("exam_id", exam.ID), zap.Error(err))
	}
	return exam, nil
}

// Delete removes an exam and its calendar mirror.
func (s *ExamService) Delete(ctx context.Context, schoolID, id string) error {
	if _, err := s.Get(ctx, schoolID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "failed to delete exam")
	}
	if err := s.sync.Remove(ctx, models.SourceTypeExam, id); err != nil {
		s.logger.Warn("remove exam mirror", zap.String("exam_id", id), zap.Error(err))
	}
	return nil
}

func (s *ExamService) validateRequest(req ExamRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation, "invalid exam payload")
	}
	if req.EndsAt.Before(req.StartsAt) {
		return appErrors.Clone(appErrors.ErrValidation, "ends_at must not precede starts_at")
	}
	return nil
}

func (s *ExamService) mirror(ctx context.Context, exam *models.Exam) {
	if err := s.sync.Sync(ctx, exam.Source()); err != nil {
		s.logger.Warn("mirror exam", zap.String("exam_id", exam.ID), zap.Error(err))
	}
}
