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

type meetingRepository interface {
	List(ctx context.Context, schoolID string) ([]models.Meeting, error)
	FindByID(ctx context.Context, id string) (*models.Meeting, error)
	Create(ctx context.Context, meeting *models.Meeting) error
	Update(ctx context.Context, meeting *models.Meeting) error
	Delete(ctx context.Context, id string) error
}

// MeetingService manages staff and class meetings. The calendar mirror is
// teacher-only.
type MeetingService struct {
	repo      meetingRepository
	sync      *CalendarSyncService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMeetingService constructs the meeting service.
func NewMeetingService(repo meetingRepository, sync *CalendarSyncService, validate *validator.Validate, logger *zap.Logger) *MeetingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeetingService{repo: repo, sync: sync, validator: validate, logger: logger}
}

// MeetingRequest is the create/update payload. ClassID is omitted for
// school-wide staff meetings.
type MeetingRequest struct {
	Title       string    `json:"title" validate:"required,min=1,max=200"`
	Agenda      string    `json:"agenda" validate:"max=2000"`
	ClassID     *string   `json:"class_id"`
	SectionIDs  []string  `json:"section_ids"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at" validate:"required"`
	OrganizerID string    `json:"organizer_id" validate:"required"`
}

// List returns the school's meetings.
func (s *MeetingService) List(ctx context.Context, schoolID string) ([]models.Meeting, error) {
	meetings, err := s.repo.List(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to list meetings")
	}
	return meetings, nil
}

// Get returns a meeting, scoped to the school.
func (s *MeetingService) Get(ctx context.Context, schoolID, id string) (*models.Meeting, error) {
	meeting, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "meeting not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to load meeting")
	}
	if meeting.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "meeting not found")
	}
	return meeting, nil
}

// Create schedules a meeting and mirrors it onto the calendar.
func (s *MeetingService) Create(ctx context.Context, schoolID, createdBy string, req MeetingRequest) (*models.Meeting, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	meeting := &models.Meeting{
		SchoolID:    schoolID,
		Title:       req.Title,
		Agenda:      req.Agenda,
		ClassID:     req.ClassID,
		SectionIDs:  req.SectionIDs,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		OrganizerID: req.OrganizerID,
		CreatedBy:   createdBy,
	}
	if err := s.repo.Create(ctx, meeting); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to create meeting")
	}
	s.mirror(ctx, meeting)
	return meeting, nil
}

// Update modifies a meeting and refreshes its calendar mirror.
func (s *MeetingService) Update(ctx context.Context, schoolID, id string, req MeetingRequest) (*models.Meeting, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	meeting, err := s.Get(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}
	meeting.Title = req.Title
	meeting.Agenda = req.Agenda
	meeting.ClassID = req.ClassID
	meeting.SectionIDs = req.SectionIDs
	meeting.StartsAt = req.StartsAt
	meeting.EndsAt = req.EndsAt
	meeting.OrganizerID = req.OrganizerID
	if err := s.repo.Update(ctx, meeting); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to update meeting")
	}
	if err := s.sync.Refresh(ctx, meeting.Source()); err != nil {
		s.logger.Warn("refresh meeting mirror", zap.String("meeting_id", meeting.ID), zap.Error(err))
	}
	return meeting, nil
}

// Delete removes a meeting and its calendar mirror.
func (s *MeetingService) Delete(ctx context.Context, schoolID, id string) error {
	if _, err := s.Get(ctx, schoolID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "failed to delete meeting")
	}
	if err := s.sync.Remove(ctx, models.SourceTypeMeeting, id); err != nil {
		s.logger.Warn("remove meeting mirror", zap.String("meeting_id", id), zap.Error(err))
	}
	return nil
}

func (s *MeetingService) validateRequest(req MeetingRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation, "invalid meeting payload")
	}
	if req.EndsAt.Before(req.StartsAt) {
		return appErrors.Clone(appErrors.ErrValidation, "ends_at must not precede starts_at")
	}
	return nil
}

func (s *MeetingService) mirror(ctx context.Context, meeting *models.Meeting) {
	if err := s.sync.Sync(ctx, meeting.Source()); err != nil {
		s.logger.Warn("mirror meeting", zap.String("meeting_id", meeting.ID), zap.Error(err))
	}
}
