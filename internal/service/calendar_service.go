package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

type calendarRepository interface {
	ListForWindow(ctx context.Context, schoolID string, windowStart, windowEnd time.Time) ([]models.CalendarEvent, error)
	List(ctx context.Context, filter models.CalendarFilter) ([]models.CalendarEvent, error)
	GetByID(ctx context.Context, id string) (*models.CalendarEvent, error)
	Create(ctx context.Context, event *models.CalendarEvent) error
	Update(ctx context.Context, event *models.CalendarEvent) error
	Delete(ctx context.Context, id string) error
	ListCategories(ctx context.Context, schoolID string) ([]models.CalendarCategory, error)
	FindCategoryByName(ctx context.Context, schoolID, name string) (*models.CalendarCategory, error)
	CreateCategory(ctx context.Context, category *models.CalendarCategory) error
	DeleteCategory(ctx context.Context, id string) error
}

type calendarAuditor interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// systemCategories are seeded per school; source sync resolves mirrors
// against them by name.
var systemCategories = []models.CalendarCategory{
	{Name: "General", Color: "#607d8b", IsSystem: true},
	{Name: "Exam", Color: "#e53935", IsSystem: true},
	{Name: "Assignment", Color: "#fb8c00", IsSystem: true},
	{Name: "Meeting", Color: "#3949ab", IsSystem: true},
}

// CalendarService owns calendar event CRUD, window listings and categories.
// Listings are always run through the visibility filter and recurring events
// are expanded into occurrences before they leave the service.
type CalendarService struct {
	repo       calendarRepository
	recurrence *RecurrenceService
	visibility *VisibilityService
	cache      *CacheService
	auditor    calendarAuditor
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewCalendarService constructs the calendar service.
func NewCalendarService(
	repo calendarRepository,
	recurrence *RecurrenceService,
	visibility *VisibilityService,
	cache *CacheService,
	auditor calendarAuditor,
	validate *validator.Validate,
	logger *zap.Logger,
) *CalendarService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{
		repo:       repo,
		recurrence: recurrence,
		visibility: visibility,
		cache:      cache,
		auditor:    auditor,
		validator:  validate,
		logger:     logger,
	}
}

// EventOccurrences pairs an event with its occurrences inside a window.
type EventOccurrences struct {
	Event       models.CalendarEvent `json:"event"`
	Occurrences []models.Occurrence  `json:"occurrences"`
}

// CreateEventRequest is the payload for creating a calendar event.
type CreateEventRequest struct {
	CategoryID        *string     `json:"category_id"`
	Title             string      `json:"title" validate:"required,min=1,max=200"`
	Description       string      `json:"description" validate:"max=2000"`
	Location          *string     `json:"location"`
	StartTime         time.Time   `json:"start_time" validate:"required"`
	EndTime           time.Time   `json:"end_time" validate:"required"`
	AllDay            bool        `json:"all_day"`
	RecurrenceRule    *string     `json:"recurrence_rule"`
	ExceptionDates    []time.Time `json:"exception_dates"`
	VisibleToRoles    []string    `json:"visible_to_roles"`
	VisibleToClasses  []string    `json:"visible_to_classes"`
	VisibleToSections []string    `json:"visible_to_sections"`
}

// UpdateEventRequest mirrors CreateEventRequest for updates.
type UpdateEventRequest = CreateEventRequest

// ListWindow returns the viewer-visible events of the school that have at
// least one occurrence inside the window, each paired with its occurrences.
func (s *CalendarService) ListWindow(ctx context.Context, viewer models.UserContext, windowStart, windowEnd time.Time) ([]EventOccurrences, error) {
	if windowEnd.Before(windowStart) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "window end precedes window start")
	}

	events, err := s.repo.ListForWindow(ctx, viewer.SchoolID, windowStart, windowEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "list calendar events")
	}

	visible, err := s.visibility.Filter(ctx, viewer, events)
	if err != nil {
		return nil, err
	}

	result := make([]EventOccurrences, 0, len(visible))
	for i := range visible {
		event := &visible[i]
		var occurrences []models.Occurrence
		if event.IsRecurring {
			occurrences, err = s.recurrence.ExpandEvent(ctx, event, windowStart, windowEnd)
			if err != nil {
				return nil, err
			}
		} else if event.Overlaps(windowStart, windowEnd) {
			occurrences = []models.Occurrence{event.OwnOccurrence()}
		}
		if len(occurrences) == 0 {
			continue
		}
		result = append(result, EventOccurrences{Event: visible[i], Occurrences: occurrences})
	}
	return result, nil
}

// GetEvent returns one event the viewer may see. Invisible events read as not
// found so their existence is never leaked across visibility boundaries.
func (s *CalendarService) GetEvent(ctx context.Context, viewer models.UserContext, id string) (*models.CalendarEvent, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "calendar event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "load calendar event")
	}

	ok, err := s.visibility.CanView(ctx, viewer, event)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "calendar event not found")
	}
	return event, nil
}

// CreateEvent validates and persists a new event.
func (s *CalendarService) CreateEvent(ctx context.Context, viewer models.UserContext, req CreateEventRequest) (*models.CalendarEvent, error) {
	if err := s.validateEventRequest(req); err != nil {
		return nil, err
	}

	event := &models.CalendarEvent{
		SchoolID:          viewer.SchoolID,
		CategoryID:        req.CategoryID,
		Title:             req.Title,
		Description:       req.Description,
		Location:          req.Location,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		AllDay:            req.AllDay,
		ExceptionDates:    models.TimeList(req.ExceptionDates),
		VisibleToRoles:    req.VisibleToRoles,
		VisibleToClasses:  req.VisibleToClasses,
		VisibleToSections: req.VisibleToSections,
		CreatedBy:         viewer.UserID,
	}
	if req.RecurrenceRule != nil && *req.RecurrenceRule != "" {
		event.IsRecurring = true
		event.RecurrenceRule = req.RecurrenceRule
	}
	if len(event.VisibleToRoles) == 0 {
		for _, role := range models.KnownRoles {
			if role == models.RoleSuperAdmin {
				continue
			}
			event.VisibleToRoles = append(event.VisibleToRoles, string(role))
		}
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "create calendar event")
	}
	return event, nil
}

// UpdateEvent validates and applies an update, dropping cached expansions.
func (s *CalendarService) UpdateEvent(ctx context.Context, viewer models.UserContext, id string, req UpdateEventRequest) (*models.CalendarEvent, error) {
	if err := s.validateEventRequest(req); err != nil {
		return nil, err
	}

	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "calendar event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "load calendar event")
	}
	if event.SchoolID != viewer.SchoolID && viewer.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "calendar event not found")
	}

	event.CategoryID = req.CategoryID
	event.Title = req.Title
	event.Description = req.Description
	event.Location = req.Location
	event.StartTime = req.StartTime
	event.EndTime = req.EndTime
	event.AllDay = req.AllDay
	event.ExceptionDates = models.TimeList(req.ExceptionDates)
	event.VisibleToRoles = req.VisibleToRoles
	event.VisibleToClasses = req.VisibleToClasses
	event.VisibleToSections = req.VisibleToSections
	event.IsRecurring = req.RecurrenceRule != nil && *req.RecurrenceRule != ""
	event.RecurrenceRule = req.RecurrenceRule

	if err := s.repo.Update(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "update calendar event")
	}
	s.cache.InvalidateEvent(ctx, event.ID)
	return event, nil
}

// DeleteEvent removes an event, drops its cached expansions and audits the
// deletion.
func (s *CalendarService) DeleteEvent(ctx context.Context, viewer models.UserContext, id string) error {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "calendar event not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal, "load calendar event")
	}
	if event.SchoolID != viewer.SchoolID && viewer.Role != models.RoleSuperAdmin {
		return appErrors.Clone(appErrors.ErrNotFound, "calendar event not found")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "delete calendar event")
	}
	s.cache.InvalidateEvent(ctx, id)

	if s.auditor != nil {
		entry := &models.AuditLog{
			SchoolID:   &event.SchoolID,
			UserID:     &viewer.UserID,
			Action:     models.AuditActionEventDelete,
			Resource:   "calendar_event",
			ResourceID: &id,
		}
		if err := s.auditor.CreateAuditLog(ctx, entry); err != nil {
			s.logger.Warn("audit calendar event delete", zap.String("event_id", id), zap.Error(err))
		}
	}
	return nil
}

// NextOccurrences returns the next n upcoming occurrences of a visible event.
func (s *CalendarService) NextOccurrences(ctx context.Context, viewer models.UserContext, id string, n int) ([]models.Occurrence, error) {
	event, err := s.GetEvent(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	return s.recurrence.NextN(ctx, event, n)
}

// CountOccurrences counts occurrences of a visible event inside a window.
func (s *CalendarService) CountOccurrences(ctx context.Context, viewer models.UserContext, id string, windowStart, windowEnd time.Time) (int, error) {
	event, err := s.GetEvent(ctx, viewer, id)
	if err != nil {
		return 0, err
	}
	return s.recurrence.CountInWindow(ctx, event, windowStart, windowEnd)
}

func (s *CalendarService) validateEventRequest(req CreateEventRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation, "invalid calendar event payload")
	}
	if req.EndTime.Before(req.StartTime) {
		return appErrors.Clone(appErrors.ErrValidation, "event end precedes start")
	}
	for _, role := range req.VisibleToRoles {
		if !models.IsValidRole(models.UserRole(role)) {
			return appErrors.Clone(appErrors.ErrValidation, "unknown role in visible_to_roles: "+role)
		}
	}
	if req.RecurrenceRule != nil && *req.RecurrenceRule != "" {
		if _, err := rrule.StrToRRule(*req.RecurrenceRule); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation, "invalid recurrence rule")
		}
	}
	return nil
}

// ListCategories returns the categories of the viewer's school.
func (s *CalendarService) ListCategories(ctx context.Context, schoolID string) ([]models.CalendarCategory, error) {
	categories, err := s.repo.ListCategories(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "list calendar categories")
	}
	return categories, nil
}

// CreateCategoryRequest is the payload for a custom category.
type CreateCategoryRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=60"`
	Color string `json:"color" validate:"required,hexcolor"`
}

// CreateCategory adds a custom (non-system) category.
func (s *CalendarService) CreateCategory(ctx context.Context, schoolID string, req CreateCategoryRequest) (*models.CalendarCategory, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid category payload")
	}
	if _, err := s.repo.FindCategoryByName(ctx, schoolID, req.Name); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "category name already in use")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "look up category")
	}

	category := &models.CalendarCategory{SchoolID: schoolID, Name: req.Name, Color: req.Color}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "create category")
	}
	return category, nil
}

// DeleteCategory removes a custom category. System categories are protected
// at the repository level.
func (s *CalendarService) DeleteCategory(ctx context.Context, id string) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "delete category")
	}
	return nil
}

// EnsureSystemCategories seeds the fixed category set for a school. Existing
// rows are kept.
func (s *CalendarService) EnsureSystemCategories(ctx context.Context, schoolID string) error {
	for _, tmpl := range systemCategories {
		if _, err := s.repo.FindCategoryByName(ctx, schoolID, tmpl.Name); err == nil {
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal, "look up system category")
		}
		category := tmpl
		category.SchoolID = schoolID
		if err := s.repo.CreateCategory(ctx, &category); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal, "seed system category")
		}
	}
	return nil
}
