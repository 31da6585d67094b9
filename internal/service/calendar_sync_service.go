package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

type syncCalendarRepository interface {
	FindBySource(ctx context.Context, sourceType models.SourceType, sourceID string) (*models.CalendarEvent, error)
	Create(ctx context.Context, event *models.CalendarEvent) error
	Update(ctx context.Context, event *models.CalendarEvent) error
	DeleteBySource(ctx context.Context, sourceType models.SourceType, sourceID string) (int64, error)
	FindCategoryByName(ctx context.Context, schoolID, name string) (*models.CalendarCategory, error)
}

// rolesForSource maps a source type onto the audience of its mirrored event.
// Exams and assignments concern the whole class community; meetings are a
// staff matter unless an admin widens them afterwards.
func rolesForSource(sourceType models.SourceType) []string {
	switch sourceType {
	case models.SourceTypeMeeting:
		return []string{string(models.RoleTeacher)}
	default:
		return []string{string(models.RoleTeacher), string(models.RoleStudent), string(models.RoleParent)}
	}
}

// CalendarSyncService mirrors domain records (exams, assignments, meetings)
// onto calendar events. Sync is idempotent: one source record maps to at most
// one live event, updates rewrite the existing mirror in place, and removal
// deletes every mirror of the source.
type CalendarSyncService struct {
	repo   syncCalendarRepository
	cache  *CacheService
	logger *zap.Logger
}

// NewCalendarSyncService constructs the sync service.
func NewCalendarSyncService(repo syncCalendarRepository, cache *CacheService, logger *zap.Logger) *CalendarSyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarSyncService{repo: repo, cache: cache, logger: logger}
}

// Sync creates the mirrored event for a new source record. Idempotent: a
// source that already has a mirror gets it refreshed instead of duplicated.
// A school without the matching system category has calendar mirroring
// effectively disabled: the sync logs and skips without error. Callers treat
// any returned error as non-fatal for the domain write itself.
func (s *CalendarSyncService) Sync(ctx context.Context, src models.CalendarSource) error {
	category, ok, err := s.lookupCategory(ctx, src)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	existing, err := s.repo.FindBySource(ctx, src.Type, src.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal, "look up mirrored event")
	}

	if existing != nil {
		applySource(existing, src, category.ID)
		if err := s.repo.Update(ctx, existing); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal, "update mirrored event")
		}
		s.cache.InvalidateEvent(ctx, existing.ID)
		return nil
	}

	event := &models.CalendarEvent{
		SchoolID:   src.SchoolID,
		SourceType: &src.Type,
		SourceID:   &src.ID,
		CreatedBy:  src.CreatedBy,
	}
	applySource(event, src, category.ID)
	if err := s.repo.Create(ctx, event); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "create mirrored event")
	}
	return nil
}

// Refresh rewrites the mirror of an already-mirrored source record. A source
// whose mirror is gone (an admin deleted it) is left alone: the refresh warns
// and no-ops instead of resurrecting the event.
func (s *CalendarSyncService) Refresh(ctx context.Context, src models.CalendarSource) error {
	existing, err := s.repo.FindBySource(ctx, src.Type, src.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("no mirrored event to refresh",
				zap.String("source_type", string(src.Type)),
				zap.String("source_id", src.ID))
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal, "look up mirrored event")
	}

	category, ok, err := s.lookupCategory(ctx, src)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	applySource(existing, src, category.ID)
	if err := s.repo.Update(ctx, existing); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "update mirrored event")
	}
	s.cache.InvalidateEvent(ctx, existing.ID)
	return nil
}

func (s *CalendarSyncService) lookupCategory(ctx context.Context, src models.CalendarSource) (*models.CalendarCategory, bool, error) {
	category, err := s.repo.FindCategoryByName(ctx, src.SchoolID, src.CategoryName())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("calendar category missing, skipping mirror",
				zap.String("school_id", src.SchoolID),
				zap.String("category", src.CategoryName()),
				zap.String("source_type", string(src.Type)),
				zap.String("source_id", src.ID))
			return nil, false, nil
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal, "look up calendar category")
	}
	return category, true, nil
}

// applySource copies the mirrored fields. Every visibility field is derived
// fresh from the source snapshot: the role audience from the source type,
// class and section targeting from the record itself.
func applySource(event *models.CalendarEvent, src models.CalendarSource, categoryID string) {
	event.CategoryID = &categoryID
	event.Title = src.Title
	event.Description = src.Description
	event.Location = src.Location
	event.StartTime = src.StartTime
	event.EndTime = src.EndTime

	event.VisibleToRoles = rolesForSource(src.Type)
	event.VisibleToClasses = nil
	if src.ClassID != nil && *src.ClassID != "" {
		event.VisibleToClasses = []string{*src.ClassID}
	}
	event.VisibleToSections = append([]string(nil), src.SectionIDs...)
}

// Remove deletes every mirrored event of a source record. Removal of an
// unmirrored source is a no-op; more than one deleted row indicates
// historical duplicates and is logged.
func (s *CalendarSyncService) Remove(ctx context.Context, sourceType models.SourceType, sourceID string) error {
	deleted, err := s.repo.DeleteBySource(ctx, sourceType, sourceID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "delete mirrored events")
	}
	switch {
	case deleted == 0:
		s.logger.Debug("no mirrored event to remove",
			zap.String("source_type", string(sourceType)),
			zap.String("source_id", sourceID))
	case deleted > 1:
		s.logger.Warn("removed duplicate mirrored events",
			zap.String("source_type", string(sourceType)),
			zap.String("source_id", sourceID),
			zap.Int64("deleted", deleted))
	}
	return nil
}
