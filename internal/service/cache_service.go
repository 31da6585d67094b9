package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
)

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService wraps the raw cache store with the key conventions used for
// expanded occurrences and reminder de-duplication markers. Every method is
// advisory: cache failures never propagate to callers.
type CacheService struct {
	store  cacheStore
	logger *zap.Logger
}

// NewCacheService constructs the cache service.
func NewCacheService(store cacheStore, logger *zap.Logger) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{store: store, logger: logger}
}

func occurrenceKey(eventID string, windowStart, windowEnd time.Time) string {
	return fmt.Sprintf("recurrence:%s:%d:%d", eventID, windowStart.Unix(), windowEnd.Unix())
}

// GetOccurrences returns the cached expansion for the exact window, or false
// when absent.
func (s *CacheService) GetOccurrences(ctx context.Context, eventID string, windowStart, windowEnd time.Time) ([]models.Occurrence, bool) {
	if s == nil || s.store == nil {
		return nil, false
	}
	var occurrences []models.Occurrence
	if err := s.store.Get(ctx, occurrenceKey(eventID, windowStart, windowEnd), &occurrences); err != nil {
		return nil, false
	}
	return occurrences, true
}

// SetOccurrences stores an expansion for the exact window.
func (s *CacheService) SetOccurrences(ctx context.Context, eventID string, windowStart, windowEnd time.Time, occurrences []models.Occurrence, ttl time.Duration) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Set(ctx, occurrenceKey(eventID, windowStart, windowEnd), occurrences, ttl); err != nil {
		s.logger.Warn("cache occurrences", zap.String("event_id", eventID), zap.Error(err))
	}
}

// InvalidateEvent drops every cached window of an event. Called on any write
// to the event row.
func (s *CacheService) InvalidateEvent(ctx context.Context, eventID string) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.DeleteByPattern(ctx, fmt.Sprintf("recurrence:%s:*", eventID)); err != nil {
		s.logger.Warn("invalidate occurrence cache", zap.String("event_id", eventID), zap.Error(err))
	}
}

func reminderKey(eventID, userID string, occurrence time.Time) string {
	return fmt.Sprintf("reminder:%s:%s:%d", eventID, userID, occurrence.Unix())
}

// ReminderSent reports whether a reminder marker exists for the occurrence.
func (s *CacheService) ReminderSent(ctx context.Context, eventID, userID string, occurrence time.Time) bool {
	if s == nil || s.store == nil {
		return false
	}
	var sent bool
	if err := s.store.Get(ctx, reminderKey(eventID, userID, occurrence), &sent); err != nil {
		return false
	}
	return sent
}

// MarkReminderSent writes a de-duplication marker that outlives the lead
// window so rescans stay silent.
func (s *CacheService) MarkReminderSent(ctx context.Context, eventID, userID string, occurrence time.Time, ttl time.Duration) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Set(ctx, reminderKey(eventID, userID, occurrence), true, ttl); err != nil {
		s.logger.Warn("mark reminder sent", zap.String("event_id", eventID), zap.Error(err))
	}
}
