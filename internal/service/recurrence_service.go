package service

import (
	"context"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

// expansionHorizon caps how far into the future a series is ever expanded,
// regardless of the requested window. Open-ended rules stay bounded.
const expansionHorizon = 2 * 365 * 24 * time.Hour

type recurrenceEventRepository interface {
	GetByID(ctx context.Context, id string) (*models.CalendarEvent, error)
}

// RecurrenceService expands recurring calendar events into concrete
// occurrences inside a query window. Expansions of recurring series are
// cached per event and window; the cache is advisory and a miss or failure
// falls through to a fresh expansion.
type RecurrenceService struct {
	events   recurrenceEventRepository
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewRecurrenceService constructs the recurrence service.
func NewRecurrenceService(events recurrenceEventRepository, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *RecurrenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 6 * time.Hour
	}
	return &RecurrenceService{
		events:   events,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// ExpandEvent returns the occurrences of a recurring event inside the window,
// inclusive on both bounds, expanded from its rule with exception dates
// removed. A non-recurring event always yields an empty result; its own span
// is the caller's concern. An unparseable rule yields zero occurrences.
func (s *RecurrenceService) ExpandEvent(ctx context.Context, event *models.CalendarEvent, windowStart, windowEnd time.Time) ([]models.Occurrence, error) {
	if event == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event is required")
	}
	if windowEnd.Before(windowStart) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "window end precedes window start")
	}

	if !event.IsRecurring {
		return []models.Occurrence{}, nil
	}

	if horizon := s.now().Add(expansionHorizon); windowEnd.After(horizon) {
		windowEnd = horizon
	}

	if cached, ok := s.cache.GetOccurrences(ctx, event.ID, windowStart, windowEnd); ok {
		return cached, nil
	}

	occurrences := s.expand(event, windowStart, windowEnd)
	s.cache.SetOccurrences(ctx, event.ID, windowStart, windowEnd, occurrences, s.cacheTTL)
	return occurrences, nil
}

// ExpandEventByID loads the event and expands it.
func (s *RecurrenceService) ExpandEventByID(ctx context.Context, eventID string, windowStart, windowEnd time.Time) ([]models.Occurrence, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound, "calendar event not found")
	}
	return s.ExpandEvent(ctx, event, windowStart, windowEnd)
}

// ExpandAll merges a slice of events into a single occurrence list ordered by
// start time: recurring series are expanded, plain events contribute their
// own span when it intersects the window.
func (s *RecurrenceService) ExpandAll(ctx context.Context, events []models.CalendarEvent, windowStart, windowEnd time.Time) ([]models.Occurrence, error) {
	var all []models.Occurrence
	for i := range events {
		event := &events[i]
		if !event.IsRecurring {
			if event.Overlaps(windowStart, windowEnd) {
				all = append(all, event.OwnOccurrence())
			}
			continue
		}
		occurrences, err := s.ExpandEvent(ctx, event, windowStart, windowEnd)
		if err != nil {
			return nil, err
		}
		all = append(all, occurrences...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].StartTime.Equal(all[j].StartTime) {
			return all[i].EventID < all[j].EventID
		}
		return all[i].StartTime.Before(all[j].StartTime)
	})
	return all, nil
}

// NextN returns the next n upcoming occurrences of an event, starting from
// the current time and bounded by the expansion horizon. A plain event has at
// most one: its own, when it has not started yet.
func (s *RecurrenceService) NextN(ctx context.Context, event *models.CalendarEvent, n int) ([]models.Occurrence, error) {
	if n <= 0 {
		return []models.Occurrence{}, nil
	}
	now := s.now()
	if event != nil && !event.IsRecurring {
		if event.StartTime.After(now) {
			return []models.Occurrence{event.OwnOccurrence()}, nil
		}
		return []models.Occurrence{}, nil
	}
	occurrences, err := s.ExpandEvent(ctx, event, now, now.Add(expansionHorizon))
	if err != nil {
		return nil, err
	}
	if len(occurrences) > n {
		occurrences = occurrences[:n]
	}
	return occurrences, nil
}

// CountInWindow returns how many occurrences fall inside the window. The
// recurring case walks the rule iterator directly instead of materializing
// occurrence values.
func (s *RecurrenceService) CountInWindow(_ context.Context, event *models.CalendarEvent, windowStart, windowEnd time.Time) (int, error) {
	if event == nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "event is required")
	}
	if windowEnd.Before(windowStart) {
		return 0, appErrors.Clone(appErrors.ErrValidation, "window end precedes window start")
	}

	if !event.IsRecurring {
		if event.Overlaps(windowStart, windowEnd) {
			return 1, nil
		}
		return 0, nil
	}

	if horizon := s.now().Add(expansionHorizon); windowEnd.After(horizon) {
		windowEnd = horizon
	}

	raw := event.Rule()
	if raw == "" {
		return 0, nil
	}
	rule, err := rrule.StrToRRule(raw)
	if err != nil {
		s.logger.Warn("unparseable recurrence rule",
			zap.String("event_id", event.ID),
			zap.String("rule", raw),
			zap.Error(err))
		return 0, nil
	}
	rule.DTStart(event.StartTime)

	count := 0
	next := rule.Iterator()
	for {
		start, ok := next()
		if !ok || start.After(windowEnd) {
			break
		}
		if start.Before(windowStart) || event.ExceptionDates.Contains(start) {
			continue
		}
		count++
	}
	return count, nil
}

// IsOccurrenceDate reports whether the event has an occurrence starting on
// the given calendar day (UTC).
func (s *RecurrenceService) IsOccurrenceDate(ctx context.Context, event *models.CalendarEvent, day time.Time) (bool, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24*time.Hour - time.Nanosecond)
	if event != nil && !event.IsRecurring {
		return !event.StartTime.Before(dayStart) && !event.StartTime.After(dayEnd), nil
	}
	occurrences, err := s.ExpandEvent(ctx, event, dayStart, dayEnd)
	if err != nil {
		return false, err
	}
	for _, occ := range occurrences {
		if !occ.StartTime.Before(dayStart) && !occ.StartTime.After(dayEnd) {
			return true, nil
		}
	}
	return false, nil
}

func (s *RecurrenceService) expand(event *models.CalendarEvent, windowStart, windowEnd time.Time) []models.Occurrence {
	raw := event.Rule()
	if raw == "" {
		s.logger.Warn("recurring event without rule", zap.String("event_id", event.ID))
		return []models.Occurrence{}
	}

	rule, err := rrule.StrToRRule(raw)
	if err != nil {
		s.logger.Warn("unparseable recurrence rule",
			zap.String("event_id", event.ID),
			zap.String("rule", raw),
			zap.Error(err))
		return []models.Occurrence{}
	}
	rule.DTStart(event.StartTime)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range event.ExceptionDates {
		set.ExDate(ex)
	}

	duration := event.Duration()
	starts := set.Between(windowStart, windowEnd, true)
	occurrences := make([]models.Occurrence, 0, len(starts))
	for _, start := range starts {
		occurrences = append(occurrences, models.Occurrence{
			EventID:   event.ID,
			StartTime: start,
			EndTime:   start.Add(duration),
		})
	}
	return occurrences
}
