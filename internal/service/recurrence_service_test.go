package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

type memoryCacheStore struct {
	values map[string][]byte
	gets   int
	sets   int
}

func newMemoryCacheStore() *memoryCacheStore {
	return &memoryCacheStore{values: map[string][]byte{}}
}

func (m *memoryCacheStore) Get(_ context.Context, key string, dest interface{}) error {
	m.gets++
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.sets++
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memoryCacheStore) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			delete(m.values, key)
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

func weeklyMondayEvent() *models.CalendarEvent {
	return &models.CalendarEvent{
		ID:             "evt-1",
		SchoolID:       "school-1",
		Title:          "Weekly staff briefing",
		StartTime:      time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC),
		IsRecurring:    true,
		RecurrenceRule: strPtr("FREQ=WEEKLY;BYDAY=MO;COUNT=4"),
	}
}

func newTestRecurrenceService(store *memoryCacheStore) *RecurrenceService {
	svc := NewRecurrenceService(nil, NewCacheService(store, zap.NewNop()), time.Hour, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func TestExpandWeeklySeries(t *testing.T) {
	svc := newTestRecurrenceService(newMemoryCacheStore())
	event := weeklyMondayEvent()

	occurrences, err := svc.ExpandEvent(context.Background(),
		event,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, occurrences, 4)

	expected := []time.Time{
		time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 27, 9, 0, 0, 0, time.UTC),
	}
	for i, occ := range occurrences {
		assert.Equal(t, "evt-1", occ.EventID)
		assert.True(t, occ.StartTime.Equal(expected[i]), "occurrence %d start", i)
		assert.True(t, occ.EndTime.Equal(expected[i].Add(time.Hour)), "occurrence %d end", i)
	}
}

func TestExpandSuppressesExceptionDates(t *testing.T) {
	svc := newTestRecurrenceService(newMemoryCacheStore())
	event := weeklyMondayEvent()
	event.ExceptionDates = models.TimeList{time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)}

	occurrences, err := svc.ExpandEvent(context.Background(),
		event,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, occurrences, 3)
	for _, occ := range occurrences {
		assert.False(t, occ.StartTime.Equal(time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)))
	}
}

func TestExpandNonRecurringEventIsEmpty(t *testing.T) {
	svc := newTestRecurrenceService(newMemoryCacheStore())
	event := &models.CalendarEvent{
		ID:        "evt-2",
		StartTime: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	}

	// Expansion is a property of recurring series only. A plain event yields
	// nothing even when its span sits inside the window.
	inside, err := svc.ExpandEvent(context.Background(), event,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, inside)

	outside, err := svc.ExpandEvent(context.Background(), event,
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, outside)
}

func TestExpandUnparseableRuleYieldsNothing(t *testing.T) {
	svc := newTestRecurrenceService(newMemoryCacheStore())
	event := weeklyMondayEvent()
	event.RecurrenceRule = strPtr("FREQ=SOMETIMES")

	occurrences, err := svc.ExpandEvent(context.Background(), event,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, occurrences)
}

func TestExpandClampsOpenEndedSeriesToHorizon(t *testing.T) {
	svc := newTestRecurrenceService(newMemoryCacheStore())
	event := weeklyMondayEvent()
	event.RecurrenceRule = strPtr("FREQ=WEEKLY;BYDAY=MO")

	occurrences, err := svc.ExpandEvent(context.Background(), event,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2040, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotEmpty(t, occurrences)

	horizon := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(expansionHorizon)
	last := occurrences[len(occurrences)-1]
	assert.False(t, last.StartTime.After(horizon))
}

func TestExpandWindowRejectsInvertedWindow(t *testing.T) {
	svc := newTestRecurrenceService(newMemoryCacheStore())
	_, err := svc.ExpandEvent(context.Background(), weeklyMondayEvent(),
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Equal(t, appErrors.KindValidation, appErrors.FromError(err).Kind)
}

func TestExpandCachesRecurringSeries(t *testing.T) {
	store := newMemoryCacheStore()
	svc := newTestRecurrenceService(store)
	event := weeklyMondayEvent()
	windowStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	first, err := svc.ExpandEvent(context.Background(), event, windowStart, windowEnd)
	require.NoError(t, err)
	require.Equal(t, 1, store.sets)

	second, err := svc.ExpandEvent(context.Background(), event, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 1, store.sets, "second expansion should be served from cache")

	require.Len(t, second, len(first))
	for i := range first {
		assert.True(t, first[i].StartTime.Equal(second[i].StartTime))
		assert.True(t, first[i].EndTime.Equal(second[i].EndTime))
	}
}

func TestNextNReturnsUpcomingOccurrences(t *testing.T) {
	svc := newTestRecurrenceService(newMemoryCacheStore())
	svc.now = func() time.Time { return time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC) }

	occurrences, err := svc.NextN(context.Background(), weeklyMondayEvent(), 2)
	require.NoError(t, err)
	require.Len(t, occurrences, 2)
	assert.True(t, occurrences[0].StartTime.Equal(time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)))
	assert.True(t, occurrences[1].StartTime.Equal(time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)))
}

func TestNextNNonRecurringEvent(t *testing.T) {
	svc := newTestRecurrenceService(newMemoryCacheStore())
	svc.now = func() time.Time { return time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC) }
	event := &models.CalendarEvent{
		ID:        "evt-2",
		StartTime: time.Date(2025, 1, 20, 8, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC),
	}

	upcoming, err := svc.NextN(context.Background(), event, 5)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.True(t, upcoming[0].StartTime.Equal(event.StartTime))

	svc.now = func() time.Time { return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) }
	past, err := svc.NextN(context.Background(), event, 5)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestIsOccurrenceDate(t *testing.T) {
	svc := newTestRecurrenceService(newMemoryCacheStore())
	event := weeklyMondayEvent()

	monday, err := svc.IsOccurrenceDate(context.Background(), event, time.Date(2025, 1, 13, 15, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, monday)

	tuesday, err := svc.IsOccurrenceDate(context.Background(), event, time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, tuesday)
}

func TestCountInWindow(t *testing.T) {
	svc := newTestRecurrenceService(newMemoryCacheStore())
	count, err := svc.CountInWindow(context.Background(), weeklyMondayEvent(),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 20, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCountInWindowMatchesExpansion(t *testing.T) {
	svc := newTestRecurrenceService(newMemoryCacheStore())
	event := weeklyMondayEvent()
	event.ExceptionDates = models.TimeList{time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)}
	windowStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	occurrences, err := svc.ExpandEvent(context.Background(), event, windowStart, windowEnd)
	require.NoError(t, err)

	count, err := svc.CountInWindow(context.Background(), event, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, len(occurrences), count)
}

func TestCountInWindowNonRecurringEvent(t *testing.T) {
	svc := newTestRecurrenceService(newMemoryCacheStore())
	event := &models.CalendarEvent{
		ID:        "evt-2",
		StartTime: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	}

	inside, err := svc.CountInWindow(context.Background(), event,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, inside)

	outside, err := svc.CountInWindow(context.Background(), event,
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, outside)
}

func TestExpandAllOrdersAcrossEvents(t *testing.T) {
	svc := newTestRecurrenceService(newMemoryCacheStore())
	events := []models.CalendarEvent{
		{
			ID:        "evt-b",
			StartTime: time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC),
		},
		*weeklyMondayEvent(),
	}

	occurrences, err := svc.ExpandAll(context.Background(), events,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, occurrences, 3)
	assert.Equal(t, "evt-1", occurrences[0].EventID)
	assert.Equal(t, "evt-b", occurrences[1].EventID)
	assert.Equal(t, "evt-1", occurrences[2].EventID)
}
