package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

type stubCalendarRepo struct {
	events     map[string]*models.CalendarEvent
	categories map[string]*models.CalendarCategory
}

func newStubCalendarRepo() *stubCalendarRepo {
	return &stubCalendarRepo{
		events:     map[string]*models.CalendarEvent{},
		categories: map[string]*models.CalendarCategory{},
	}
}

func (s *stubCalendarRepo) add(event models.CalendarEvent) {
	clone := event
	s.events[event.ID] = &clone
}

func (s *stubCalendarRepo) ListForWindow(_ context.Context, schoolID string, _, _ time.Time) ([]models.CalendarEvent, error) {
	var out []models.CalendarEvent
	for _, event := range s.events {
		if event.SchoolID == schoolID {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (s *stubCalendarRepo) List(_ context.Context, filter models.CalendarFilter) ([]models.CalendarEvent, error) {
	var out []models.CalendarEvent
	for _, event := range s.events {
		if event.SchoolID == filter.SchoolID {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (s *stubCalendarRepo) GetByID(_ context.Context, id string) (*models.CalendarEvent, error) {
	event, ok := s.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *event
	return &clone, nil
}

func (s *stubCalendarRepo) Create(_ context.Context, event *models.CalendarEvent) error {
	if event.ID == "" {
		event.ID = "evt-new"
	}
	s.add(*event)
	return nil
}

func (s *stubCalendarRepo) Update(_ context.Context, event *models.CalendarEvent) error {
	s.add(*event)
	return nil
}

func (s *stubCalendarRepo) Delete(_ context.Context, id string) error {
	delete(s.events, id)
	return nil
}

func (s *stubCalendarRepo) ListCategories(_ context.Context, schoolID string) ([]models.CalendarCategory, error) {
	var out []models.CalendarCategory
	for _, category := range s.categories {
		if category.SchoolID == schoolID {
			out = append(out, *category)
		}
	}
	return out, nil
}

func (s *stubCalendarRepo) FindCategoryByName(_ context.Context, schoolID, name string) (*models.CalendarCategory, error) {
	for _, category := range s.categories {
		if category.SchoolID == schoolID && category.Name == name {
			clone := *category
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubCalendarRepo) CreateCategory(_ context.Context, category *models.CalendarCategory) error {
	if category.ID == "" {
		category.ID = "cat-" + category.Name
	}
	clone := *category
	s.categories[category.ID] = &clone
	return nil
}

func (s *stubCalendarRepo) DeleteCategory(_ context.Context, id string) error {
	delete(s.categories, id)
	return nil
}

func calendarTestService(repo *stubCalendarRepo) *CalendarService {
	cache := NewCacheService(newMemoryCacheStore(), zap.NewNop())
	recurrence := NewRecurrenceService(repo, cache, time.Hour, zap.NewNop())
	recurrence.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	visibility := newTestVisibilityService(nil, nil, nil, nil)
	return NewCalendarService(repo, recurrence, visibility, cache, nil, nil, zap.NewNop())
}

func adminViewer() models.UserContext {
	return models.UserContext{UserID: "u-admin", SchoolID: "school-1", Role: models.RoleAdmin}
}

func TestListWindowPairsEventsWithOccurrences(t *testing.T) {
	repo := newStubCalendarRepo()
	repo.add(*weeklyMondayEvent())
	repo.add(models.CalendarEvent{
		ID:             "evt-single",
		SchoolID:       "school-1",
		Title:          "Prize giving",
		StartTime:      time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
		VisibleToRoles: []string{"TEACHER", "STUDENT", "PARENT"},
	})
	repo.add(models.CalendarEvent{
		ID:             "evt-outside",
		SchoolID:       "school-1",
		Title:          "Next term opening",
		StartTime:      time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		VisibleToRoles: []string{"TEACHER", "STUDENT", "PARENT"},
	})
	svc := calendarTestService(repo)

	result, err := svc.ListWindow(context.Background(), adminViewer(),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, result, 2, "the out-of-window event is dropped")

	counts := map[string]int{}
	for _, entry := range result {
		counts[entry.Event.ID] = len(entry.Occurrences)
	}
	assert.Equal(t, 4, counts["evt-1"], "weekly series expands inside the window")
	assert.Equal(t, 1, counts["evt-single"], "plain event contributes its own span")
}

func TestListWindowRejectsInvertedWindow(t *testing.T) {
	svc := calendarTestService(newStubCalendarRepo())
	_, err := svc.ListWindow(context.Background(), adminViewer(),
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Equal(t, appErrors.KindValidation, appErrors.FromError(err).Kind)
}

func TestCreateEventDefaultsRolesAndValidatesRule(t *testing.T) {
	repo := newStubCalendarRepo()
	svc := calendarTestService(repo)

	created, err := svc.CreateEvent(context.Background(), adminViewer(), CreateEventRequest{
		Title:     "Sports day",
		StartTime: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ADMIN", "TEACHER", "STUDENT", "PARENT"}, []string(created.VisibleToRoles))
	assert.False(t, created.IsRecurring)

	bogus := "FREQ=SOMETIMES"
	_, err = svc.CreateEvent(context.Background(), adminViewer(), CreateEventRequest{
		Title:          "Broken series",
		StartTime:      time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		RecurrenceRule: &bogus,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.KindValidation, appErrors.FromError(err).Kind)
}

func TestGetEventHidesInvisibleAsNotFound(t *testing.T) {
	repo := newStubCalendarRepo()
	repo.add(models.CalendarEvent{
		ID:             "evt-staff",
		SchoolID:       "school-1",
		Title:          "Staff only",
		StartTime:      time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC),
		VisibleToRoles: []string{"TEACHER"},
	})
	svc := calendarTestService(repo)

	student := models.UserContext{UserID: "u-stu", SchoolID: "school-1", Role: models.RoleStudent, StudentID: "stu-1"}
	_, err := svc.GetEvent(context.Background(), student, "evt-staff")
	require.Error(t, err)
	assert.Equal(t, appErrors.KindNotFound, appErrors.FromError(err).Kind)
}
