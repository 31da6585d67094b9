package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	"github.com/edustack-io/campus-api/pkg/config"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
	"github.com/edustack-io/campus-api/pkg/feed"
)

type stubFeedUserRepo struct {
	users map[string]*models.User
}

func (s *stubFeedUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

type stubFeedCalendarRepo struct {
	events []models.CalendarEvent
}

func (s *stubFeedCalendarRepo) ListForWindow(_ context.Context, _ string, _, _ time.Time) ([]models.CalendarEvent, error) {
	return s.events, nil
}

func feedTestService(users map[string]*models.User, events []models.CalendarEvent) *CalendarFeedService {
	cache := NewCacheService(newMemoryCacheStore(), zap.NewNop())
	recurrence := NewRecurrenceService(nil, cache, time.Hour, zap.NewNop())
	recurrence.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	visibility := newTestVisibilityService(nil, nil, nil, nil)
	signer := feed.NewTokenSigner("feed-secret", time.Hour)

	svc := NewCalendarFeedService(
		&stubFeedUserRepo{users: users},
		&stubFeedCalendarRepo{events: events},
		visibility,
		recurrence,
		signer,
		config.FeedConfig{Enabled: true, WindowPast: 30 * 24 * time.Hour, WindowFuture: 60 * 24 * time.Hour},
		zap.NewNop(),
	)
	svc.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func feedAdminUser() *models.User {
	schoolID := "school-1"
	return &models.User{ID: "u-admin", SchoolID: &schoolID, Email: "admin@example.com", Role: models.RoleAdmin, Active: true}
}

func TestFeedRendersExpandedOccurrences(t *testing.T) {
	location := "Main hall"
	events := []models.CalendarEvent{
		*weeklyMondayEvent(),
		{
			ID:             "evt-single",
			SchoolID:       "school-1",
			Title:          "Prize giving",
			Description:    "Annual awards",
			Location:       &location,
			StartTime:      time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
			EndTime:        time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
			VisibleToRoles: []string{"TEACHER", "STUDENT", "PARENT"},
		},
	}
	svc := feedTestService(map[string]*models.User{"u-admin": feedAdminUser()}, events)

	token, _, err := svc.GenerateToken(context.Background(), "u-admin")
	require.NoError(t, err)

	ical, err := svc.BuildFeed(context.Background(), token)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ical, "BEGIN:VCALENDAR"))
	assert.Equal(t, 5, strings.Count(ical, "BEGIN:VEVENT"), "4 weekly occurrences plus 1 single event")
	assert.Contains(t, ical, "SUMMARY:Weekly staff briefing")
	assert.Contains(t, ical, "SUMMARY:Prize giving")
	assert.Contains(t, ical, "LOCATION:Main hall")
}

func TestFeedRespectsVisibility(t *testing.T) {
	schoolID := "school-1"
	student := &models.User{ID: "u-stu", SchoolID: &schoolID, Email: "s@example.com", Role: models.RoleStudent, Active: true}
	events := []models.CalendarEvent{
		{
			ID:             "evt-staff",
			SchoolID:       "school-1",
			Title:          "Staff only",
			StartTime:      time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC),
			EndTime:        time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC),
			VisibleToRoles: []string{"TEACHER"},
		},
	}
	svc := feedTestService(map[string]*models.User{"u-stu": student}, events)

	token, _, err := svc.GenerateToken(context.Background(), "u-stu")
	require.NoError(t, err)

	ical, err := svc.BuildFeed(context.Background(), token)
	require.NoError(t, err)
	assert.Zero(t, strings.Count(ical, "BEGIN:VEVENT"))
}

func TestFeedRejectsTamperedToken(t *testing.T) {
	svc := feedTestService(map[string]*models.User{"u-admin": feedAdminUser()}, nil)

	token, _, err := svc.GenerateToken(context.Background(), "u-admin")
	require.NoError(t, err)

	_, err = svc.BuildFeed(context.Background(), token+"x")
	require.Error(t, err)
	assert.Equal(t, appErrors.KindAuthentication, appErrors.FromError(err).Kind)
}

func TestFeedRejectsInactiveUser(t *testing.T) {
	user := feedAdminUser()
	user.Active = false
	svc := feedTestService(map[string]*models.User{"u-admin": user}, nil)

	token, _, err := svc.GenerateToken(context.Background(), "u-admin")
	require.NoError(t, err)

	_, err = svc.BuildFeed(context.Background(), token)
	require.Error(t, err)
}

func TestFeedDisabledReadsAsNotFound(t *testing.T) {
	svc := feedTestService(map[string]*models.User{"u-admin": feedAdminUser()}, nil)
	svc.cfg.Enabled = false

	_, _, err := svc.GenerateToken(context.Background(), "u-admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.KindNotFound, appErrors.FromError(err).Kind)
}
