package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	"github.com/edustack-io/campus-api/pkg/config"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
	"github.com/edustack-io/campus-api/pkg/jobs"
	"github.com/edustack-io/campus-api/pkg/notify"
)

type stubReminderCalendarRepo struct {
	events []models.CalendarEvent
}

func (s *stubReminderCalendarRepo) ListAllForWindow(_ context.Context, _, _ time.Time) ([]models.CalendarEvent, error) {
	return s.events, nil
}

type stubReminderUserRepo struct {
	users []models.User
}

func (s *stubReminderUserRepo) ListActiveBySchoolAndRoles(_ context.Context, _ string, _ []string) ([]models.User, error) {
	return s.users, nil
}

type captureEnqueuer struct {
	jobs []jobs.Job
}

func (c *captureEnqueuer) Enqueue(job jobs.Job) error {
	c.jobs = append(c.jobs, job)
	return nil
}

type recordingSender struct {
	sent    []notify.Message
	failFor map[string]error
}

func (r *recordingSender) Send(_ context.Context, msg notify.Message) error {
	if err, ok := r.failFor[msg.Recipient]; ok {
		return err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func reminderTestService(events []models.CalendarEvent, users []models.User, sender *recordingSender) (*ReminderService, *captureEnqueuer) {
	store := newMemoryCacheStore()
	cache := NewCacheService(store, zap.NewNop())
	recurrence := NewRecurrenceService(nil, cache, time.Hour, zap.NewNop())
	scanNow := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	recurrence.now = func() time.Time { return scanNow }

	if sender == nil {
		sender = &recordingSender{}
	}
	dispatcher := notify.NewDispatcher(sender, notify.DispatcherConfig{MaxAttempts: 1}, zap.NewNop())

	svc := NewReminderService(
		&stubReminderCalendarRepo{events: events},
		&stubReminderUserRepo{users: users},
		recurrence,
		cache,
		dispatcher,
		config.RemindersConfig{Enabled: true, LeadTime: 24 * time.Hour},
		zap.NewNop(),
	)
	svc.now = func() time.Time { return scanNow }

	queue := &captureEnqueuer{}
	svc.AttachQueue(queue)
	return svc, queue
}

func upcomingEvent() models.CalendarEvent {
	return models.CalendarEvent{
		ID:             "evt-1",
		SchoolID:       "school-1",
		Title:          "Parent meeting",
		StartTime:      time.Date(2025, 4, 1, 18, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2025, 4, 1, 19, 0, 0, 0, time.UTC),
		VisibleToRoles: []string{"PARENT"},
	}
}

func TestScanEnqueuesUpcomingOccurrencesOnly(t *testing.T) {
	started := upcomingEvent()
	started.ID = "evt-started"
	started.StartTime = time.Date(2025, 4, 1, 7, 0, 0, 0, time.UTC)
	started.EndTime = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	svc, queue := reminderTestService([]models.CalendarEvent{upcomingEvent(), started}, nil, nil)

	enqueued, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, enqueued)
	require.Len(t, queue.jobs, 1)

	payload, ok := queue.jobs[0].Payload.(ReminderPayload)
	require.True(t, ok)
	assert.Equal(t, "evt-1", payload.EventID)
	assert.Equal(t, []string{"PARENT"}, payload.Roles)
}

func TestScanDisabledIsNoOp(t *testing.T) {
	svc, queue := reminderTestService([]models.CalendarEvent{upcomingEvent()}, nil, nil)
	svc.cfg.Enabled = false

	enqueued, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, enqueued)
	assert.Empty(t, queue.jobs)
}

func TestHandleJobSendsOncePerRecipient(t *testing.T) {
	sender := &recordingSender{}
	users := []models.User{
		{ID: "u-1", Email: "one@example.com", Role: models.RoleParent, Active: true},
		{ID: "u-2", Email: "two@example.com", Role: models.RoleParent, Active: true},
	}
	svc, _ := reminderTestService(nil, users, sender)

	job := jobs.Job{Type: ReminderJobType, Payload: ReminderPayload{
		EventID:   "evt-1",
		SchoolID:  "school-1",
		Title:     "Parent meeting",
		StartTime: time.Date(2025, 4, 1, 18, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 4, 1, 19, 0, 0, 0, time.UTC),
		Roles:     []string{"PARENT"},
	}}

	require.NoError(t, svc.HandleJob(context.Background(), job))
	require.Len(t, sender.sent, 2)
	assert.True(t, strings.HasPrefix(sender.sent[0].Subject, "Upcoming: "))

	// A rescan or retry finds the markers and stays silent.
	require.NoError(t, svc.HandleJob(context.Background(), job))
	assert.Len(t, sender.sent, 2)
}

func TestHandleJobPartialFailureRetriesOnlyFailed(t *testing.T) {
	sender := &recordingSender{failFor: map[string]error{
		"two@example.com": appErrors.Retryable(appErrors.ErrNetwork),
	}}
	users := []models.User{
		{ID: "u-1", Email: "one@example.com", Role: models.RoleParent, Active: true},
		{ID: "u-2", Email: "two@example.com", Role: models.RoleParent, Active: true},
	}
	svc, _ := reminderTestService(nil, users, sender)

	job := jobs.Job{Type: ReminderJobType, Payload: ReminderPayload{
		EventID:   "evt-1",
		SchoolID:  "school-1",
		Title:     "Parent meeting",
		StartTime: time.Date(2025, 4, 1, 18, 0, 0, 0, time.UTC),
		Roles:     []string{"PARENT"},
	}}

	err := svc.HandleJob(context.Background(), job)
	require.Error(t, err)
	require.Len(t, sender.sent, 1)

	// Second delivery attempt only reaches the failed recipient.
	sender.failFor = nil
	require.NoError(t, svc.HandleJob(context.Background(), job))
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "two@example.com", sender.sent[1].Recipient)
}

func TestHandleJobRejectsForeignPayload(t *testing.T) {
	svc, _ := reminderTestService(nil, nil, nil)
	err := svc.HandleJob(context.Background(), jobs.Job{Type: ReminderJobType, Payload: "bogus"})
	require.Error(t, err)
	assert.Equal(t, appErrors.KindValidation, appErrors.FromError(err).Kind)
}
