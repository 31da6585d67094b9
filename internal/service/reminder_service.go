package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	"github.com/edustack-io/campus-api/pkg/config"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
	"github.com/edustack-io/campus-api/pkg/jobs"
	"github.com/edustack-io/campus-api/pkg/notify"
)

// ReminderJobType tags reminder jobs on the background queue.
const ReminderJobType = "calendar.reminder"

type reminderCalendarRepository interface {
	ListAllForWindow(ctx context.Context, windowStart, windowEnd time.Time) ([]models.CalendarEvent, error)
}

type reminderUserRepository interface {
	ListActiveBySchoolAndRoles(ctx context.Context, schoolID string, roles []string) ([]models.User, error)
}

type reminderEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// ReminderPayload is the unit of work a reminder scan hands to the queue:
// one upcoming occurrence of one event, with the audience roles captured at
// scan time.
type ReminderPayload struct {
	EventID   string    `json:"event_id"`
	SchoolID  string    `json:"school_id"`
	Title     string    `json:"title"`
	Location  *string   `json:"location,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Roles     []string  `json:"roles"`
}

// ReminderService scans for occurrences starting inside the configured lead
// window and fans reminders out to each event's audience. De-duplication
// markers in the cache keep rescans and retries from double-sending.
type ReminderService struct {
	events     reminderCalendarRepository
	users      reminderUserRepository
	recurrence *RecurrenceService
	cache      *CacheService
	dispatcher *notify.Dispatcher
	queue      reminderEnqueuer
	cfg        config.RemindersConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewReminderService constructs the reminder service. The queue is attached
// afterwards because its handler is a method of this service.
func NewReminderService(
	events reminderCalendarRepository,
	users reminderUserRepository,
	recurrence *RecurrenceService,
	cache *CacheService,
	dispatcher *notify.Dispatcher,
	cfg config.RemindersConfig,
	logger *zap.Logger,
) *ReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderService{
		events:     events,
		users:      users,
		recurrence: recurrence,
		cache:      cache,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// AttachQueue wires the background queue used by Scan.
func (s *ReminderService) AttachQueue(queue reminderEnqueuer) {
	s.queue = queue
}

// Scan enqueues one reminder job per upcoming occurrence inside the lead
// window and returns how many jobs were enqueued.
func (s *ReminderService) Scan(ctx context.Context) (int, error) {
	if !s.cfg.Enabled || s.queue == nil {
		return 0, nil
	}

	now := s.now()
	windowEnd := now.Add(s.cfg.LeadTime)

	events, err := s.events.ListAllForWindow(ctx, now, windowEnd)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal, "list events for reminder scan")
	}

	enqueued := 0
	for i := range events {
		event := &events[i]
		var occurrences []models.Occurrence
		if event.IsRecurring {
			occurrences, err = s.recurrence.ExpandEvent(ctx, event, now, windowEnd)
			if err != nil {
				s.logger.Warn("reminder scan: expand event", zap.String("event_id", event.ID), zap.Error(err))
				continue
			}
		} else if event.Overlaps(now, windowEnd) {
			occurrences = []models.Occurrence{event.OwnOccurrence()}
		}
		for _, occ := range occurrences {
			if !occ.StartTime.After(now) {
				continue
			}
			job := jobs.Job{
				Type: ReminderJobType,
				Payload: ReminderPayload{
					EventID:   event.ID,
					SchoolID:  event.SchoolID,
					Title:     event.Title,
					Location:  event.Location,
					StartTime: occ.StartTime,
					EndTime:   occ.EndTime,
					Roles:     event.VisibleToRoles,
				},
			}
			if err := s.queue.Enqueue(job); err != nil {
				s.logger.Warn("reminder scan: enqueue", zap.String("event_id", event.ID), zap.Error(err))
				continue
			}
			enqueued++
		}
	}
	return enqueued, nil
}

// HandleJob delivers one reminder job. Partial failures return an error so
// the queue retries; already-notified users are skipped via cache markers,
// which makes the retry safe.
func (s *ReminderService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(ReminderPayload)
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unexpected payload type %T", job.Payload))
	}

	recipients, err := s.users.ListActiveBySchoolAndRoles(ctx, payload.SchoolID, payload.Roles)
	if err != nil {
		return appErrors.Retryable(appErrors.Wrap(err, appErrors.ErrInternal, "resolve reminder recipients"))
	}

	var lastErr error
	for _, user := range recipients {
		if s.cache.ReminderSent(ctx, payload.EventID, user.ID, payload.StartTime) {
			continue
		}
		msg := notify.Message{
			Channel:   "email",
			Recipient: user.Email,
			Subject:   "Upcoming: " + payload.Title,
			Body:      reminderBody(payload),
			Metadata: map[string]interface{}{
				"event_id":   payload.EventID,
				"start_time": payload.StartTime.Format(time.RFC3339),
			},
		}
		if err := s.dispatcher.Send(ctx, msg); err != nil {
			s.logger.Warn("reminder delivery failed",
				zap.String("event_id", payload.EventID),
				zap.String("user_id", user.ID),
				zap.Error(err))
			lastErr = err
			continue
		}
		markerTTL := time.Until(payload.StartTime) + 24*time.Hour
		s.cache.MarkReminderSent(ctx, payload.EventID, user.ID, payload.StartTime, markerTTL)
	}
	return lastErr
}

func reminderBody(p ReminderPayload) string {
	body := fmt.Sprintf("%s starts at %s.", p.Title, p.StartTime.Format("Mon, 02 Jan 2006 15:04 MST"))
	if p.Location != nil && *p.Location != "" {
		body += " Location: " + *p.Location + "."
	}
	return body
}
