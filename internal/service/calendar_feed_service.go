package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	"github.com/edustack-io/campus-api/pkg/config"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
	"github.com/edustack-io/campus-api/pkg/feed"
)

type feedUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type feedCalendarRepository interface {
	ListForWindow(ctx context.Context, schoolID string, windowStart, windowEnd time.Time) ([]models.CalendarEvent, error)
}

// CalendarFeedService serves per-user iCalendar feeds. A feed URL carries a
// signed token bound to one user; the feed renders exactly what that user
// would see in the app, recurring events already expanded.
type CalendarFeedService struct {
	users      feedUserRepository
	events     feedCalendarRepository
	visibility *VisibilityService
	recurrence *RecurrenceService
	signer     *feed.TokenSigner
	cfg        config.FeedConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewCalendarFeedService constructs the feed service.
func NewCalendarFeedService(
	users feedUserRepository,
	events feedCalendarRepository,
	visibility *VisibilityService,
	recurrence *RecurrenceService,
	signer *feed.TokenSigner,
	cfg config.FeedConfig,
	logger *zap.Logger,
) *CalendarFeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarFeedService{
		users:      users,
		events:     events,
		visibility: visibility,
		recurrence: recurrence,
		signer:     signer,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// GenerateToken issues a feed token for the user.
func (s *CalendarFeedService) GenerateToken(_ context.Context, userID string) (string, time.Time, error) {
	if !s.cfg.Enabled {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "calendar feed disabled")
	}
	token, expiresAt, err := s.signer.Generate(userID)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal, "sign feed token")
	}
	return token, expiresAt, nil
}

// BuildFeed validates the token and renders the user's calendar as an
// iCalendar document covering the configured past/future window.
func (s *CalendarFeedService) BuildFeed(ctx context.Context, token string) (string, error) {
	if !s.cfg.Enabled {
		return "", appErrors.Clone(appErrors.ErrNotFound, "calendar feed disabled")
	}

	userID, _, err := s.signer.Parse(token)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized, "invalid feed token")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrUnauthorized, "feed token refers to unknown user")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal, "load feed user")
	}
	if !user.Active {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "account is inactive")
	}
	viewer := user.Viewer()

	now := s.now()
	windowStart := now.Add(-s.cfg.WindowPast)
	windowEnd := now.Add(s.cfg.WindowFuture)

	events, err := s.events.ListForWindow(ctx, viewer.SchoolID, windowStart, windowEnd)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal, "list feed events")
	}
	visible, err := s.visibility.Filter(ctx, viewer, events)
	if err != nil {
		return "", err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//EduStack//Campus API//EN")

	for i := range visible {
		event := &visible[i]
		var occurrences []models.Occurrence
		if event.IsRecurring {
			occurrences, err = s.recurrence.ExpandEvent(ctx, event, windowStart, windowEnd)
			if err != nil {
				return "", err
			}
		} else if event.Overlaps(windowStart, windowEnd) {
			occurrences = []models.Occurrence{event.OwnOccurrence()}
		}
		for _, occ := range occurrences {
			uid := fmt.Sprintf("%s-%d@campus", event.ID, occ.StartTime.Unix())
			ve := cal.AddEvent(uid)
			ve.SetDtStampTime(now)
			ve.SetStartAt(occ.StartTime)
			ve.SetEndAt(occ.EndTime)
			ve.SetSummary(event.Title)
			if event.Description != "" {
				ve.SetDescription(event.Description)
			}
			if event.Location != nil && *event.Location != "" {
				ve.SetLocation(*event.Location)
			}
		}
	}

	return cal.Serialize(), nil
}
