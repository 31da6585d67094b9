package repository

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack-io/campus-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return sqlxDB, mock, func() { sqlxDB.Close() }
}

func eventRows(events ...models.CalendarEvent) *sqlmock.Rows {
	rows := sqlmock.NewRows(strings.Split(calendarColumns, ", "))
	for _, e := range events {
		var rule interface{}
		if e.RecurrenceRule != nil {
			rule = *e.RecurrenceRule
		}
		var sourceType, sourceID interface{}
		if e.SourceType != nil {
			sourceType = string(*e.SourceType)
		}
		if e.SourceID != nil {
			sourceID = *e.SourceID
		}
		rows.AddRow(
			e.ID, e.SchoolID, nil, e.Title, e.Description, nil,
			e.StartTime, e.EndTime, e.AllDay, e.IsRecurring, rule, []byte(`[]`),
			"{ADMIN,TEACHER,STUDENT,PARENT}", "{}", "{}",
			sourceType, sourceID, e.CreatedBy, e.CreatedAt, e.UpdatedAt,
		)
	}
	return rows
}

func TestCalendarRepositoryGetByID(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewCalendarRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	rule := "FREQ=WEEKLY;BYDAY=MO"
	mock.ExpectQuery(`SELECT .+ FROM calendar_events WHERE id = \$1`).
		WithArgs("evt-1").
		WillReturnRows(eventRows(models.CalendarEvent{
			ID:             "evt-1",
			SchoolID:       "school-1",
			Title:          "Weekly assembly",
			StartTime:      now,
			EndTime:        now.Add(time.Hour),
			IsRecurring:    true,
			RecurrenceRule: &rule,
			CreatedBy:      "user-1",
			CreatedAt:      now,
			UpdatedAt:      now,
		}))

	event, err := repo.GetByID(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, "school-1", event.SchoolID)
	assert.True(t, event.IsRecurring)
	require.NotNil(t, event.RecurrenceRule)
	assert.Equal(t, rule, *event.RecurrenceRule)
	assert.Equal(t, time.Hour, event.Duration())
	assert.True(t, event.AllowsRole(models.RoleStudent))
	assert.True(t, event.SchoolWide())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalendarRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewCalendarRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM calendar_events WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	event, err := repo.GetByID(context.Background(), "missing")
	assert.Nil(t, event)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalendarRepositoryListForWindow(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewCalendarRepository(db)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	anchor := start.Add(48 * time.Hour)

	mock.ExpectQuery(`SELECT .+ FROM calendar_events\s+WHERE school_id = \$1`).
		WithArgs("school-1", start, end).
		WillReturnRows(eventRows(
			models.CalendarEvent{ID: "evt-1", SchoolID: "school-1", Title: "Parent meeting", StartTime: anchor, EndTime: anchor.Add(time.Hour), CreatedBy: "u1", CreatedAt: anchor, UpdatedAt: anchor},
			models.CalendarEvent{ID: "evt-2", SchoolID: "school-1", Title: "Exam week", StartTime: anchor.Add(24 * time.Hour), EndTime: anchor.Add(26 * time.Hour), CreatedBy: "u1", CreatedAt: anchor, UpdatedAt: anchor},
		))

	events, err := repo.ListForWindow(context.Background(), "school-1", start, end)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, "evt-2", events[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalendarRepositoryFindBySource(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewCalendarRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	sourceType := models.SourceTypeExam
	sourceID := "exam-9"
	mock.ExpectQuery(`SELECT .+ FROM calendar_events WHERE source_type = \$1 AND source_id = \$2`).
		WithArgs(sourceType, "exam-9").
		WillReturnRows(eventRows(models.CalendarEvent{
			ID:         "evt-3",
			SchoolID:   "school-1",
			Title:      "Math final",
			StartTime:  now,
			EndTime:    now.Add(2 * time.Hour),
			SourceType: &sourceType,
			SourceID:   &sourceID,
			CreatedBy:  "u1",
			CreatedAt:  now,
			UpdatedAt:  now,
		}))

	event, err := repo.FindBySource(context.Background(), models.SourceTypeExam, "exam-9")
	require.NoError(t, err)
	require.NotNil(t, event.SourceType)
	assert.Equal(t, models.SourceTypeExam, *event.SourceType)
	require.NotNil(t, event.SourceID)
	assert.Equal(t, "exam-9", *event.SourceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalendarRepositoryCreateAssignsID(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewCalendarRepository(db)

	mock.ExpectExec("INSERT INTO calendar_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	now := time.Now().UTC()
	event := &models.CalendarEvent{
		SchoolID:       "school-1",
		Title:          "Sports day",
		StartTime:      now,
		EndTime:        now.Add(4 * time.Hour),
		VisibleToRoles: []string{"ADMIN", "TEACHER"},
		CreatedBy:      "u1",
	}
	require.NoError(t, repo.Create(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
	assert.False(t, event.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalendarRepositoryDeleteBySource(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewCalendarRepository(db)

	mock.ExpectExec(`DELETE FROM calendar_events WHERE source_type = \$1 AND source_id = \$2`).
		WithArgs(models.SourceTypeMeeting, "meeting-4").
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := repo.DeleteBySource(context.Background(), models.SourceTypeMeeting, "meeting-4")
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalendarRepositoryFindCategoryByName(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewCalendarRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	rows := sqlmock.NewRows([]string{"id", "school_id", "name", "color", "is_system", "created_at", "updated_at"}).
		AddRow("cat-1", "school-1", "Exam", "#E53935", true, now, now)
	mock.ExpectQuery(`SELECT .+ FROM calendar_categories WHERE school_id = \$1 AND name = \$2`).
		WithArgs("school-1", "Exam").
		WillReturnRows(rows)

	category, err := repo.FindCategoryByName(context.Background(), "school-1", "Exam")
	require.NoError(t, err)
	assert.Equal(t, "cat-1", category.ID)
	assert.True(t, category.IsSystem)
	assert.NoError(t, mock.ExpectationsWereMet())
}
