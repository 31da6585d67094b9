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
)

type stubSyncCalendarRepo struct {
	categories map[string]*models.CalendarCategory
	events     map[string]*models.CalendarEvent

	created int
	updated int
	deleted []string
}

func newStubSyncCalendarRepo() *stubSyncCalendarRepo {
	return &stubSyncCalendarRepo{
		categories: map[string]*models.CalendarCategory{},
		events:     map[string]*models.CalendarEvent{},
	}
}

func (s *stubSyncCalendarRepo) addCategory(schoolID, name string) {
	s.categories[schoolID+"/"+name] = &models.CalendarCategory{ID: "cat-" + name, SchoolID: schoolID, Name: name, IsSystem: true}
}

func (s *stubSyncCalendarRepo) FindCategoryByName(_ context.Context, schoolID, name string) (*models.CalendarCategory, error) {
	category, ok := s.categories[schoolID+"/"+name]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return category, nil
}

func (s *stubSyncCalendarRepo) FindBySource(_ context.Context, sourceType models.SourceType, sourceID string) (*models.CalendarEvent, error) {
	for _, event := range s.events {
		if event.SourceType != nil && *event.SourceType == sourceType && event.SourceID != nil && *event.SourceID == sourceID {
			return event, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubSyncCalendarRepo) Create(_ context.Context, event *models.CalendarEvent) error {
	if event.ID == "" {
		event.ID = "evt-" + *event.SourceID
	}
	clone := *event
	s.events[event.ID] = &clone
	s.created++
	return nil
}

func (s *stubSyncCalendarRepo) Update(_ context.Context, event *models.CalendarEvent) error {
	clone := *event
	s.events[event.ID] = &clone
	s.updated++
	return nil
}

func (s *stubSyncCalendarRepo) DeleteBySource(_ context.Context, sourceType models.SourceType, sourceID string) (int64, error) {
	var removed int64
	for id, event := range s.events {
		if event.SourceType != nil && *event.SourceType == sourceType && event.SourceID != nil && *event.SourceID == sourceID {
			delete(s.events, id)
			s.deleted = append(s.deleted, id)
			removed++
		}
	}
	return removed, nil
}

func examSource() models.CalendarSource {
	classID := "class-10"
	subjectID := "sub-math"
	return models.CalendarSource{
		Type:        models.SourceTypeExam,
		ID:          "exam-1",
		SchoolID:    "school-1",
		Title:       "Midterm mathematics",
		Description: "Chapters 1-5",
		StartTime:   time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		ClassID:     &classID,
		SectionIDs:  []string{"sec-a", "sec-b"},
		SubjectID:   &subjectID,
		CreatedBy:   "u-teacher",
	}
}

func newTestSyncService(repo *stubSyncCalendarRepo) *CalendarSyncService {
	return NewCalendarSyncService(repo, NewCacheService(newMemoryCacheStore(), zap.NewNop()), zap.NewNop())
}

func TestSyncCreatesMirrorWithDerivedVisibility(t *testing.T) {
	repo := newStubSyncCalendarRepo()
	repo.addCategory("school-1", "Exam")
	svc := newTestSyncService(repo)

	require.NoError(t, svc.Sync(context.Background(), examSource()))
	require.Equal(t, 1, repo.created)

	event, err := repo.FindBySource(context.Background(), models.SourceTypeExam, "exam-1")
	require.NoError(t, err)
	assert.Equal(t, "Midterm mathematics", event.Title)
	assert.Equal(t, "cat-Exam", *event.CategoryID)
	assert.ElementsMatch(t, []string{"TEACHER", "STUDENT", "PARENT"}, []string(event.VisibleToRoles))
	assert.Equal(t, []string{"class-10"}, []string(event.VisibleToClasses))
	assert.ElementsMatch(t, []string{"sec-a", "sec-b"}, []string(event.VisibleToSections))
}

func TestSyncMeetingTargetsTeachersOnly(t *testing.T) {
	repo := newStubSyncCalendarRepo()
	repo.addCategory("school-1", "Meeting")
	svc := newTestSyncService(repo)

	src := examSource()
	src.Type = models.SourceTypeMeeting
	src.ID = "meet-1"
	require.NoError(t, svc.Sync(context.Background(), src))

	event, err := repo.FindBySource(context.Background(), models.SourceTypeMeeting, "meet-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"TEACHER"}, []string(event.VisibleToRoles))
}

func TestSyncSkipsWhenCategoryMissing(t *testing.T) {
	repo := newStubSyncCalendarRepo()
	svc := newTestSyncService(repo)

	require.NoError(t, svc.Sync(context.Background(), examSource()))
	assert.Equal(t, 0, repo.created)
	assert.Equal(t, 0, repo.updated)
}

func TestSyncUpdatesExistingMirrorInPlace(t *testing.T) {
	repo := newStubSyncCalendarRepo()
	repo.addCategory("school-1", "Exam")
	svc := newTestSyncService(repo)

	src := examSource()
	require.NoError(t, svc.Sync(context.Background(), src))

	src.Title = "Midterm mathematics (rescheduled)"
	src.StartTime = src.StartTime.Add(24 * time.Hour)
	src.EndTime = src.EndTime.Add(24 * time.Hour)
	require.NoError(t, svc.Sync(context.Background(), src))

	assert.Equal(t, 1, repo.created, "update must not recreate the mirror")
	assert.Equal(t, 1, repo.updated)

	event, err := repo.FindBySource(context.Background(), models.SourceTypeExam, "exam-1")
	require.NoError(t, err)
	assert.Equal(t, "Midterm mathematics (rescheduled)", event.Title)
	assert.True(t, event.StartTime.Equal(time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC)))
}

func TestRefreshUpdatesExistingMirrorInPlace(t *testing.T) {
	repo := newStubSyncCalendarRepo()
	repo.addCategory("school-1", "Exam")
	svc := newTestSyncService(repo)

	src := examSource()
	require.NoError(t, svc.Sync(context.Background(), src))

	src.Title = "Midterm mathematics (rescheduled)"
	src.StartTime = src.StartTime.Add(24 * time.Hour)
	src.EndTime = src.EndTime.Add(24 * time.Hour)
	require.NoError(t, svc.Refresh(context.Background(), src))

	assert.Equal(t, 1, repo.created, "refresh must not recreate the mirror")
	assert.Equal(t, 1, repo.updated)

	event, err := repo.FindBySource(context.Background(), models.SourceTypeExam, "exam-1")
	require.NoError(t, err)
	assert.Equal(t, "Midterm mathematics (rescheduled)", event.Title)
	assert.True(t, event.StartTime.Equal(time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC)))
}

func TestRefreshRederivesRolesFromSource(t *testing.T) {
	repo := newStubSyncCalendarRepo()
	repo.addCategory("school-1", "Exam")
	svc := newTestSyncService(repo)

	src := examSource()
	require.NoError(t, svc.Sync(context.Background(), src))

	// An out-of-band edit to the mirror's role list does not survive the
	// next source update.
	event, err := repo.FindBySource(context.Background(), models.SourceTypeExam, "exam-1")
	require.NoError(t, err)
	event.VisibleToRoles = []string{"TEACHER"}

	src.Title = "Updated"
	require.NoError(t, svc.Refresh(context.Background(), src))

	event, err = repo.FindBySource(context.Background(), models.SourceTypeExam, "exam-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"TEACHER", "STUDENT", "PARENT"}, []string(event.VisibleToRoles))
}

func TestRefreshOfDeletedMirrorIsANoOp(t *testing.T) {
	repo := newStubSyncCalendarRepo()
	repo.addCategory("school-1", "Exam")
	svc := newTestSyncService(repo)

	src := examSource()
	require.NoError(t, svc.Sync(context.Background(), src))
	_, err := repo.DeleteBySource(context.Background(), models.SourceTypeExam, "exam-1")
	require.NoError(t, err)

	require.NoError(t, svc.Refresh(context.Background(), src))
	assert.Equal(t, 1, repo.created, "refresh never resurrects a removed mirror")
	assert.Equal(t, 0, repo.updated)
}

func TestRemoveDeletesAllMirrorsAndRepeatsAsNoOp(t *testing.T) {
	repo := newStubSyncCalendarRepo()
	repo.addCategory("school-1", "Exam")
	svc := newTestSyncService(repo)

	sourceType := models.SourceTypeExam
	sourceID := "exam-1"
	for _, id := range []string{"dup-1", "dup-2"} {
		repo.events[id] = &models.CalendarEvent{ID: id, SchoolID: "school-1", SourceType: &sourceType, SourceID: &sourceID}
	}

	require.NoError(t, svc.Remove(context.Background(), sourceType, sourceID))
	assert.Len(t, repo.deleted, 2)

	require.NoError(t, svc.Remove(context.Background(), sourceType, sourceID))
	assert.Len(t, repo.deleted, 2)
}
