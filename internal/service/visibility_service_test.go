package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
)

type stubEnrollmentRepo struct {
	byStudent map[string][]models.Enrollment
}

func (s *stubEnrollmentRepo) ListActiveByStudent(_ context.Context, studentID string) ([]models.Enrollment, error) {
	return s.byStudent[studentID], nil
}

type stubParentRepo struct {
	children map[string][]string
}

func (s *stubParentRepo) ListChildIDs(_ context.Context, parentID string) ([]string, error) {
	return s.children[parentID], nil
}

type stubAssignmentRepo struct {
	byTeacher map[string][]models.TeacherAssignmentDetail
}

func (s *stubAssignmentRepo) ListByTeacher(_ context.Context, teacherID string) ([]models.TeacherAssignmentDetail, error) {
	return s.byTeacher[teacherID], nil
}

type stubClassRepo struct {
	homerooms map[string][]string
}

func (s *stubClassRepo) ListHomeroomClassIDs(_ context.Context, teacherID string) ([]string, error) {
	return s.homerooms[teacherID], nil
}

func newTestVisibilityService(enroll *stubEnrollmentRepo, parents *stubParentRepo, assignments *stubAssignmentRepo, classes *stubClassRepo) *VisibilityService {
	if enroll == nil {
		enroll = &stubEnrollmentRepo{}
	}
	if parents == nil {
		parents = &stubParentRepo{}
	}
	if assignments == nil {
		assignments = &stubAssignmentRepo{}
	}
	if classes == nil {
		classes = &stubClassRepo{}
	}
	return NewVisibilityService(enroll, parents, assignments, classes, zap.NewNop())
}

func visibilityEvent(mutate func(*models.CalendarEvent)) models.CalendarEvent {
	event := models.CalendarEvent{
		ID:             "evt-1",
		SchoolID:       "school-1",
		Title:          "Sports day",
		StartTime:      time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
		VisibleToRoles: []string{"TEACHER", "STUDENT", "PARENT"},
		CreatedBy:      "admin-1",
	}
	if mutate != nil {
		mutate(&event)
	}
	return event
}

func TestAdminSeesEverythingInOwnSchool(t *testing.T) {
	svc := newTestVisibilityService(nil, nil, nil, nil)
	viewer := models.UserContext{UserID: "u-admin", SchoolID: "school-1", Role: models.RoleAdmin}

	events := []models.CalendarEvent{
		visibilityEvent(func(e *models.CalendarEvent) { e.VisibleToRoles = []string{"STUDENT"} }),
		visibilityEvent(func(e *models.CalendarEvent) { e.ID = "evt-foreign"; e.SchoolID = "school-2" }),
	}
	visible, err := svc.Filter(context.Background(), viewer, events)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "evt-1", visible[0].ID)
}

func TestRoleGateDeniesUnlistedRole(t *testing.T) {
	svc := newTestVisibilityService(nil, nil, nil, nil)
	viewer := models.UserContext{UserID: "u-1", SchoolID: "school-1", Role: models.RoleStudent, StudentID: "stu-1"}

	event := visibilityEvent(func(e *models.CalendarEvent) { e.VisibleToRoles = []string{"TEACHER"} })
	ok, err := svc.CanView(context.Background(), viewer, &event)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSchoolWideEventVisibleToAllowedRole(t *testing.T) {
	svc := newTestVisibilityService(nil, nil, nil, nil)
	viewer := models.UserContext{UserID: "u-1", SchoolID: "school-1", Role: models.RoleStudent, StudentID: "stu-1"}

	event := visibilityEvent(nil)
	ok, err := svc.CanView(context.Background(), viewer, &event)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStudentAffiliationByClassAndSection(t *testing.T) {
	sectionID := "sec-a"
	enroll := &stubEnrollmentRepo{byStudent: map[string][]models.Enrollment{
		"stu-1": {{StudentID: "stu-1", ClassID: "class-10", SectionID: &sectionID, Status: models.EnrollmentStatusActive}},
	}}
	svc := newTestVisibilityService(enroll, nil, nil, nil)
	viewer := models.UserContext{UserID: "u-1", SchoolID: "school-1", Role: models.RoleStudent, StudentID: "stu-1"}

	byClass := visibilityEvent(func(e *models.CalendarEvent) { e.VisibleToClasses = []string{"class-10"} })
	ok, err := svc.CanView(context.Background(), viewer, &byClass)
	require.NoError(t, err)
	assert.True(t, ok)

	bySection := visibilityEvent(func(e *models.CalendarEvent) { e.VisibleToSections = []string{"sec-a"} })
	ok, err = svc.CanView(context.Background(), viewer, &bySection)
	require.NoError(t, err)
	assert.True(t, ok)

	otherClass := visibilityEvent(func(e *models.CalendarEvent) { e.VisibleToClasses = []string{"class-11"} })
	ok, err = svc.CanView(context.Background(), viewer, &otherClass)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParentSeesEventsThroughChildren(t *testing.T) {
	enroll := &stubEnrollmentRepo{byStudent: map[string][]models.Enrollment{
		"stu-1": {{StudentID: "stu-1", ClassID: "class-10", Status: models.EnrollmentStatusActive}},
	}}
	parents := &stubParentRepo{children: map[string][]string{"par-1": {"stu-1"}}}
	svc := newTestVisibilityService(enroll, parents, nil, nil)
	viewer := models.UserContext{UserID: "u-p", SchoolID: "school-1", Role: models.RoleParent, ParentID: "par-1"}

	event := visibilityEvent(func(e *models.CalendarEvent) { e.VisibleToClasses = []string{"class-10"} })
	ok, err := svc.CanView(context.Background(), viewer, &event)
	require.NoError(t, err)
	assert.True(t, ok)

	childless := models.UserContext{UserID: "u-q", SchoolID: "school-1", Role: models.RoleParent, ParentID: "par-2"}
	ok, err = svc.CanView(context.Background(), childless, &event)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTeacherAffiliationByAssignmentAndHomeroom(t *testing.T) {
	sectionID := "sec-b"
	assignments := &stubAssignmentRepo{byTeacher: map[string][]models.TeacherAssignmentDetail{
		"tch-1": {{TeacherAssignment: models.TeacherAssignment{TeacherID: "tch-1", ClassID: "class-12", SectionID: &sectionID}}},
	}}
	classes := &stubClassRepo{homerooms: map[string][]string{"tch-1": {"class-7"}}}
	svc := newTestVisibilityService(nil, nil, assignments, classes)
	viewer := models.UserContext{UserID: "u-t", SchoolID: "school-1", Role: models.RoleTeacher, TeacherID: "tch-1"}

	taught := visibilityEvent(func(e *models.CalendarEvent) { e.VisibleToClasses = []string{"class-12"} })
	ok, err := svc.CanView(context.Background(), viewer, &taught)
	require.NoError(t, err)
	assert.True(t, ok)

	homeroom := visibilityEvent(func(e *models.CalendarEvent) { e.VisibleToClasses = []string{"class-7"} })
	ok, err = svc.CanView(context.Background(), viewer, &homeroom)
	require.NoError(t, err)
	assert.True(t, ok)

	unrelated := visibilityEvent(func(e *models.CalendarEvent) { e.VisibleToClasses = []string{"class-99"} })
	ok, err = svc.CanView(context.Background(), viewer, &unrelated)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTeacherSeesOwnMirroredEvent(t *testing.T) {
	svc := newTestVisibilityService(nil, nil, nil, nil)
	viewer := models.UserContext{UserID: "u-t", SchoolID: "school-1", Role: models.RoleTeacher, TeacherID: "tch-1"}

	sourceType := models.SourceTypeExam
	sourceID := "exam-1"
	mirror := visibilityEvent(func(e *models.CalendarEvent) {
		e.CreatedBy = "u-t"
		e.SourceType = &sourceType
		e.SourceID = &sourceID
		e.VisibleToRoles = []string{"STUDENT"}
		e.VisibleToClasses = []string{"class-99"}
	})
	ok, err := svc.CanView(context.Background(), viewer, &mirror)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreatingManualEventGrantsNoVisibility(t *testing.T) {
	svc := newTestVisibilityService(nil, nil, nil, nil)

	// A manually created event gives its creator nothing beyond the regular
	// role and affiliation checks.
	event := visibilityEvent(func(e *models.CalendarEvent) {
		e.CreatedBy = "u-s"
		e.VisibleToRoles = []string{"TEACHER"}
	})

	student := models.UserContext{UserID: "u-s", SchoolID: "school-1", Role: models.RoleStudent, StudentID: "stu-1"}
	ok, err := svc.CanView(context.Background(), student, &event)
	require.NoError(t, err)
	assert.False(t, ok)

	teacherAuthored := visibilityEvent(func(e *models.CalendarEvent) {
		e.CreatedBy = "u-t"
		e.VisibleToRoles = []string{"STUDENT"}
		e.VisibleToClasses = []string{"class-99"}
	})
	teacher := models.UserContext{UserID: "u-t", SchoolID: "school-1", Role: models.RoleTeacher, TeacherID: "tch-1"}
	ok, err = svc.CanView(context.Background(), teacher, &teacherAuthored)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnknownRoleIsDenied(t *testing.T) {
	svc := newTestVisibilityService(nil, nil, nil, nil)
	viewer := models.UserContext{UserID: "u-x", SchoolID: "school-1", Role: models.UserRole("AUDITOR")}

	event := visibilityEvent(func(e *models.CalendarEvent) { e.VisibleToRoles = []string{"AUDITOR"} })
	ok, err := svc.CanView(context.Background(), viewer, &event)
	require.NoError(t, err)
	assert.False(t, ok)
}
