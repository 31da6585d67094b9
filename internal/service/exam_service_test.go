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

type stubExamRepo struct {
	exams map[string]*models.Exam
}

func newStubExamRepo() *stubExamRepo {
	return &stubExamRepo{exams: map[string]*models.Exam{}}
}

func (s *stubExamRepo) List(_ context.Context, schoolID string) ([]models.Exam, error) {
	var out []models.Exam
	for _, exam := range s.exams {
		if exam.SchoolID == schoolID {
			out = append(out, *exam)
		}
	}
	return out, nil
}

func (s *stubExamRepo) FindByID(_ context.Context, id string) (*models.Exam, error) {
	exam, ok := s.exams[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *exam
	return &clone, nil
}

func (s *stubExamRepo) Create(_ context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = "exam-1"
	}
	clone := *exam
	s.exams[exam.ID] = &clone
	return nil
}

func (s *stubExamRepo) Update(_ context.Context, exam *models.Exam) error {
	clone := *exam
	s.exams[exam.ID] = &clone
	return nil
}

func (s *stubExamRepo) Delete(_ context.Context, id string) error {
	delete(s.exams, id)
	return nil
}

func examTestService(calRepo *stubSyncCalendarRepo) (*ExamService, *stubExamRepo) {
	repo := newStubExamRepo()
	svc := NewExamService(repo, newTestSyncService(calRepo), nil, zap.NewNop())
	return svc, repo
}

func examRequest() ExamRequest {
	return ExamRequest{
		Title:      "Midterm mathematics",
		SubjectID:  "sub-math",
		ClassID:    "class-10",
		SectionIDs: []string{"sec-a"},
		StartsAt:   time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		EndsAt:     time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
	}
}

func TestExamCreateMirrorsOntoCalendar(t *testing.T) {
	calRepo := newStubSyncCalendarRepo()
	calRepo.addCategory("school-1", "Exam")
	svc, _ := examTestService(calRepo)

	exam, err := svc.Create(context.Background(), "school-1", "u-teacher", examRequest())
	require.NoError(t, err)
	require.Equal(t, 1, calRepo.created)

	mirror, err := calRepo.FindBySource(context.Background(), models.SourceTypeExam, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, "Midterm mathematics", mirror.Title)
	assert.Equal(t, []string{"class-10"}, []string(mirror.VisibleToClasses))
}

func TestExamUpdateRefreshesMirrorWithoutRecreating(t *testing.T) {
	calRepo := newStubSyncCalendarRepo()
	calRepo.addCategory("school-1", "Exam")
	svc, _ := examTestService(calRepo)

	exam, err := svc.Create(context.Background(), "school-1", "u-teacher", examRequest())
	require.NoError(t, err)

	req := examRequest()
	req.Title = "Midterm mathematics (rescheduled)"
	_, err = svc.Update(context.Background(), "school-1", exam.ID, req)
	require.NoError(t, err)

	assert.Equal(t, 1, calRepo.created)
	assert.Equal(t, 1, calRepo.updated)
	mirror, err := calRepo.FindBySource(context.Background(), models.SourceTypeExam, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, "Midterm mathematics (rescheduled)", mirror.Title)
}

func TestExamUpdateLeavesDeletedMirrorAlone(t *testing.T) {
	calRepo := newStubSyncCalendarRepo()
	calRepo.addCategory("school-1", "Exam")
	svc, _ := examTestService(calRepo)

	exam, err := svc.Create(context.Background(), "school-1", "u-teacher", examRequest())
	require.NoError(t, err)
	_, err = calRepo.DeleteBySource(context.Background(), models.SourceTypeExam, exam.ID)
	require.NoError(t, err)

	// An admin deleted the calendar entry; updating the exam must not bring
	// it back.
	_, err = svc.Update(context.Background(), "school-1", exam.ID, examRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, calRepo.created)
	_, err = calRepo.FindBySource(context.Background(), models.SourceTypeExam, exam.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestExamDeleteRemovesMirror(t *testing.T) {
	calRepo := newStubSyncCalendarRepo()
	calRepo.addCategory("school-1", "Exam")
	svc, _ := examTestService(calRepo)

	exam, err := svc.Create(context.Background(), "school-1", "u-teacher", examRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "school-1", exam.ID))
	_, err = calRepo.FindBySource(context.Background(), models.SourceTypeExam, exam.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestExamGetScopedToSchool(t *testing.T) {
	calRepo := newStubSyncCalendarRepo()
	calRepo.addCategory("school-1", "Exam")
	svc, _ := examTestService(calRepo)

	exam, err := svc.Create(context.Background(), "school-1", "u-teacher", examRequest())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "school-2", exam.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.KindNotFound, appErrors.FromError(err).Kind)
}
