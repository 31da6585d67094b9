package repository

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack-io/campus-api/internal/models"
)

func schoolRows(schools ...models.School) *sqlmock.Rows {
	rows := sqlmock.NewRows(strings.Split(schoolColumns, ", "))
	for _, s := range schools {
		var onboardedAt interface{}
		if s.OnboardedAt != nil {
			onboardedAt = *s.OnboardedAt
		}
		rows.AddRow(s.ID, s.Name, s.Slug, s.Timezone, s.Address, s.Active, s.IsOnboarded, s.OnboardingStep, onboardedAt, s.CreatedAt, s.UpdatedAt)
	}
	return rows
}

func TestSchoolRepositoryFindByID(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewSchoolRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	mock.ExpectQuery(`SELECT .+ FROM schools WHERE id = \$1`).
		WithArgs("school-1").
		WillReturnRows(schoolRows(models.School{
			ID:             "school-1",
			Name:           "SMA Harapan",
			Slug:           "sma-harapan",
			Timezone:       "Asia/Jakarta",
			Active:         true,
			OnboardingStep: 3,
			CreatedAt:      now,
			UpdatedAt:      now,
		}))

	school, err := repo.FindByID(context.Background(), "school-1")
	require.NoError(t, err)
	assert.Equal(t, "sma-harapan", school.Slug)
	assert.Equal(t, 3, school.OnboardingStep)
	assert.False(t, school.IsOnboarded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewSchoolRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM schools WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	school, err := repo.FindByID(context.Background(), "missing")
	assert.Nil(t, school)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolRepositoryList(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewSchoolRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	active := true
	mock.ExpectQuery(`SELECT .+ FROM schools WHERE 1=1 AND active = \$1 ORDER BY created_at DESC`).
		WithArgs(true).
		WillReturnRows(schoolRows(
			models.School{ID: "school-1", Name: "SMA Harapan", Slug: "sma-harapan", Timezone: "Asia/Jakarta", Active: true, CreatedAt: now, UpdatedAt: now},
			models.School{ID: "school-2", Name: "SMA Nusantara", Slug: "sma-nusantara", Timezone: "Asia/Jakarta", Active: true, CreatedAt: now, UpdatedAt: now},
		))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM schools WHERE 1=1 AND active = \$1`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	schools, total, err := repo.List(context.Background(), models.SchoolFilter{Active: &active, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, schools, 2)
	assert.Equal(t, 12, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolRepositoryMarkOnboarded(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewSchoolRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE schools SET is_onboarded = TRUE`).
		WithArgs("school-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	flipped, err := repo.MarkOnboarded(context.Background(), "school-1", at)
	require.NoError(t, err)
	assert.True(t, flipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolRepositoryMarkOnboardedAlreadyDone(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewSchoolRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE schools SET is_onboarded = TRUE`).
		WithArgs("school-1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	flipped, err := repo.MarkOnboarded(context.Background(), "school-1", at)
	require.NoError(t, err)
	assert.False(t, flipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolRepositoryInsertStepsTransactional(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewSchoolRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO school_onboarding_steps").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO school_onboarding_steps").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	steps := []models.OnboardingStep{
		{SchoolID: "school-1", StepNumber: 1, StepKey: "SCHOOL_PROFILE", Title: "School profile", Required: true, Status: models.OnboardingNotStarted},
		{SchoolID: "school-1", StepNumber: 2, StepKey: "ACADEMIC_STRUCTURE", Title: "Classes and sections", Required: true, Status: models.OnboardingNotStarted},
	}
	require.NoError(t, repo.InsertSteps(context.Background(), steps))
	assert.NotEmpty(t, steps[0].ID)
	assert.NotEmpty(t, steps[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolRepositoryInsertStepsRollsBackOnFailure(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewSchoolRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO school_onboarding_steps").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO school_onboarding_steps").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	steps := []models.OnboardingStep{
		{SchoolID: "school-1", StepNumber: 1, StepKey: "SCHOOL_PROFILE", Title: "School profile", Required: true, Status: models.OnboardingNotStarted},
		{SchoolID: "school-1", StepNumber: 2, StepKey: "ACADEMIC_STRUCTURE", Title: "Classes and sections", Required: true, Status: models.OnboardingNotStarted},
	}
	err := repo.InsertSteps(context.Background(), steps)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolRepositoryResetSteps(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewSchoolRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE school_onboarding_steps SET status = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 8))
	mock.ExpectExec(`UPDATE schools SET is_onboarded = FALSE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ResetSteps(context.Background(), "school-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolRepositoryListSchoolIDsWithoutSteps(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewSchoolRepository(db)

	mock.ExpectQuery(`SELECT s\.id FROM schools s`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("school-1").AddRow("school-2"))

	ids, err := repo.ListSchoolIDsWithoutSteps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"school-1", "school-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
