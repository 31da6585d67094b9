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

type stubSchoolRepo struct {
	schools map[string]*models.School
	steps   map[string][]*models.OnboardingStep

	markCalls    int
	stamped      map[string]bool
	mirroredStep map[string]int
	resets       int
}

func newStubSchoolRepo() *stubSchoolRepo {
	return &stubSchoolRepo{
		schools:      map[string]*models.School{},
		steps:        map[string][]*models.OnboardingStep{},
		stamped:      map[string]bool{},
		mirroredStep: map[string]int{},
	}
}

func (s *stubSchoolRepo) FindByID(_ context.Context, id string) (*models.School, error) {
	school, ok := s.schools[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *school
	return &clone, nil
}

func (s *stubSchoolRepo) ListSteps(_ context.Context, schoolID string) ([]models.OnboardingStep, error) {
	rows := s.steps[schoolID]
	out := make([]models.OnboardingStep, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

func (s *stubSchoolRepo) GetStep(_ context.Context, schoolID string, stepNumber int) (*models.OnboardingStep, error) {
	for _, row := range s.steps[schoolID] {
		if row.StepNumber == stepNumber {
			clone := *row
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubSchoolRepo) InsertSteps(_ context.Context, steps []models.OnboardingStep) error {
	for i := range steps {
		clone := steps[i]
		s.steps[clone.SchoolID] = append(s.steps[clone.SchoolID], &clone)
	}
	return nil
}

func (s *stubSchoolRepo) UpdateStep(_ context.Context, step *models.OnboardingStep) error {
	for _, row := range s.steps[step.SchoolID] {
		if row.StepNumber == step.StepNumber {
			*row = *step
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *stubSchoolRepo) MarkOnboarded(_ context.Context, id string, at time.Time) (bool, error) {
	s.markCalls++
	school, ok := s.schools[id]
	if !ok || school.IsOnboarded {
		return false, nil
	}
	school.IsOnboarded = true
	school.OnboardedAt = &at
	s.stamped[id] = true
	return true, nil
}

func (s *stubSchoolRepo) SetOnboardingStep(_ context.Context, id string, step int) error {
	s.mirroredStep[id] = step
	if school, ok := s.schools[id]; ok {
		school.OnboardingStep = step
	}
	return nil
}

func (s *stubSchoolRepo) ResetSteps(_ context.Context, schoolID string) error {
	s.resets++
	for _, row := range s.steps[schoolID] {
		row.Status = models.OnboardingNotStarted
		row.Attempts = 0
		row.StartedAt = nil
		row.CompletedAt = nil
		row.CompletedBy = nil
		row.ErrorMessage = nil
	}
	if school, ok := s.schools[schoolID]; ok {
		school.IsOnboarded = false
		school.OnboardedAt = nil
		school.OnboardingStep = 1
	}
	return nil
}

func (s *stubSchoolRepo) ListSchoolIDsWithoutSteps(_ context.Context) ([]string, error) {
	var ids []string
	for id := range s.schools {
		if len(s.steps[id]) == 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type stubAuditor struct {
	logs []*models.AuditLog
}

func (s *stubAuditor) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func newTestOnboardingService(repo *stubSchoolRepo, auditor *stubAuditor) *OnboardingService {
	var a onboardingAuditor
	if auditor != nil {
		a = auditor
	}
	svc := NewOnboardingService(repo, a, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func seedOnboardingSchool(repo *stubSchoolRepo, id string) {
	repo.schools[id] = &models.School{ID: id, Name: "Test School", Active: true, OnboardingStep: 1}
}

func TestInitializeStepsSeedsFixedChecklistOnce(t *testing.T) {
	repo := newStubSchoolRepo()
	seedOnboardingSchool(repo, "school-1")
	svc := newTestOnboardingService(repo, nil)

	require.NoError(t, svc.InitializeSteps(context.Background(), "school-1"))
	require.Len(t, repo.steps["school-1"], len(models.OnboardingStepDefinitions))

	require.NoError(t, svc.InitializeSteps(context.Background(), "school-1"))
	assert.Len(t, repo.steps["school-1"], len(models.OnboardingStepDefinitions), "reseeding must be a no-op")

	first := repo.steps["school-1"][0]
	assert.Equal(t, "SCHOOL_PROFILE", first.StepKey)
	assert.Equal(t, models.OnboardingNotStarted, first.Status)
	assert.True(t, first.Required)
}

func TestUpdateStepAttemptsAreMonotonic(t *testing.T) {
	repo := newStubSchoolRepo()
	seedOnboardingSchool(repo, "school-1")
	svc := newTestOnboardingService(repo, nil)
	require.NoError(t, svc.InitializeSteps(context.Background(), "school-1"))

	for want := 1; want <= 3; want++ {
		step, err := svc.UpdateStep(context.Background(), "school-1", 1,
			UpdateOnboardingStepRequest{Status: models.OnboardingInProgress}, "u-admin")
		require.NoError(t, err)
		assert.Equal(t, want, step.Attempts)
	}

	step, err := svc.UpdateStep(context.Background(), "school-1", 1,
		UpdateOnboardingStepRequest{Status: models.OnboardingCompleted}, "u-admin")
	require.NoError(t, err)
	assert.Equal(t, 3, step.Attempts, "completion must not touch attempts")
	require.NotNil(t, step.CompletedBy)
	assert.Equal(t, "u-admin", *step.CompletedBy)
}

func TestUpdateStepStampsFirstAttemptOnDirectTransitions(t *testing.T) {
	repo := newStubSchoolRepo()
	seedOnboardingSchool(repo, "school-1")
	svc := newTestOnboardingService(repo, nil)
	require.NoError(t, svc.InitializeSteps(context.Background(), "school-1"))

	// NOT_STARTED -> COMPLETED without an IN_PROGRESS stop still counts as
	// one attempt with a start timestamp.
	completed, err := svc.UpdateStep(context.Background(), "school-1", 1,
		UpdateOnboardingStepRequest{Status: models.OnboardingCompleted}, "u-admin")
	require.NoError(t, err)
	assert.Equal(t, 1, completed.Attempts)
	require.NotNil(t, completed.StartedAt)
	require.NotNil(t, completed.CompletedAt)

	msg := "seed data malformed"
	failed, err := svc.UpdateStep(context.Background(), "school-1", 2,
		UpdateOnboardingStepRequest{Status: models.OnboardingFailed, ErrorMessage: &msg}, "u-admin")
	require.NoError(t, err)
	assert.Equal(t, 1, failed.Attempts)
	require.NotNil(t, failed.StartedAt)
	assert.Nil(t, failed.CompletedAt)
}

func TestUpdateStepRejectsLeavingTerminalState(t *testing.T) {
	repo := newStubSchoolRepo()
	seedOnboardingSchool(repo, "school-1")
	svc := newTestOnboardingService(repo, nil)
	require.NoError(t, svc.InitializeSteps(context.Background(), "school-1"))

	_, err := svc.UpdateStep(context.Background(), "school-1", 2,
		UpdateOnboardingStepRequest{Status: models.OnboardingSkipped}, "u-admin")
	require.NoError(t, err)

	// Re-entering the same terminal status is tolerated.
	step, err := svc.UpdateStep(context.Background(), "school-1", 2,
		UpdateOnboardingStepRequest{Status: models.OnboardingSkipped}, "u-admin")
	require.NoError(t, err)
	assert.Equal(t, models.OnboardingSkipped, step.Status)

	_, err = svc.UpdateStep(context.Background(), "school-1", 2,
		UpdateOnboardingStepRequest{Status: models.OnboardingInProgress}, "u-admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.KindConflict, appErrors.FromError(err).Kind)
}

func TestUpdateStepRejectsInvalidStatus(t *testing.T) {
	repo := newStubSchoolRepo()
	seedOnboardingSchool(repo, "school-1")
	svc := newTestOnboardingService(repo, nil)
	require.NoError(t, svc.InitializeSteps(context.Background(), "school-1"))

	_, err := svc.UpdateStep(context.Background(), "school-1", 1,
		UpdateOnboardingStepRequest{Status: models.OnboardingNotStarted}, "u-admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.KindValidation, appErrors.FromError(err).Kind)
}

func TestFailedStepRecordsErrorMessage(t *testing.T) {
	repo := newStubSchoolRepo()
	seedOnboardingSchool(repo, "school-1")
	svc := newTestOnboardingService(repo, nil)
	require.NoError(t, svc.InitializeSteps(context.Background(), "school-1"))

	msg := "CSV import rejected 14 rows"
	step, err := svc.UpdateStep(context.Background(), "school-1", 5,
		UpdateOnboardingStepRequest{Status: models.OnboardingFailed, ErrorMessage: &msg}, "u-admin")
	require.NoError(t, err)
	require.NotNil(t, step.ErrorMessage)
	assert.Equal(t, msg, *step.ErrorMessage)
}

func TestRequiredStepsCompletionStampsSchoolExactlyOnce(t *testing.T) {
	repo := newStubSchoolRepo()
	seedOnboardingSchool(repo, "school-1")
	svc := newTestOnboardingService(repo, nil)
	require.NoError(t, svc.InitializeSteps(context.Background(), "school-1"))

	// Finish the five required steps; optional ones stay untouched.
	for _, def := range models.OnboardingStepDefinitions {
		if !def.Required {
			continue
		}
		_, err := svc.UpdateStep(context.Background(), "school-1", def.Number,
			UpdateOnboardingStepRequest{Status: models.OnboardingCompleted}, "u-admin")
		require.NoError(t, err)
	}

	school := repo.schools["school-1"]
	assert.True(t, school.IsOnboarded)
	require.NotNil(t, school.OnboardedAt)
	assert.Equal(t, 1, repo.markCalls, "stamp attempted only when required steps just finished")

	// Finishing an optional step afterwards must not re-stamp.
	_, err := svc.UpdateStep(context.Background(), "school-1", 6,
		UpdateOnboardingStepRequest{Status: models.OnboardingSkipped}, "u-admin")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.markCalls)
}

func TestCurrentStepIsLowestUnfinishedAndZeroWhenDone(t *testing.T) {
	repo := newStubSchoolRepo()
	seedOnboardingSchool(repo, "school-1")
	svc := newTestOnboardingService(repo, nil)
	require.NoError(t, svc.InitializeSteps(context.Background(), "school-1"))

	_, err := svc.UpdateStep(context.Background(), "school-1", 1,
		UpdateOnboardingStepRequest{Status: models.OnboardingCompleted}, "u-admin")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.mirroredStep["school-1"])

	for step := 2; step <= 8; step++ {
		_, err := svc.UpdateStep(context.Background(), "school-1", step,
			UpdateOnboardingStepRequest{Status: models.OnboardingCompleted}, "u-admin")
		require.NoError(t, err)
	}
	assert.Equal(t, 0, repo.mirroredStep["school-1"], "0 marks a fully finished checklist")
}

func TestProgressPercentageRoundsToTwoDecimals(t *testing.T) {
	school := &models.School{ID: "school-1"}
	steps := []models.OnboardingStep{
		{StepNumber: 1, Required: true, Status: models.OnboardingCompleted},
		{StepNumber: 2, Required: true, Status: models.OnboardingSkipped},
		{StepNumber: 3, Required: true, Status: models.OnboardingInProgress},
	}

	progress := buildProgress(school, steps)
	assert.Equal(t, 2, progress.FinishedSteps)
	assert.Equal(t, 3, progress.TotalSteps)
	assert.InDelta(t, 66.67, progress.Percentage, 0.001)
	assert.Equal(t, 3, progress.CurrentStep)
	assert.False(t, progress.RequiredDone)
}

func TestSkippedRequiredStepBlocksOnboarding(t *testing.T) {
	repo := newStubSchoolRepo()
	seedOnboardingSchool(repo, "school-1")
	svc := newTestOnboardingService(repo, nil)
	require.NoError(t, svc.InitializeSteps(context.Background(), "school-1"))

	// Skipping a required step leaves the checklist finishable on paper but
	// the school must not be stamped onboarded.
	for _, def := range models.OnboardingStepDefinitions {
		if !def.Required {
			continue
		}
		status := models.OnboardingCompleted
		if def.Number == 1 {
			status = models.OnboardingSkipped
		}
		_, err := svc.UpdateStep(context.Background(), "school-1", def.Number,
			UpdateOnboardingStepRequest{Status: status}, "u-admin")
		require.NoError(t, err)
	}

	assert.False(t, repo.schools["school-1"].IsOnboarded)
	assert.Zero(t, repo.markCalls)

	progress, err := svc.GetProgress(context.Background(), "school-1")
	require.NoError(t, err)
	assert.False(t, progress.RequiredDone)
}

func TestFailedRequiredStepBlocksOnboarding(t *testing.T) {
	school := &models.School{ID: "school-1"}
	steps := []models.OnboardingStep{
		{StepNumber: 1, Required: true, Status: models.OnboardingCompleted},
		{StepNumber: 2, Required: true, Status: models.OnboardingFailed},
	}

	progress := buildProgress(school, steps)
	assert.False(t, progress.RequiredDone)
	assert.Equal(t, 2, progress.CurrentStep)
	assert.Equal(t, 1, progress.FinishedSteps, "FAILED does not count as finished")
}

func TestResetClearsChecklistAndAudits(t *testing.T) {
	repo := newStubSchoolRepo()
	seedOnboardingSchool(repo, "school-1")
	auditor := &stubAuditor{}
	svc := newTestOnboardingService(repo, auditor)
	require.NoError(t, svc.InitializeSteps(context.Background(), "school-1"))

	for _, def := range models.OnboardingStepDefinitions {
		if !def.Required {
			continue
		}
		_, err := svc.UpdateStep(context.Background(), "school-1", def.Number,
			UpdateOnboardingStepRequest{Status: models.OnboardingCompleted}, "u-admin")
		require.NoError(t, err)
	}
	require.True(t, repo.schools["school-1"].IsOnboarded)

	require.NoError(t, svc.Reset(context.Background(), "school-1", "u-admin"))
	assert.False(t, repo.schools["school-1"].IsOnboarded)
	for _, row := range repo.steps["school-1"] {
		assert.Equal(t, models.OnboardingNotStarted, row.Status)
		assert.Zero(t, row.Attempts)
	}
	require.Len(t, auditor.logs, 1)
	assert.Equal(t, models.AuditActionOnboardingReset, auditor.logs[0].Action)
}

func TestBackfillTranslatesLegacyScalarStep(t *testing.T) {
	repo := newStubSchoolRepo()
	seedOnboardingSchool(repo, "school-legacy")
	repo.schools["school-legacy"].OnboardingStep = 4
	svc := newTestOnboardingService(repo, nil)

	seeded, err := svc.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, seeded)

	rows := repo.steps["school-legacy"]
	require.Len(t, rows, len(models.OnboardingStepDefinitions))
	for _, row := range rows {
		switch {
		case row.StepNumber < 4:
			assert.Equal(t, models.OnboardingCompleted, row.Status, "step %d", row.StepNumber)
		case row.StepNumber == 4:
			assert.Equal(t, models.OnboardingInProgress, row.Status)
		default:
			assert.Equal(t, models.OnboardingNotStarted, row.Status, "step %d", row.StepNumber)
		}
	}

	// Re-running leaves already seeded schools alone.
	seeded, err = svc.Backfill(context.Background())
	require.NoError(t, err)
	assert.Zero(t, seeded)
}
