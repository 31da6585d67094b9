package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

type onboardingSchoolRepository interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
	ListSteps(ctx context.Context, schoolID string) ([]models.OnboardingStep, error)
	GetStep(ctx context.Context, schoolID string, stepNumber int) (*models.OnboardingStep, error)
	InsertSteps(ctx context.Context, steps []models.OnboardingStep) error
	UpdateStep(ctx context.Context, step *models.OnboardingStep) error
	MarkOnboarded(ctx context.Context, id string, at time.Time) (bool, error)
	SetOnboardingStep(ctx context.Context, id string, step int) error
	ResetSteps(ctx context.Context, schoolID string) error
	ListSchoolIDsWithoutSteps(ctx context.Context) ([]string, error)
}

type onboardingAuditor interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// OnboardingProgress is the aggregated view of a school's setup checklist.
type OnboardingProgress struct {
	SchoolID      string                  `json:"school_id"`
	IsOnboarded   bool                    `json:"is_onboarded"`
	OnboardedAt   *time.Time              `json:"onboarded_at,omitempty"`
	CurrentStep   int                     `json:"current_step"`
	TotalSteps    int                     `json:"total_steps"`
	FinishedSteps int                     `json:"finished_steps"`
	Percentage    float64                 `json:"percentage"`
	RequiredDone  bool                    `json:"required_done"`
	Steps         []models.OnboardingStep `json:"steps"`
}

// UpdateOnboardingStepRequest carries a step transition.
type UpdateOnboardingStepRequest struct {
	Status       models.OnboardingStatus `json:"status" validate:"required"`
	ErrorMessage *string                 `json:"error_message,omitempty"`
	Metadata     []byte                  `json:"metadata,omitempty"`
}

// OnboardingService tracks per-school setup progress as a fixed checklist of
// step rows, each advancing through a small state machine. Completing every
// required step stamps the school as onboarded exactly once.
type OnboardingService struct {
	schools onboardingSchoolRepository
	auditor onboardingAuditor
	logger  *zap.Logger
	now     func() time.Time
}

// NewOnboardingService constructs the onboarding service.
func NewOnboardingService(schools onboardingSchoolRepository, auditor onboardingAuditor, logger *zap.Logger) *OnboardingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnboardingService{schools: schools, auditor: auditor, logger: logger, now: time.Now}
}

// InitializeSteps seeds the fixed checklist for a school. Idempotent: a
// school that already has step rows is left untouched.
func (s *OnboardingService) InitializeSteps(ctx context.Context, schoolID string) error {
	existing, err := s.schools.ListSteps(ctx, schoolID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "list onboarding steps")
	}
	if len(existing) > 0 {
		return nil
	}

	steps := make([]models.OnboardingStep, 0, len(models.OnboardingStepDefinitions))
	for _, def := range models.OnboardingStepDefinitions {
		steps = append(steps, models.OnboardingStep{
			SchoolID:   schoolID,
			StepNumber: def.Number,
			StepKey:    def.Key,
			Title:      def.Title,
			Required:   def.Required,
			Status:     models.OnboardingNotStarted,
		})
	}
	if err := s.schools.InsertSteps(ctx, steps); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "seed onboarding steps")
	}
	return nil
}

// GetProgress returns the school's checklist with derived aggregates.
func (s *OnboardingService) GetProgress(ctx context.Context, schoolID string) (*OnboardingProgress, error) {
	school, err := s.schools.FindByID(ctx, schoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "load school")
	}
	steps, err := s.schools.ListSteps(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "list onboarding steps")
	}
	progress := buildProgress(school, steps)
	return progress, nil
}

func buildProgress(school *models.School, steps []models.OnboardingStep) *OnboardingProgress {
	progress := &OnboardingProgress{
		SchoolID:    school.ID,
		IsOnboarded: school.IsOnboarded,
		OnboardedAt: school.OnboardedAt,
		TotalSteps:  len(steps),
		Steps:       steps,
	}

	requiredDone := true
	currentStep := 0
	for _, step := range steps {
		if step.Status.Finished() {
			progress.FinishedSteps++
		} else if currentStep == 0 || step.StepNumber < currentStep {
			currentStep = step.StepNumber
		}
		// A skipped required step still counts as finished for the progress
		// bar, but it keeps the school off the onboarded stamp.
		if step.Required && step.Status != models.OnboardingCompleted {
			requiredDone = false
		}
	}
	progress.RequiredDone = requiredDone && len(steps) > 0
	// 0 means every step is finished.
	progress.CurrentStep = currentStep
	if progress.TotalSteps > 0 {
		raw := float64(progress.FinishedSteps) / float64(progress.TotalSteps) * 100
		progress.Percentage = math.Round(raw*100) / 100
	}
	return progress
}

// UpdateStep applies a status transition to one step and refreshes the
// school-level aggregates. Allowed transitions:
//
//	NOT_STARTED  -> IN_PROGRESS | COMPLETED | FAILED | SKIPPED
//	IN_PROGRESS  -> IN_PROGRESS | COMPLETED | FAILED | SKIPPED
//	terminal     -> same status only (tolerated re-entry, no effect)
//
// Attempts increments on every transition out of NOT_STARTED and on each
// re-entry into IN_PROGRESS; it never decreases. StartedAt is stamped the
// first time the step leaves NOT_STARTED, whatever the target status.
func (s *OnboardingService) UpdateStep(ctx context.Context, schoolID string, stepNumber int, req UpdateOnboardingStepRequest, actorID string) (*models.OnboardingStep, error) {
	switch req.Status {
	case models.OnboardingInProgress, models.OnboardingCompleted, models.OnboardingFailed, models.OnboardingSkipped:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid step status %q", req.Status))
	}

	step, err := s.schools.GetStep(ctx, schoolID, stepNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "onboarding step not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "load onboarding step")
	}

	if step.Status.Terminal() {
		if step.Status == req.Status {
			return step, nil
		}
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("step already %s, reset onboarding to change it", step.Status))
	}

	now := s.now().UTC()
	if step.Status == models.OnboardingNotStarted {
		step.Attempts++
		if step.StartedAt == nil {
			step.StartedAt = &now
		}
	} else if req.Status == models.OnboardingInProgress {
		step.Attempts++
	}
	switch req.Status {
	case models.OnboardingInProgress:
		step.ErrorMessage = nil
	case models.OnboardingCompleted, models.OnboardingSkipped:
		step.CompletedAt = &now
		if actorID != "" {
			step.CompletedBy = &actorID
		}
		step.ErrorMessage = nil
	case models.OnboardingFailed:
		step.ErrorMessage = req.ErrorMessage
	}
	step.Status = req.Status
	if len(req.Metadata) > 0 {
		step.Metadata = req.Metadata
	}

	if err := s.schools.UpdateStep(ctx, step); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "persist onboarding step")
	}

	if err := s.refreshSchoolAggregates(ctx, schoolID); err != nil {
		return nil, err
	}
	return step, nil
}

// refreshSchoolAggregates recomputes the mirrored current step and, when all
// required steps are finished, stamps the school onboarded. The stamp is
// guarded in SQL so concurrent finishers cannot double-write it.
func (s *OnboardingService) refreshSchoolAggregates(ctx context.Context, schoolID string) error {
	school, err := s.schools.FindByID(ctx, schoolID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "reload school")
	}
	steps, err := s.schools.ListSteps(ctx, schoolID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "reload onboarding steps")
	}
	progress := buildProgress(school, steps)

	if err := s.schools.SetOnboardingStep(ctx, schoolID, progress.CurrentStep); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "mirror current step")
	}

	if progress.RequiredDone && !school.IsOnboarded {
		stamped, err := s.schools.MarkOnboarded(ctx, schoolID, s.now().UTC())
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal, "mark school onboarded")
		}
		if stamped {
			s.logger.Info("school onboarded", zap.String("school_id", schoolID))
		}
	}
	return nil
}

// Reset wipes the checklist back to NOT_STARTED and clears the onboarded
// stamp. Destructive, admin-only, audited.
func (s *OnboardingService) Reset(ctx context.Context, schoolID, actorID string) error {
	if _, err := s.schools.FindByID(ctx, schoolID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal, "load school")
	}
	if err := s.schools.ResetSteps(ctx, schoolID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "reset onboarding steps")
	}

	if s.auditor != nil {
		entry := &models.AuditLog{
			SchoolID: &schoolID,
			UserID:   &actorID,
			Action:   models.AuditActionOnboardingReset,
			Resource: "school_onboarding",
		}
		if err := s.auditor.CreateAuditLog(ctx, entry); err != nil {
			s.logger.Warn("audit onboarding reset", zap.String("school_id", schoolID), zap.Error(err))
		}
	}
	return nil
}

// Backfill seeds step rows for schools that predate detailed tracking,
// translating the legacy scalar step: steps below it are assumed completed,
// the step itself in progress, later steps untouched. The guess is recorded
// as-is; an admin can reset a misclassified school.
func (s *OnboardingService) Backfill(ctx context.Context) (int, error) {
	ids, err := s.schools.ListSchoolIDsWithoutSteps(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal, "list schools without steps")
	}

	seeded := 0
	for _, schoolID := range ids {
		school, err := s.schools.FindByID(ctx, schoolID)
		if err != nil {
			s.logger.Warn("backfill: load school", zap.String("school_id", schoolID), zap.Error(err))
			continue
		}
		now := s.now().UTC()
		steps := make([]models.OnboardingStep, 0, len(models.OnboardingStepDefinitions))
		for _, def := range models.OnboardingStepDefinitions {
			step := models.OnboardingStep{
				SchoolID:   schoolID,
				StepNumber: def.Number,
				StepKey:    def.Key,
				Title:      def.Title,
				Required:   def.Required,
				Status:     models.OnboardingNotStarted,
			}
			switch {
			case school.IsOnboarded || def.Number < school.OnboardingStep:
				step.Status = models.OnboardingCompleted
				step.Attempts = 1
				step.StartedAt = &now
				step.CompletedAt = &now
			case def.Number == school.OnboardingStep:
				step.Status = models.OnboardingInProgress
				step.Attempts = 1
				step.StartedAt = &now
			}
			steps = append(steps, step)
		}
		if err := s.schools.InsertSteps(ctx, steps); err != nil {
			s.logger.Warn("backfill: seed steps", zap.String("school_id", schoolID), zap.Error(err))
			continue
		}
		seeded++
	}
	return seeded, nil
}
