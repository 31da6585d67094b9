package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack-io/campus-api/internal/models"
)

// SchoolRepository persists schools and their onboarding step rows.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository constructs a school repository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

const schoolColumns = `id, name, slug, timezone, address, active, is_onboarded, onboarding_step, onboarded_at, created_at, updated_at`

// FindByID returns a school by identifier.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	query := fmt.Sprintf(`SELECT %s FROM schools WHERE id = $1 LIMIT 1`, schoolColumns)
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find school by id: %w", err)
	}
	return &school, nil
}

// List returns schools matching the filter with total count.
func (r *SchoolRepository) List(ctx context.Context, filter models.SchoolFilter) ([]models.School, int, error) {
	baseQuery := `FROM schools WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Onboarded != nil {
		conditions = append(conditions, fmt.Sprintf("is_onboarded = $%d", len(args)+1))
		args = append(args, *filter.Onboarded)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(slug) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", schoolColumns, baseQuery, pageSize, offset)
	var schools []models.School
	if err := r.db.SelectContext(ctx, &schools, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list schools: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schools: %w", err)
	}
	return schools, total, nil
}

// Create inserts a school.
func (r *SchoolRepository) Create(ctx context.Context, school *models.School) error {
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if school.CreatedAt.IsZero() {
		school.CreatedAt = now
	}
	school.UpdatedAt = now
	const query = `INSERT INTO schools (id, name, slug, timezone, address, active, is_onboarded, onboarding_step, onboarded_at, created_at, updated_at)
VALUES (:id, :name, :slug, :timezone, :address, :active, :is_onboarded, :onboarding_step, :onboarded_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, school); err != nil {
		return fmt.Errorf("create school: %w", err)
	}
	return nil
}

// Update modifies mutable school fields.
func (r *SchoolRepository) Update(ctx context.Context, school *models.School) error {
	school.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schools SET name = :name, slug = :slug, timezone = :timezone, address = :address, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, school); err != nil {
		return fmt.Errorf("update school: %w", err)
	}
	return nil
}

// MarkOnboarded flips is_onboarded and stamps onboarded_at exactly once.
// Re-entrant calls find is_onboarded already true and affect zero rows.
func (r *SchoolRepository) MarkOnboarded(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE schools SET is_onboarded = TRUE, onboarded_at = $2, updated_at = $2 WHERE id = $1 AND is_onboarded = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("mark school onboarded: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// SetOnboardingStep mirrors the derived current step onto the school row.
func (r *SchoolRepository) SetOnboardingStep(ctx context.Context, id string, step int) error {
	const query = `UPDATE schools SET onboarding_step = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, step, time.Now().UTC()); err != nil {
		return fmt.Errorf("set onboarding step: %w", err)
	}
	return nil
}

const stepColumns = `id, school_id, step_number, step_key, title, required, status, attempts, started_at, completed_at, completed_by, error_message, metadata, created_at, updated_at`

// ListSteps returns the step rows of a school ordered by step number.
func (r *SchoolRepository) ListSteps(ctx context.Context, schoolID string) ([]models.OnboardingStep, error) {
	query := fmt.Sprintf(`SELECT %s FROM school_onboarding_steps WHERE school_id = $1 ORDER BY step_number ASC`, stepColumns)
	var steps []models.OnboardingStep
	if err := r.db.SelectContext(ctx, &steps, query, schoolID); err != nil {
		return nil, fmt.Errorf("list onboarding steps: %w", err)
	}
	return steps, nil
}

// GetStep returns a single step row.
func (r *SchoolRepository) GetStep(ctx context.Context, schoolID string, stepNumber int) (*models.OnboardingStep, error) {
	query := fmt.Sprintf(`SELECT %s FROM school_onboarding_steps WHERE school_id = $1 AND step_number = $2 LIMIT 1`, stepColumns)
	var step models.OnboardingStep
	if err := r.db.GetContext(ctx, &step, query, schoolID, stepNumber); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get onboarding step: %w", err)
	}
	return &step, nil
}

// InsertSteps writes the full step list in one transaction so a school never
// ends up with a partial checklist.
func (r *SchoolRepository) InsertSteps(ctx context.Context, steps []models.OnboardingStep) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert steps: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO school_onboarding_steps (id, school_id, step_number, step_key, title, required, status, attempts, started_at, completed_at, completed_by, error_message, metadata, created_at, updated_at)
VALUES (:id, :school_id, :step_number, :step_key, :title, :required, :status, :attempts, :started_at, :completed_at, :completed_by, :error_message, :metadata, :created_at, :updated_at)`
	now := time.Now().UTC()
	for i := range steps {
		if steps[i].ID == "" {
			steps[i].ID = uuid.NewString()
		}
		if steps[i].CreatedAt.IsZero() {
			steps[i].CreatedAt = now
		}
		steps[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, steps[i]); err != nil {
			return fmt.Errorf("insert onboarding step %d: %w", steps[i].StepNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert steps: %w", err)
	}
	return nil
}

// UpdateStep persists a mutated step row.
func (r *SchoolRepository) UpdateStep(ctx context.Context, step *models.OnboardingStep) error {
	step.UpdatedAt = time.Now().UTC()
	const query = `UPDATE school_onboarding_steps SET status = :status, attempts = :attempts, started_at = :started_at,
completed_at = :completed_at, completed_by = :completed_by, error_message = :error_message, metadata = :metadata, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, step); err != nil {
		return fmt.Errorf("update onboarding step: %w", err)
	}
	return nil
}

// ResetSteps reinitialises every step of a school to NOT_STARTED and clears
// the school-level onboarding flags inside one transaction.
func (r *SchoolRepository) ResetSteps(ctx context.Context, schoolID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset steps: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const stepQuery = `UPDATE school_onboarding_steps SET status = $2, attempts = 0, started_at = NULL, completed_at = NULL,
completed_by = NULL, error_message = NULL, metadata = NULL, updated_at = $3 WHERE school_id = $1`
	if _, err := tx.ExecContext(ctx, stepQuery, schoolID, models.OnboardingNotStarted, now); err != nil {
		return fmt.Errorf("reset onboarding steps: %w", err)
	}

	const schoolQuery = `UPDATE schools SET is_onboarded = FALSE, onboarded_at = NULL, onboarding_step = 1, updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, schoolQuery, schoolID, now); err != nil {
		return fmt.Errorf("reset school onboarding flags: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset steps: %w", err)
	}
	return nil
}

// ListSchoolIDsWithoutSteps returns schools that predate detailed step
// tracking. Consumed by the one-time backfill job.
func (r *SchoolRepository) ListSchoolIDsWithoutSteps(ctx context.Context) ([]string, error) {
	const query = `SELECT s.id FROM schools s
LEFT JOIN school_onboarding_steps os ON os.school_id = s.id
WHERE os.id IS NULL
GROUP BY s.id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list schools without steps: %w", err)
	}
	return ids, nil
}
