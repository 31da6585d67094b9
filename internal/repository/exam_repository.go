package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack-io/campus-api/internal/models"
)

// ExamRepository provides data access for exams.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository creates an exam repository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

const examColumns = `id, school_id, title, description, subject_id, class_id, section_ids, starts_at, ends_at, created_by, created_at, updated_at`

// List returns exams of a school ordered by start time.
func (r *ExamRepository) List(ctx context.Context, schoolID string) ([]models.Exam, error) {
	query := fmt.Sprintf(`SELECT %s FROM exams WHERE school_id = $1 ORDER BY starts_at DESC`, examColumns)
	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, schoolID); err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return exams, nil
}

// FindByID returns an exam by identifier.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	query := fmt.Sprintf(`SELECT %s FROM exams WHERE id = $1 LIMIT 1`, examColumns)
	var exam models.Exam
	if err := r.db.GetContext(ctx, &exam, query, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// Create inserts an exam.
func (r *ExamRepository) Create(ctx context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = now
	}
	exam.UpdatedAt = now
	const query = `INSERT INTO exams (id, school_id, title, description, subject_id, class_id, section_ids, starts_at, ends_at, created_by, created_at, updated_at)
VALUES (:id, :school_id, :title, :description, :subject_id, :class_id, :section_ids, :starts_at, :ends_at, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// Update modifies an exam.
func (r *ExamRepository) Update(ctx context.Context, exam *models.Exam) error {
	exam.UpdatedAt = time.Now().UTC()
	const query = `UPDATE exams SET title = :title, description = :description, subject_id = :subject_id, class_id = :class_id,
section_ids = :section_ids, starts_at = :starts_at, ends_at = :ends_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	return nil
}

// Delete removes an exam.
func (r *ExamRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM exams WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	return nil
}
