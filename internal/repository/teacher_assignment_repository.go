package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack-io/campus-api/internal/models"
)

// TeacherAssignmentRepository provides data access for teacher assignments.
type TeacherAssignmentRepository struct {
	db *sqlx.DB
}

// NewTeacherAssignmentRepository creates a teacher assignment repository.
func NewTeacherAssignmentRepository(db *sqlx.DB) *TeacherAssignmentRepository {
	return &TeacherAssignmentRepository{db: db}
}

// ListByTeacher returns the assignments of a teacher with class and subject
// names. Drives both the roster API and the teacher affiliation check of the
// visibility filter.
func (r *TeacherAssignmentRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAssignmentDetail, error) {
	const query = `SELECT ta.id, ta.teacher_id, ta.class_id, ta.section_id, ta.subject_id, ta.school_year, ta.created_at,
c.name AS class_name, sub.name AS subject_name
FROM teacher_assignments ta
JOIN classes c ON c.id = ta.class_id
JOIN subjects sub ON sub.id = ta.subject_id
WHERE ta.teacher_id = $1
ORDER BY c.name ASC, sub.name ASC`
	var assignments []models.TeacherAssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, teacherID); err != nil {
		return nil, fmt.Errorf("list assignments by teacher: %w", err)
	}
	return assignments, nil
}

// ListByClass returns the assignments attached to a class.
func (r *TeacherAssignmentRepository) ListByClass(ctx context.Context, classID string) ([]models.TeacherAssignmentDetail, error) {
	const query = `SELECT ta.id, ta.teacher_id, ta.class_id, ta.section_id, ta.subject_id, ta.school_year, ta.created_at,
c.name AS class_name, sub.name AS subject_name, t.full_name AS teacher_name
FROM teacher_assignments ta
JOIN classes c ON c.id = ta.class_id
JOIN subjects sub ON sub.id = ta.subject_id
JOIN teachers t ON t.id = ta.teacher_id
WHERE ta.class_id = $1
ORDER BY sub.name ASC`
	var assignments []models.TeacherAssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, classID); err != nil {
		return nil, fmt.Errorf("list assignments by class: %w", err)
	}
	return assignments, nil
}

// Create inserts an assignment.
func (r *TeacherAssignmentRepository) Create(ctx context.Context, assignment *models.TeacherAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO teacher_assignments (id, teacher_id, class_id, section_id, subject_id, school_year, created_at)
VALUES (:id, :teacher_id, :class_id, :section_id, :subject_id, :school_year, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create teacher assignment: %w", err)
	}
	return nil
}

// Delete removes an assignment.
func (r *TeacherAssignmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM teacher_assignments WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete teacher assignment: %w", err)
	}
	return nil
}
