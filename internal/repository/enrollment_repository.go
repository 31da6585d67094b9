package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack-io/campus-api/internal/models"
)

// EnrollmentRepository provides data access for enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates an enrollment repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enriched enrollments matching the filter.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN classes c ON c.id = e.class_id
LEFT JOIN sections sec ON sec.id = e.section_id
WHERE 1=1`
	var args []interface{}
	if filter.StudentID != "" {
		base += fmt.Sprintf(" AND e.student_id = $%d", len(args)+1)
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		base += fmt.Sprintf(" AND e.class_id = $%d", len(args)+1)
		args = append(args, filter.ClassID)
	}
	if filter.SectionID != "" {
		base += fmt.Sprintf(" AND e.section_id = $%d", len(args)+1)
		args = append(args, filter.SectionID)
	}
	if filter.SchoolYear != "" {
		base += fmt.Sprintf(" AND e.school_year = $%d", len(args)+1)
		args = append(args, filter.SchoolYear)
	}
	if filter.Status != "" {
		base += fmt.Sprintf(" AND e.status = $%d", len(args)+1)
		args = append(args, filter.Status)
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

	listQuery := fmt.Sprintf(`SELECT e.id, e.student_id, e.class_id, e.section_id, e.school_year, e.status, e.joined_at, e.left_at,
s.full_name AS student_name, s.nis AS student_nis, c.name AS class_name, sec.name AS section_name
%s ORDER BY e.joined_at DESC LIMIT %d OFFSET %d`, base, pageSize, offset)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListActiveByStudent returns the student's ACTIVE enrollments. Drives the
// student affiliation check of the visibility filter.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, section_id, school_year, status, joined_at, left_at
FROM enrollments WHERE student_id = $1 AND status = $2`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return enrollments, nil
}

// Create inserts an enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.JoinedAt.IsZero() {
		enrollment.JoinedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (id, student_id, class_id, section_id, school_year, status, joined_at, left_at)
VALUES (:id, :student_id, :class_id, :section_id, :school_year, :status, :joined_at, :left_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Transfer closes the student's active enrollment and opens a new one in a
// single transaction so the student never has zero or two active rows.
func (r *EnrollmentRepository) Transfer(ctx context.Context, studentID string, next *models.Enrollment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const closeQuery = `UPDATE enrollments SET status = $2, left_at = $3 WHERE student_id = $1 AND status = $4`
	if _, err := tx.ExecContext(ctx, closeQuery, studentID, models.EnrollmentStatusTransferred, now, models.EnrollmentStatusActive); err != nil {
		return fmt.Errorf("close active enrollment: %w", err)
	}

	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	next.StudentID = studentID
	next.Status = models.EnrollmentStatusActive
	if next.JoinedAt.IsZero() {
		next.JoinedAt = now
	}
	const openQuery = `INSERT INTO enrollments (id, student_id, class_id, section_id, school_year, status, joined_at, left_at)
VALUES (:id, :student_id, :class_id, :section_id, :school_year, :status, :joined_at, :left_at)`
	if _, err := tx.NamedExecContext(ctx, openQuery, next); err != nil {
		return fmt.Errorf("open new enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	return nil
}

// Leave marks the student's active enrollment as LEFT.
func (r *EnrollmentRepository) Leave(ctx context.Context, studentID string) error {
	const query = `UPDATE enrollments SET status = $2, left_at = $3 WHERE student_id = $1 AND status = $4`
	if _, err := r.db.ExecContext(ctx, query, studentID, models.EnrollmentStatusLeft, time.Now().UTC(), models.EnrollmentStatusActive); err != nil {
		return fmt.Errorf("leave enrollment: %w", err)
	}
	return nil
}
