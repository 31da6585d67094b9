package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack-io/campus-api/internal/models"
)

// ParentRepository provides data access for parents and their child links.
type ParentRepository struct {
	db *sqlx.DB
}

// NewParentRepository creates a parent repository.
func NewParentRepository(db *sqlx.DB) *ParentRepository {
	return &ParentRepository{db: db}
}

const parentColumns = `id, school_id, full_name, email, phone, address, created_at, updated_at`

// List returns parents matching the filter with total count.
func (r *ParentRepository) List(ctx context.Context, filter models.ParentFilter) ([]models.Parent, int, error) {
	base := `FROM parents WHERE school_id = $1`
	args := []interface{}{filter.SchoolID}
	if filter.Search != "" {
		base += fmt.Sprintf(" AND (LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY full_name ASC LIMIT %d OFFSET %d", parentColumns, base, pageSize, offset)
	var parents []models.Parent
	if err := r.db.SelectContext(ctx, &parents, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list parents: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count parents: %w", err)
	}
	return parents, total, nil
}

// FindByID returns a parent by identifier.
func (r *ParentRepository) FindByID(ctx context.Context, id string) (*models.Parent, error) {
	query := fmt.Sprintf(`SELECT %s FROM parents WHERE id = $1 LIMIT 1`, parentColumns)
	var parent models.Parent
	if err := r.db.GetContext(ctx, &parent, query, id); err != nil {
		return nil, err
	}
	return &parent, nil
}

// Create inserts a parent.
func (r *ParentRepository) Create(ctx context.Context, parent *models.Parent) error {
	if parent.ID == "" {
		parent.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if parent.CreatedAt.IsZero() {
		parent.CreatedAt = now
	}
	parent.UpdatedAt = now
	const query = `INSERT INTO parents (id, school_id, full_name, email, phone, address, created_at, updated_at)
VALUES (:id, :school_id, :full_name, :email, :phone, :address, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, parent); err != nil {
		return fmt.Errorf("create parent: %w", err)
	}
	return nil
}

// Update modifies a parent.
func (r *ParentRepository) Update(ctx context.Context, parent *models.Parent) error {
	parent.UpdatedAt = time.Now().UTC()
	const query = `UPDATE parents SET full_name = :full_name, email = :email, phone = :phone, address = :address, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, parent); err != nil {
		return fmt.Errorf("update parent: %w", err)
	}
	return nil
}

// Delete removes a parent and its child links.
func (r *ParentRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete parent: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM parent_students WHERE parent_id = $1", id); err != nil {
		return fmt.Errorf("delete parent links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM parents WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete parent: %w", err)
	}
	return tx.Commit()
}

// LinkStudent attaches a student to a parent.
func (r *ParentRepository) LinkStudent(ctx context.Context, link *models.ParentStudent) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO parent_students (parent_id, student_id, relation, created_at)
VALUES (:parent_id, :student_id, :relation, :created_at)
ON CONFLICT (parent_id, student_id) DO UPDATE SET relation = EXCLUDED.relation`
	if _, err := r.db.NamedExecContext(ctx, query, link); err != nil {
		return fmt.Errorf("link parent student: %w", err)
	}
	return nil
}

// UnlinkStudent detaches a student from a parent.
func (r *ParentRepository) UnlinkStudent(ctx context.Context, parentID, studentID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM parent_students WHERE parent_id = $1 AND student_id = $2", parentID, studentID); err != nil {
		return fmt.Errorf("unlink parent student: %w", err)
	}
	return nil
}

// ListChildIDs returns the student IDs linked to a parent. Drives the
// transitive parent visibility check.
func (r *ParentRepository) ListChildIDs(ctx context.Context, parentID string) ([]string, error) {
	const query = `SELECT student_id FROM parent_students WHERE parent_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, parentID); err != nil {
		return nil, fmt.Errorf("list parent children: %w", err)
	}
	return ids, nil
}

// ListChildren returns the full student rows linked to a parent.
func (r *ParentRepository) ListChildren(ctx context.Context, parentID string) ([]models.Student, error) {
	const query = `SELECT s.id, s.school_id, s.nis, s.full_name, s.gender, s.birth_date, s.address, s.phone, s.active, s.created_at, s.updated_at
FROM students s JOIN parent_students ps ON ps.student_id = s.id WHERE ps.parent_id = $1 ORDER BY s.full_name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, parentID); err != nil {
		return nil, fmt.Errorf("list parent children: %w", err)
	}
	return students, nil
}
