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

// ClassRepository provides data access for classes and their sections.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository creates a class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes with homeroom teacher context.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	base := `FROM classes cl LEFT JOIN teachers t ON t.id = cl.homeroom_teacher_id WHERE cl.school_id = $1`
	args := []interface{}{filter.SchoolID}
	if filter.Grade != "" {
		base += fmt.Sprintf(" AND cl.grade = $%d", len(args)+1)
		args = append(args, filter.Grade)
	}
	if filter.Search != "" {
		base += fmt.Sprintf(" AND LOWER(cl.name) LIKE $%d", len(args)+1)
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

	listQuery := fmt.Sprintf(`SELECT cl.id, cl.school_id, cl.name, cl.grade, cl.homeroom_teacher_id, cl.created_at, cl.updated_at,
t.full_name AS homeroom_teacher_name %s ORDER BY cl.grade ASC, cl.name ASC LIMIT %d OFFSET %d`, base, pageSize, offset)
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a class by identifier.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, school_id, name, grade, homeroom_teacher_id, created_at, updated_at FROM classes WHERE id = $1 LIMIT 1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// Create inserts a class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, school_id, name, grade, homeroom_teacher_id, created_at, updated_at)
VALUES (:id, :school_id, :name, :grade, :homeroom_teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update modifies a class.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, grade = :grade, homeroom_teacher_id = :homeroom_teacher_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Delete removes a class and its sections.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete class: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM sections WHERE class_id = $1", id); err != nil {
		return fmt.Errorf("delete class sections: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM classes WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return tx.Commit()
}

// ListHomeroomClassIDs returns the classes a teacher homerooms.
func (r *ClassRepository) ListHomeroomClassIDs(ctx context.Context, teacherID string) ([]string, error) {
	const query = `SELECT id FROM classes WHERE homeroom_teacher_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, teacherID); err != nil {
		return nil, fmt.Errorf("list homeroom classes: %w", err)
	}
	return ids, nil
}

// ListSections returns the sections of a class.
func (r *ClassRepository) ListSections(ctx context.Context, classID string) ([]models.Section, error) {
	const query = `SELECT id, class_id, name, capacity, created_at, updated_at FROM sections WHERE class_id = $1 ORDER BY name ASC`
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, classID); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

// CreateSection inserts a section under a class.
func (r *ClassRepository) CreateSection(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now
	const query = `INSERT INTO sections (id, class_id, name, capacity, created_at, updated_at)
VALUES (:id, :class_id, :name, :capacity, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// DeleteSection removes a section.
func (r *ClassRepository) DeleteSection(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sections WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	return nil
}

// ListSectionIDsByClass returns section IDs belonging to a class.
func (r *ClassRepository) ListSectionIDsByClass(ctx context.Context, classID string) ([]string, error) {
	const query = `SELECT id FROM sections WHERE class_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, classID); err != nil {
		return nil, fmt.Errorf("list section ids: %w", err)
	}
	return ids, nil
}
