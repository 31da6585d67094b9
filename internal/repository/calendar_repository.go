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

// CalendarRepository persists calendar events and categories.
type CalendarRepository struct {
	db *sqlx.DB
}

// NewCalendarRepository constructs a calendar repository.
func NewCalendarRepository(db *sqlx.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

const calendarColumns = `id, school_id, category_id, title, description, location, start_time, end_time, all_day, is_recurring, recurrence_rule, exception_dates, visible_to_roles, visible_to_classes, visible_to_sections, source_type, source_id, created_by, created_at, updated_at`

// ListForWindow returns events that can contribute occurrences to the
// window: non-recurring events overlapping it plus every recurring series
// anchored before the window end. Recurring rows are expanded by the caller.
func (r *CalendarRepository) ListForWindow(ctx context.Context, schoolID string, windowStart, windowEnd time.Time) ([]models.CalendarEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM calendar_events
WHERE school_id = $1
  AND ((NOT is_recurring AND start_time <= $3 AND end_time >= $2) OR (is_recurring AND start_time <= $3))
ORDER BY start_time ASC`, calendarColumns)
	var events []models.CalendarEvent
	if err := r.db.SelectContext(ctx, &events, query, schoolID, windowStart, windowEnd); err != nil {
		return nil, fmt.Errorf("list calendar events for window: %w", err)
	}
	return events, nil
}

// ListAllForWindow is the cross-school variant of ListForWindow, used by the
// reminder scanner.
func (r *CalendarRepository) ListAllForWindow(ctx context.Context, windowStart, windowEnd time.Time) ([]models.CalendarEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM calendar_events
WHERE ((NOT is_recurring AND start_time <= $2 AND end_time >= $1) OR (is_recurring AND start_time <= $2))
ORDER BY start_time ASC`, calendarColumns)
	var events []models.CalendarEvent
	if err := r.db.SelectContext(ctx, &events, query, windowStart, windowEnd); err != nil {
		return nil, fmt.Errorf("list calendar events for reminder window: %w", err)
	}
	return events, nil
}

// List returns events matching the filter.
func (r *CalendarRepository) List(ctx context.Context, filter models.CalendarFilter) ([]models.CalendarEvent, error) {
	where := []string{"school_id = $1"}
	args := []interface{}{filter.SchoolID}
	if filter.WindowStart != nil {
		where = append(where, fmt.Sprintf("end_time >= $%d", len(args)+1))
		args = append(args, *filter.WindowStart)
	}
	if filter.WindowEnd != nil {
		where = append(where, fmt.Sprintf("start_time <= $%d", len(args)+1))
		args = append(args, *filter.WindowEnd)
	}
	if filter.CategoryID != "" {
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)+1))
		args = append(args, filter.CategoryID)
	}
	if filter.SourceType != nil {
		where = append(where, fmt.Sprintf("source_type = $%d", len(args)+1))
		args = append(args, *filter.SourceType)
	}

	query := fmt.Sprintf(`SELECT %s FROM calendar_events WHERE %s ORDER BY start_time ASC`, calendarColumns, strings.Join(where, " AND "))
	var events []models.CalendarEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	return events, nil
}

// GetByID fetches a calendar event.
func (r *CalendarRepository) GetByID(ctx context.Context, id string) (*models.CalendarEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM calendar_events WHERE id = $1`, calendarColumns)
	var event models.CalendarEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// FindBySource locates the mirrored event for a domain record.
func (r *CalendarRepository) FindBySource(ctx context.Context, sourceType models.SourceType, sourceID string) (*models.CalendarEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM calendar_events WHERE source_type = $1 AND source_id = $2 ORDER BY created_at ASC LIMIT 1`, calendarColumns)
	var event models.CalendarEvent
	if err := r.db.GetContext(ctx, &event, query, sourceType, sourceID); err != nil {
		return nil, err
	}
	return &event, nil
}

// Create inserts a calendar event.
func (r *CalendarRepository) Create(ctx context.Context, event *models.CalendarEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	query := `INSERT INTO calendar_events (id, school_id, category_id, title, description, location, start_time, end_time, all_day, is_recurring, recurrence_rule, exception_dates, visible_to_roles, visible_to_classes, visible_to_sections, source_type, source_id, created_by, created_at, updated_at)
VALUES (:id, :school_id, :category_id, :title, :description, :location, :start_time, :end_time, :all_day, :is_recurring, :recurrence_rule, :exception_dates, :visible_to_roles, :visible_to_classes, :visible_to_sections, :source_type, :source_id, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create calendar event: %w", err)
	}
	return nil
}

// Update modifies an event.
func (r *CalendarRepository) Update(ctx context.Context, event *models.CalendarEvent) error {
	event.UpdatedAt = time.Now().UTC()
	query := `UPDATE calendar_events SET category_id = :category_id, title = :title, description = :description, location = :location,
start_time = :start_time, end_time = :end_time, all_day = :all_day, is_recurring = :is_recurring, recurrence_rule = :recurrence_rule,
exception_dates = :exception_dates, visible_to_roles = :visible_to_roles, visible_to_classes = :visible_to_classes,
visible_to_sections = :visible_to_sections, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("update calendar event: %w", err)
	}
	return nil
}

// Delete removes an event.
func (r *CalendarRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}

// DeleteBySource removes every mirrored event for a source record and
// reports how many rows were affected. Historical duplicates produce more
// than one match.
func (r *CalendarRepository) DeleteBySource(ctx context.Context, sourceType models.SourceType, sourceID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE source_type = $1 AND source_id = $2", sourceType, sourceID)
	if err != nil {
		return 0, fmt.Errorf("delete calendar events by source: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// ListCategories returns all categories of a school.
func (r *CalendarRepository) ListCategories(ctx context.Context, schoolID string) ([]models.CalendarCategory, error) {
	const query = `SELECT id, school_id, name, color, is_system, created_at, updated_at FROM calendar_categories WHERE school_id = $1 ORDER BY name ASC`
	var categories []models.CalendarCategory
	if err := r.db.SelectContext(ctx, &categories, query, schoolID); err != nil {
		return nil, fmt.Errorf("list calendar categories: %w", err)
	}
	return categories, nil
}

// FindCategoryByName looks up a category by its school-scoped name.
func (r *CalendarRepository) FindCategoryByName(ctx context.Context, schoolID, name string) (*models.CalendarCategory, error) {
	const query = `SELECT id, school_id, name, color, is_system, created_at, updated_at FROM calendar_categories WHERE school_id = $1 AND name = $2 LIMIT 1`
	var category models.CalendarCategory
	if err := r.db.GetContext(ctx, &category, query, schoolID, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find calendar category: %w", err)
	}
	return &category, nil
}

// CreateCategory inserts a category.
func (r *CalendarRepository) CreateCategory(ctx context.Context, category *models.CalendarCategory) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if category.CreatedAt.IsZero() {
		category.CreatedAt = now
	}
	category.UpdatedAt = now
	const query = `INSERT INTO calendar_categories (id, school_id, name, color, is_system, created_at, updated_at)
VALUES (:id, :school_id, :name, :color, :is_system, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		return fmt.Errorf("create calendar category: %w", err)
	}
	return nil
}

// DeleteCategory removes a non-system category.
func (r *CalendarRepository) DeleteCategory(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM calendar_categories WHERE id = $1 AND is_system = FALSE", id); err != nil {
		return fmt.Errorf("delete calendar category: %w", err)
	}
	return nil
}
