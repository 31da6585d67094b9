package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack-io/campus-api/internal/models"
)

// MeetingRepository provides data access for meetings.
type MeetingRepository struct {
	db *sqlx.DB
}

// NewMeetingRepository creates a meeting repository.
func NewMeetingRepository(db *sqlx.DB) *MeetingRepository {
	return &MeetingRepository{db: db}
}

const meetingColumns = `id, school_id, title, agenda, class_id, section_ids, starts_at, ends_at, organizer_id, created_by, created_at, updated_at`

// List returns meetings of a school ordered by start time.
func (r *MeetingRepository) List(ctx context.Context, schoolID string) ([]models.Meeting, error) {
	query := fmt.Sprintf(`SELECT %s FROM meetings WHERE school_id = $1 ORDER BY starts_at DESC`, meetingColumns)
	var meetings []models.Meeting
	if err := r.db.SelectContext(ctx, &meetings, query, schoolID); err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	return meetings, nil
}

// FindByID returns a meeting by identifier.
func (r *MeetingRepository) FindByID(ctx context.Context, id string) (*models.Meeting, error) {
	query := fmt.Sprintf(`SELECT %s FROM meetings WHERE id = $1 LIMIT 1`, meetingColumns)
	var meeting models.Meeting
	if err := r.db.GetContext(ctx, &meeting, query, id); err != nil {
		return nil, err
	}
	return &meeting, nil
}

// Create inserts a meeting.
func (r *MeetingRepository) Create(ctx context.Context, meeting *models.Meeting) error {
	if meeting.ID == "" {
		meeting.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if meeting.CreatedAt.IsZero() {
		meeting.CreatedAt = now
	}
	meeting.UpdatedAt = now
	const query = `INSERT INTO meetings (id, school_id, title, agenda, class_id, section_ids, starts_at, ends_at, organizer_id, created_by, created_at, updated_at)
VALUES (:id, :school_id, :title, :agenda, :class_id, :section_ids, :starts_at, :ends_at, :organizer_id, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, meeting); err != nil {
		return fmt.Errorf("create meeting: %w", err)
	}
	return nil
}

// Update modifies a meeting.
func (r *MeetingRepository) Update(ctx context.Context, meeting *models.Meeting) error {
	meeting.UpdatedAt = time.Now().UTC()
	const query = `UPDATE meetings SET title = :title, agenda = :agenda, class_id = :class_id, section_ids = :section_ids,
starts_at = :starts_at, ends_at = :ends_at, organizer_id = :organizer_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, meeting); err != nil {
		return fmt.Errorf("update meeting: %w", err)
	}
	return nil
}

// Delete removes a meeting.
func (r *MeetingRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM meetings WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	return nil
}
