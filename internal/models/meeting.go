package models

import (
	"time"

	"github.com/lib/pq"
)

// Meeting is a staff or class meeting. ClassID is nil for school-wide staff
// meetings.
type Meeting struct {
	ID          string         `db:"id" json:"id"`
	SchoolID    string         `db:"school_id" json:"school_id"`
	Title       string         `db:"title" json:"title"`
	Agenda      string         `db:"agenda" json:"agenda"`
	ClassID     *string        `db:"class_id" json:"class_id,omitempty"`
	SectionIDs  pq.StringArray `db:"section_ids" json:"section_ids"`
	StartsAt    time.Time      `db:"starts_at" json:"starts_at"`
	EndsAt      time.Time      `db:"ends_at" json:"ends_at"`
	OrganizerID string         `db:"organizer_id" json:"organizer_id"`
	CreatedBy   string         `db:"created_by" json:"created_by"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Source builds the snapshot handed to the calendar sync service.
func (m *Meeting) Source() CalendarSource {
	return CalendarSource{
		Type:        SourceTypeMeeting,
		ID:          m.ID,
		SchoolID:    m.SchoolID,
		Title:       m.Title,
		Description: m.Agenda,
		StartTime:   m.StartsAt,
		EndTime:     m.EndsAt,
		ClassID:     m.ClassID,
		SectionIDs:  m.SectionIDs,
		CreatedBy:   m.CreatedBy,
	}
}
