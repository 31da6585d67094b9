package models

import (
	"time"

	"github.com/lib/pq"
)

// Assignment is graded homework with a due date. Mirrored onto the calendar
// as a point-in-time entry at DueAt.
type Assignment struct {
	ID          string         `db:"id" json:"id"`
	SchoolID    string         `db:"school_id" json:"school_id"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	SubjectID   string         `db:"subject_id" json:"subject_id"`
	ClassID     string         `db:"class_id" json:"class_id"`
	SectionIDs  pq.StringArray `db:"section_ids" json:"section_ids"`
	DueAt       time.Time      `db:"due_at" json:"due_at"`
	CreatedBy   string         `db:"created_by" json:"created_by"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Source builds the snapshot handed to the calendar sync service.
func (a *Assignment) Source() CalendarSource {
	classID := a.ClassID
	subjectID := a.SubjectID
	return CalendarSource{
		Type:        SourceTypeAssignment,
		ID:          a.ID,
		SchoolID:    a.SchoolID,
		Title:       a.Title,
		Description: a.Description,
		StartTime:   a.DueAt,
		EndTime:     a.DueAt,
		ClassID:     &classID,
		SectionIDs:  a.SectionIDs,
		SubjectID:   &subjectID,
		CreatedBy:   a.CreatedBy,
	}
}
