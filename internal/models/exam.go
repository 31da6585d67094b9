package models

import (
	"time"

	"github.com/lib/pq"
)

// Exam is a scheduled examination. Create/update/delete operations are
// mirrored onto the calendar by the sync service.
type Exam struct {
	ID          string         `db:"id" json:"id"`
	SchoolID    string         `db:"school_id" json:"school_id"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	SubjectID   string         `db:"subject_id" json:"subject_id"`
	ClassID     string         `db:"class_id" json:"class_id"`
	SectionIDs  pq.StringArray `db:"section_ids" json:"section_ids"`
	StartsAt    time.Time      `db:"starts_at" json:"starts_at"`
	EndsAt      time.Time      `db:"ends_at" json:"ends_at"`
	CreatedBy   string         `db:"created_by" json:"created_by"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Source builds the snapshot handed to the calendar sync service.
func (e *Exam) Source() CalendarSource {
	classID := e.ClassID
	subjectID := e.SubjectID
	return CalendarSource{
		Type:        SourceTypeExam,
		ID:          e.ID,
		SchoolID:    e.SchoolID,
		Title:       e.Title,
		Description: e.Description,
		StartTime:   e.StartsAt,
		EndTime:     e.EndsAt,
		ClassID:     &classID,
		SectionIDs:  e.SectionIDs,
		SubjectID:   &subjectID,
		CreatedBy:   e.CreatedBy,
	}
}
