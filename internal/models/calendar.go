package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// SourceType identifies the domain record a calendar event mirrors.
type SourceType string

const (
	SourceTypeExam       SourceType = "EXAM"
	SourceTypeAssignment SourceType = "ASSIGNMENT"
	SourceTypeMeeting    SourceType = "MEETING"
)

// TimeList stores a JSONB array of RFC3339 timestamps. Used for the
// exception dates of a recurring event.
type TimeList []time.Time

// Value implements driver.Valuer.
func (t TimeList) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	raw := make([]string, len(t))
	for i, ts := range t {
		raw[i] = ts.Format(time.RFC3339)
	}
	return json.Marshal(raw)
}

// Scan implements sql.Scanner.
func (t *TimeList) Scan(src interface{}) error {
	if src == nil {
		*t = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported exception_dates type %T", src)
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("decode exception_dates: %w", err)
	}
	out := make(TimeList, 0, len(values))
	for _, v := range values {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("parse exception date %q: %w", v, err)
		}
		out = append(out, ts)
	}
	*t = out
	return nil
}

// Contains reports whether the list holds the exact timestamp.
func (t TimeList) Contains(ts time.Time) bool {
	for _, v := range t {
		if v.Equal(ts) {
			return true
		}
	}
	return false
}

// CalendarEvent represents a school calendar entry. A recurring event carries
// an RFC5545 RRULE anchored at StartTime; exception dates suppress individual
// occurrences. Empty class and section lists mean the event is school-wide
// for the allowed roles. SourceType/SourceID back-reference the domain record
// the event mirrors; the mirrored fields are self-sufficient, so the event
// stays renderable even when the source row is gone.
type CalendarEvent struct {
	ID                string         `db:"id" json:"id"`
	SchoolID          string         `db:"school_id" json:"school_id"`
	CategoryID        *string        `db:"category_id" json:"category_id,omitempty"`
	Title             string         `db:"title" json:"title"`
	Description       string         `db:"description" json:"description"`
	Location          *string        `db:"location" json:"location,omitempty"`
	StartTime         time.Time      `db:"start_time" json:"start_time"`
	EndTime           time.Time      `db:"end_time" json:"end_time"`
	AllDay            bool           `db:"all_day" json:"all_day"`
	IsRecurring       bool           `db:"is_recurring" json:"is_recurring"`
	RecurrenceRule    *string        `db:"recurrence_rule" json:"recurrence_rule,omitempty"`
	ExceptionDates    TimeList       `db:"exception_dates" json:"exception_dates,omitempty"`
	VisibleToRoles    pq.StringArray `db:"visible_to_roles" json:"visible_to_roles"`
	VisibleToClasses  pq.StringArray `db:"visible_to_classes" json:"visible_to_classes"`
	VisibleToSections pq.StringArray `db:"visible_to_sections" json:"visible_to_sections"`
	SourceType        *SourceType    `db:"source_type" json:"source_type,omitempty"`
	SourceID          *string        `db:"source_id" json:"source_id,omitempty"`
	CreatedBy         string         `db:"created_by" json:"created_by"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// Rule returns the recurrence rule string or empty when absent.
func (e *CalendarEvent) Rule() string {
	if e.RecurrenceRule == nil {
		return ""
	}
	return *e.RecurrenceRule
}

// Duration is the span carried onto every expanded occurrence.
func (e *CalendarEvent) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// AllowsRole reports whether the role is listed in VisibleToRoles.
func (e *CalendarEvent) AllowsRole(role UserRole) bool {
	for _, r := range e.VisibleToRoles {
		if UserRole(r) == role {
			return true
		}
	}
	return false
}

// SchoolWide reports whether the event carries no class/section restriction.
func (e *CalendarEvent) SchoolWide() bool {
	return len(e.VisibleToClasses) == 0 && len(e.VisibleToSections) == 0
}

// Overlaps reports whether the event's own span intersects the window,
// inclusive on both bounds.
func (e *CalendarEvent) Overlaps(windowStart, windowEnd time.Time) bool {
	return !e.StartTime.After(windowEnd) && !e.EndTime.Before(windowStart)
}

// OwnOccurrence is the single concrete instance of a non-recurring event.
func (e *CalendarEvent) OwnOccurrence() Occurrence {
	return Occurrence{EventID: e.ID, StartTime: e.StartTime, EndTime: e.EndTime}
}

// Occurrence is one concrete instance of an event within a window. Derived,
// never persisted.
type Occurrence struct {
	EventID   string    `json:"event_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// CalendarCategory groups events; the system rows ("Exam", "Assignment",
// "Meeting", "General") are looked up by source sync.
type CalendarCategory struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	Name      string    `db:"name" json:"name"`
	Color     string    `db:"color" json:"color"`
	IsSystem  bool      `db:"is_system" json:"is_system"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CalendarFilter narrows down events for window listings.
type CalendarFilter struct {
	SchoolID    string
	WindowStart *time.Time
	WindowEnd   *time.Time
	CategoryID  string
	SourceType  *SourceType
}

// CalendarSource is the snapshot a domain service hands to the sync service.
// Visibility fields on the mirrored event are derived from it once, at
// mirror-creation time.
type CalendarSource struct {
	Type        SourceType
	ID          string
	SchoolID    string
	Title       string
	Description string
	Location    *string
	StartTime   time.Time
	EndTime     time.Time
	ClassID     *string
	SectionIDs  []string
	SubjectID   *string
	CreatedBy   string
}

// CategoryName maps the source type onto the system category row name.
func (s CalendarSource) CategoryName() string {
	switch s.Type {
	case SourceTypeExam:
		return "Exam"
	case SourceTypeAssignment:
		return "Assignment"
	case SourceTypeMeeting:
		return "Meeting"
	default:
		return "General"
	}
}
