package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive      EnrollmentStatus = "ACTIVE"
	EnrollmentStatusTransferred EnrollmentStatus = "TRANSFERRED"
	EnrollmentStatusLeft        EnrollmentStatus = "LEFT"
)

// Enrollment captures a student's registration to a class, optionally pinned
// to a section, for a school year.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	ClassID    string           `db:"class_id" json:"class_id"`
	SectionID  *string          `db:"section_id" json:"section_id,omitempty"`
	SchoolYear string           `db:"school_year" json:"school_year"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	JoinedAt   time.Time        `db:"joined_at" json:"joined_at"`
	LeftAt     *time.Time       `db:"left_at" json:"left_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and class info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string  `db:"student_name" json:"student_name"`
	StudentNIS  string  `db:"student_nis" json:"student_nis"`
	ClassName   string  `db:"class_name" json:"class_name"`
	SectionName *string `db:"section_name" json:"section_name,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID  string
	ClassID    string
	SectionID  string
	SchoolYear string
	Status     EnrollmentStatus
	Page       int
	PageSize   int
}
