package models

import "time"

// Parent represents a guardian account linked to one or more students.
type Parent struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	Address   string    `db:"address" json:"address"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ParentStudent links a parent to a student record.
type ParentStudent struct {
	ParentID  string    `db:"parent_id" json:"parent_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Relation  string    `db:"relation" json:"relation"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ParentFilter narrows parent listings.
type ParentFilter struct {
	SchoolID string
	Search   string
	Page     int
	PageSize int
}
