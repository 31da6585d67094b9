package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
	RoleStudent    UserRole = "STUDENT"
	RoleParent     UserRole = "PARENT"
)

// KnownRoles enumerates the closed role set.
var KnownRoles = []UserRole{RoleSuperAdmin, RoleAdmin, RoleTeacher, RoleStudent, RoleParent}

// IsValidRole reports whether the value belongs to the closed role set.
func IsValidRole(role UserRole) bool {
	for _, r := range KnownRoles {
		if r == role {
			return true
		}
	}
	return false
}

// User represents an application user stored in the users table. SchoolID is
// nil only for SUPERADMIN accounts; ProfileID points at the teacher, student
// or parent record backing the account.
type User struct {
	ID           string     `db:"id" json:"id"`
	SchoolID     *string    `db:"school_id" json:"school_id,omitempty"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	ProfileID    *string    `db:"profile_id" json:"profile_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Viewer builds the visibility evaluation context for the user, mapping the
// profile reference onto the role-specific field.
func (u *User) Viewer() UserContext {
	viewer := UserContext{UserID: u.ID, Role: u.Role}
	if u.SchoolID != nil {
		viewer.SchoolID = *u.SchoolID
	}
	if u.ProfileID != nil {
		switch u.Role {
		case RoleTeacher:
			viewer.TeacherID = *u.ProfileID
		case RoleStudent:
			viewer.StudentID = *u.ProfileID
		case RoleParent:
			viewer.ParentID = *u.ProfileID
		}
	}
	return viewer
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	SchoolID  string
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// UserContext is the viewer identity evaluated by the visibility filter.
// The profile fields are populated according to the role; all of them are
// empty for admin accounts.
type UserContext struct {
	UserID    string   `json:"user_id"`
	SchoolID  string   `json:"school_id"`
	Role      UserRole `json:"role"`
	TeacherID string   `json:"teacher_id,omitempty"`
	StudentID string   `json:"student_id,omitempty"`
	ParentID  string   `json:"parent_id,omitempty"`
}
