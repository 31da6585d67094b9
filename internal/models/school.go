package models

import "time"

// School is the tenant unit. IsOnboarded and OnboardingStep are mirrored
// scalars kept alongside the per-step rows; OnboardingStep also feeds the
// one-time backfill for schools that predate detailed tracking.
type School struct {
	ID             string     `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Slug           string     `db:"slug" json:"slug"`
	Timezone       string     `db:"timezone" json:"timezone"`
	Address        string     `db:"address" json:"address"`
	Active         bool       `db:"active" json:"active"`
	IsOnboarded    bool       `db:"is_onboarded" json:"is_onboarded"`
	OnboardingStep int        `db:"onboarding_step" json:"onboarding_step"`
	OnboardedAt    *time.Time `db:"onboarded_at" json:"onboarded_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// SchoolFilter narrows school listings.
type SchoolFilter struct {
	Active    *bool
	Onboarded *bool
	Search    string
	Page      int
	PageSize  int
}

// OnboardingStatus is the per-step state machine state.
type OnboardingStatus string

const (
	OnboardingNotStarted OnboardingStatus = "NOT_STARTED"
	OnboardingInProgress OnboardingStatus = "IN_PROGRESS"
	OnboardingCompleted  OnboardingStatus = "COMPLETED"
	OnboardingFailed     OnboardingStatus = "FAILED"
	OnboardingSkipped    OnboardingStatus = "SKIPPED"
)

// Terminal reports whether the status permits no further transition short of
// a whole-school reset.
func (s OnboardingStatus) Terminal() bool {
	switch s {
	case OnboardingCompleted, OnboardingFailed, OnboardingSkipped:
		return true
	}
	return false
}

// Finished reports whether the step counts toward completion percentage.
func (s OnboardingStatus) Finished() bool {
	return s == OnboardingCompleted || s == OnboardingSkipped
}

// OnboardingStep is one row of a school's setup checklist.
type OnboardingStep struct {
	ID           string           `db:"id" json:"id"`
	SchoolID     string           `db:"school_id" json:"school_id"`
	StepNumber   int              `db:"step_number" json:"step_number"`
	StepKey      string           `db:"step_key" json:"step_key"`
	Title        string           `db:"title" json:"title"`
	Required     bool             `db:"required" json:"required"`
	Status       OnboardingStatus `db:"status" json:"status"`
	Attempts     int              `db:"attempts" json:"attempts"`
	StartedAt    *time.Time       `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CompletedBy  *string          `db:"completed_by" json:"completed_by,omitempty"`
	ErrorMessage *string          `db:"error_message" json:"error_message,omitempty"`
	Metadata     []byte           `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// OnboardingStepDefinition describes one entry of the fixed checklist.
type OnboardingStepDefinition struct {
	Number   int
	Key      string
	Title    string
	Required bool
}

// OnboardingStepDefinitions is the fixed ordered setup checklist every school
// goes through.
var OnboardingStepDefinitions = []OnboardingStepDefinition{
	{Number: 1, Key: "SCHOOL_PROFILE", Title: "School profile", Required: true},
	{Number: 2, Key: "ACADEMIC_STRUCTURE", Title: "Classes and sections", Required: true},
	{Number: 3, Key: "SUBJECTS", Title: "Subject catalogue", Required: true},
	{Number: 4, Key: "STAFF", Title: "Teaching staff", Required: true},
	{Number: 5, Key: "STUDENTS", Title: "Student roster", Required: true},
	{Number: 6, Key: "PARENTS", Title: "Parent accounts", Required: false},
	{Number: 7, Key: "CALENDAR", Title: "School calendar", Required: false},
	{Number: 8, Key: "NOTIFICATIONS", Title: "Notification channels", Required: false},
}
