package model

// CheckinGap is one event whose instructor registrations were not all
// checked in.
type CheckinGap struct {
	EventID            int64    `json:"event_id"`
	EventName          string   `json:"event_name"`
	StartDateDisplay   string   `json:"start_date"`
	MissingInstructors []string `json:"missing_instructors"`
}

// CheckinReport is the payload of the missing-instructor-checkins report.
// StartDate echoes the requested window start for display.
type CheckinReport struct {
	Events    []CheckinGap `json:"events"`
	StartDate string       `json:"start_date"`
}

// SlackOrphan is an active Slack user with no matching member email.
type SlackOrphan struct {
	Username string `json:"username"`
	FullName string `json:"fullname"`
	Email    string `json:"email"`
}

// OrphanReport is the payload of the Slack roster reconciliation report.
type OrphanReport struct {
	Orphans         []SlackOrphan `json:"orphans"`
	ValidEmailCount int           `json:"valid_email_count"`
}

// EventCapacity summarizes registrations against the limit for one event.
type EventCapacity struct {
	EventID           int64  `json:"event_id"`
	Name              string `json:"name"`
	Registrations     int    `json:"registrations"`
	RegistrationLimit int    `json:"registration_limit"`
}

// MakerschoolReport is the payload of the makerschool registrations report.
type MakerschoolReport struct {
	Events                 []EventCapacity `json:"events"`
	TotalRegistrations     int             `json:"total_registrations"`
	TotalRegistrationLimit int             `json:"total_registration_limit"`
}
