package models

import "time"

// RunCompletedEvent is published once per finished run.
type RunCompletedEvent struct {
	RunID           string    `json:"run_id"`
	Status          RunStatus `json:"status"`
	Cancelled       bool      `json:"cancelled"`
	TotalAttempts   int       `json:"total_attempts"`
	Enrolled        int       `json:"enrolled"`
	DurationSeconds float64   `json:"duration_seconds"`
	Grade           string    `json:"grade"`
	PassRate        float64   `json:"pass_rate_percent"`
	FinishedAt      time.Time `json:"finished_at"`
}

// RegistrationEnrolledEvent is published per Enrolled attempt when enabled.
type RegistrationEnrolledEvent struct {
	RunID          string    `json:"run_id"`
	RegistrationID string    `json:"registration_id"`
	StudentID      string    `json:"student_id"`
	CourseID       string    `json:"course_id"`
	CourseCode     string    `json:"course_code"`
	EnrolledAt     time.Time `json:"enrolled_at"`
}
