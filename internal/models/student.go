package models

// Student is a registrant. Only the identifier affects registration behaviour.
type Student struct {
	ID        string `json:"student_id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}
