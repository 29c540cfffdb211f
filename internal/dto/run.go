package dto

import (
	"time"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
)

// CreateRunRequest captures POST /runs. Zero values keep the server defaults.
type CreateRunRequest struct {
	StudentLimit   int    `json:"student_limit" validate:"omitempty,min=1"`
	MaxConcurrency int    `json:"max_concurrency" validate:"omitempty,min=1,max=20000"`
	MinCourses     int    `json:"min_courses" validate:"omitempty,min=1,max=20"`
	MaxCourses     int    `json:"max_courses" validate:"omitempty,min=1,max=20"`
	Seed           uint64 `json:"seed"`
	Timeout        string `json:"timeout" validate:"omitempty"`
	LedgerBackend  string `json:"ledger_backend" validate:"omitempty,oneof=memory redis"`
	Fast           bool   `json:"fast"`
}

// Params converts the request into run parameters.
func (r CreateRunRequest) Params() models.RunParams {
	return models.RunParams{
		StudentLimit:   r.StudentLimit,
		MaxConcurrency: r.MaxConcurrency,
		MinCourses:     r.MinCourses,
		MaxCourses:     r.MaxCourses,
		Seed:           r.Seed,
		Timeout:        r.Timeout,
		LedgerBackend:  r.LedgerBackend,
		Fast:           r.Fast,
	}
}

// RunAccepted is returned after a run is queued.
type RunAccepted struct {
	ID     string           `json:"id"`
	Status models.RunStatus `json:"status"`
}

// RunSummary is the list view of a run.
type RunSummary struct {
	ID            string           `json:"id"`
	Status        models.RunStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
	TotalAttempts int              `json:"total_attempts"`
	Grade         string           `json:"grade,omitempty"`
	Error         *string          `json:"error,omitempty"`
}

// SummarizeRun builds the list view for a run record.
func SummarizeRun(run models.Run) RunSummary {
	summary := RunSummary{
		ID:         run.ID,
		Status:     run.Status,
		CreatedAt:  run.CreatedAt,
		FinishedAt: run.FinishedAt,
		Error:      run.ErrorMessage,
	}
	if run.Metrics != nil {
		summary.TotalAttempts = run.Metrics.TotalAttempts
	}
	if run.SLO != nil {
		summary.Grade = run.SLO.Grade
	}
	return summary
}
