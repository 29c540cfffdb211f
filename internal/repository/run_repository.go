package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
)

const runColumns = `id, status, params, metrics, slo, artifacts, error_message, created_at, started_at, finished_at`

// RunRepository persists load run metadata.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs the repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run row with generated defaults.
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Artifacts == nil {
		run.Artifacts = models.ArtifactSet{}
	}
	const query = `INSERT INTO load_runs (` + runColumns + `)
VALUES (:id, :status, :params, :metrics, :slo, :artifacts, :error_message, :created_at, :started_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetByID returns a run by identifier.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	const query = `SELECT ` + runColumns + ` FROM load_runs WHERE id = $1`
	var run models.Run
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// List returns the newest runs first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT ` + runColumns + ` FROM load_runs ORDER BY created_at DESC LIMIT $1`
	var runs []models.Run
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// UpdateRunParams defines the mutable fields of a run.
type UpdateRunParams struct {
	Status       *models.RunStatus
	Params       *models.RunParams
	Metrics      *models.RunMetrics
	SLO          *models.SLOReport
	Artifacts    models.ArtifactSet
	ErrorMessage *string
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Update persists the provided changes for a run row.
func (r *RunRepository) Update(ctx context.Context, id string, params UpdateRunParams) error {
	set := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)
	argPos := 1

	add := func(column string, value interface{}) {
		set = append(set, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Params != nil {
		add("params", *params.Params)
	}
	if params.Metrics != nil {
		add("metrics", *params.Metrics)
	}
	if params.SLO != nil {
		add("slo", *params.SLO)
	}
	if params.Artifacts != nil {
		add("artifacts", params.Artifacts)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.StartedAt != nil {
		add("started_at", *params.StartedAt)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE load_runs SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// Apply mutates an in-memory run with the same semantics as Update.
func (p UpdateRunParams) Apply(run *models.Run) {
	if p.Status != nil {
		run.Status = *p.Status
	}
	if p.Params != nil {
		run.Params = *p.Params
	}
	if p.Metrics != nil {
		metrics := *p.Metrics
		run.Metrics = &metrics
	}
	if p.SLO != nil {
		slo := *p.SLO
		run.SLO = &slo
	}
	if p.Artifacts != nil {
		run.Artifacts = p.Artifacts
	}
	if p.ErrorMessage != nil {
		msg := *p.ErrorMessage
		run.ErrorMessage = &msg
	}
	if p.StartedAt != nil {
		started := *p.StartedAt
		run.StartedAt = &started
	}
	if p.FinishedAt != nil {
		finished := *p.FinishedAt
		run.FinishedAt = &finished
	}
}
