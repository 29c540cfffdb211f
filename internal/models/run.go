package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RunStatus captures the lifecycle of a load run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "QUEUED"
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
)

// RunParams are the request-scoped overrides applied to the base configuration.
type RunParams struct {
	DataFile       string `json:"data_file,omitempty"`
	StudentLimit   int    `json:"student_limit,omitempty"`
	MaxConcurrency int    `json:"max_concurrency,omitempty"`
	MinCourses     int    `json:"min_courses,omitempty"`
	MaxCourses     int    `json:"max_courses,omitempty"`
	Seed           uint64 `json:"seed,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
	LedgerBackend  string `json:"ledger_backend,omitempty"`
	Fast           bool   `json:"fast,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p RunParams) Value() (driver.Value, error) {
	return jsonValue(p, "run params")
}

// Scan unmarshals JSON payloads into the params struct.
func (p *RunParams) Scan(value interface{}) error {
	*p = RunParams{}
	return jsonScan(value, p, "run params")
}

// Value marshals metrics to JSON for persistence.
func (m RunMetrics) Value() (driver.Value, error) {
	return jsonValue(m, "run metrics")
}

// Scan unmarshals stored metrics.
func (m *RunMetrics) Scan(value interface{}) error {
	*m = RunMetrics{}
	return jsonScan(value, m, "run metrics")
}

// Value marshals the SLO report to JSON for persistence.
func (r SLOReport) Value() (driver.Value, error) {
	return jsonValue(r, "slo report")
}

// Scan unmarshals a stored SLO report.
func (r *SLOReport) Scan(value interface{}) error {
	*r = SLOReport{}
	return jsonScan(value, r, "slo report")
}

// ArtifactSet maps artifact names (e.g. "metrics.json") to storage paths.
type ArtifactSet map[string]string

// Value marshals the artifact set to JSON for persistence.
func (a ArtifactSet) Value() (driver.Value, error) {
	if a == nil {
		a = ArtifactSet{}
	}
	return jsonValue(map[string]string(a), "artifacts")
}

// Scan unmarshals a stored artifact set.
func (a *ArtifactSet) Scan(value interface{}) error {
	*a = ArtifactSet{}
	return jsonScan(value, a, "artifacts")
}

// Run is the persisted record of one load run.
type Run struct {
	ID           string      `db:"id" json:"id"`
	Status       RunStatus   `db:"status" json:"status"`
	Params       RunParams   `db:"params" json:"params"`
	Metrics      *RunMetrics `db:"metrics" json:"metrics,omitempty"`
	SLO          *SLOReport  `db:"slo" json:"slo,omitempty"`
	Artifacts    ArtifactSet `db:"artifacts" json:"artifacts,omitempty"`
	ErrorMessage *string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	StartedAt    *time.Time  `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time  `db:"finished_at" json:"finished_at,omitempty"`
}

// RunReport is everything a completed run produced.
type RunReport struct {
	RunID           string           `json:"run_id"`
	Params          RunParams        `json:"params"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
	Cancelled       bool             `json:"cancelled"`
	HotCourses      int              `json:"hot_courses"`
	Metrics         RunMetrics       `json:"metrics"`
	SLO             SLOReport        `json:"slo"`
	Faults          []SessionFault   `json:"faults,omitempty"`
	Timeline        []TimelineSample `json:"timeline,omitempty"`
	ResourcesBefore ResourceSnapshot `json:"resources_before"`
	ResourcesAfter  ResourceSnapshot `json:"resources_after"`
	Artifacts       ArtifactSet      `json:"artifacts,omitempty"`
	Warnings        []string         `json:"warnings,omitempty"`
	Attempts        []Attempt        `json:"-"`
}

func jsonValue(v interface{}, label string) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", label, err)
	}
	return data, nil
}

func jsonScan(value interface{}, dst interface{}, label string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, label)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", label, err)
	}
	return nil
}
