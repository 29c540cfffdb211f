package models

import (
	"encoding/json"
	"time"
)

// ReserveResult is the outcome of a seat ledger reservation.
type ReserveResult int

const (
	ReserveFull ReserveResult = iota
	ReserveReserved
)

func (r ReserveResult) String() string {
	if r == ReserveReserved {
		return "Reserved"
	}
	return "Full"
}

// Decision is the terminal classification of one registration attempt.
type Decision string

const (
	DecisionEnrolled   Decision = "Enrolled"
	DecisionWaitlisted Decision = "Waitlisted"
	DecisionFailed     Decision = "Failed"
	DecisionError4xx   Decision = "Error_4xx"
	DecisionError5xx   Decision = "Error_5xx"
)

// Decisions lists every decision in reporting order.
var Decisions = []Decision{DecisionEnrolled, DecisionWaitlisted, DecisionFailed, DecisionError4xx, DecisionError5xx}

// IsError reports whether the decision is a simulated transport error.
func (d Decision) IsError() bool {
	return d == DecisionError4xx || d == DecisionError5xx
}

// PhaseTimings records the time spent in each phase of an attempt.
type PhaseTimings struct {
	Pacing       time.Duration
	CacheLookup  time.Duration
	Reservation  time.Duration
	RetryBackoff time.Duration
	Persistence  time.Duration
}

// Sum adds up every phase.
func (p PhaseTimings) Sum() time.Duration {
	return p.Pacing + p.CacheLookup + p.Reservation + p.RetryBackoff + p.Persistence
}

// Attempt is the immutable record of one registration attempt.
type Attempt struct {
	ID               string
	StudentID        string
	CourseID         string
	CourseCode       string
	Decision         Decision
	StartedAt        time.Time
	Total            time.Duration
	Phases           PhaseTimings
	CacheHit         bool
	RetryCount       int
	RetryResolved    bool
	Hot              bool
	WaitlistPosition int
	Fault            string
}

type attemptJSON struct {
	ID                string   `json:"registration_id"`
	StudentID         string   `json:"student_id"`
	CourseID          string   `json:"course_id"`
	CourseCode        string   `json:"course_code"`
	Timestamp         string   `json:"registration_timestamp"`
	Status            Decision `json:"status"`
	ResponseTimeMs    float64  `json:"response_time_ms"`
	CacheHit          bool     `json:"cache_hit"`
	CacheLatencyMs    float64  `json:"cache_latency_ms"`
	AtomicOpLatencyMs float64  `json:"atomic_op_latency_ms"`
	RetryBackoffMs    float64  `json:"retry_backoff_ms"`
	DBTxnLatencyMs    float64  `json:"db_txn_latency_ms"`
	RetryCount        int      `json:"retry_count"`
	RetryResolved     bool     `json:"retry_resolved"`
	IsHotSection      bool     `json:"is_hot_section"`
	WaitlistPosition  int      `json:"waitlist_position,omitempty"`
	Fault             string   `json:"fault,omitempty"`
}

// MarshalJSON renders durations as fractional milliseconds.
func (a Attempt) MarshalJSON() ([]byte, error) {
	return json.Marshal(attemptJSON{
		ID:                a.ID,
		StudentID:         a.StudentID,
		CourseID:          a.CourseID,
		CourseCode:        a.CourseCode,
		Timestamp:         a.StartedAt.UTC().Format(time.RFC3339Nano),
		Status:            a.Decision,
		ResponseTimeMs:    Millis(a.Total),
		CacheHit:          a.CacheHit,
		CacheLatencyMs:    Millis(a.Phases.CacheLookup),
		AtomicOpLatencyMs: Millis(a.Phases.Reservation),
		RetryBackoffMs:    Millis(a.Phases.RetryBackoff),
		DBTxnLatencyMs:    Millis(a.Phases.Persistence),
		RetryCount:        a.RetryCount,
		RetryResolved:     a.RetryResolved,
		IsHotSection:      a.Hot,
		WaitlistPosition:  a.WaitlistPosition,
		Fault:             a.Fault,
	})
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// SessionFault records a student session that ended unexpectedly.
type SessionFault struct {
	StudentID string `json:"student_id"`
	Error     string `json:"error"`
	Stack     string `json:"-"`
}
