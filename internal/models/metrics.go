package models

import "time"

// LatencySummary captures percentile latencies in milliseconds.
type LatencySummary struct {
	Samples int     `json:"samples"`
	MeanMs  float64 `json:"mean_ms"`
	P50Ms   float64 `json:"p50_ms"`
	P95Ms   float64 `json:"p95_ms"`
	P99Ms   float64 `json:"p99_ms"`
}

// ThroughputMetrics are rates over the run's wall-clock duration.
type ThroughputMetrics struct {
	AttemptsPerSec      float64 `json:"total_attempts_per_sec"`
	EnrolledPerSec      float64 `json:"successful_registrations_per_sec"`
	HotSectionOpsPerSec float64 `json:"hot_section_ops_per_sec"`
	WritesPerSec        float64 `json:"writes_per_sec"`
	CacheMissesPerSec   float64 `json:"cache_misses_per_sec"`
	PeakInFlight        int     `json:"peak_concurrent_sessions"`
}

// RetryMetrics summarise contention retries.
type RetryMetrics struct {
	TotalRetries        int     `json:"total_retries"`
	AttemptsWithRetries int     `json:"attempts_with_retries"`
	ResolvedAttempts    int     `json:"resolved_attempts"`
	RetryRatePercent    float64 `json:"retry_rate_percent"`
	RetrySuccessPercent float64 `json:"retry_success_percent"`
}

// CourseUtilization reports how much of a course's capacity was consumed.
type CourseUtilization struct {
	CourseID           string  `json:"course_id"`
	CourseCode         string  `json:"course_code"`
	Hot                bool    `json:"is_hot"`
	Capacity           int     `json:"capacity"`
	Enrolled           int     `json:"enrolled"`
	Waitlisted         int     `json:"waitlisted"`
	Failed             int     `json:"failed"`
	UtilizationPercent float64 `json:"utilization_percent"`
}

// RunMetrics is the terminal reduction over every attempt in a run.
type RunMetrics struct {
	DurationSeconds float64              `json:"duration_seconds"`
	TotalAttempts   int                  `json:"total_attempts"`
	Counts          map[Decision]int     `json:"counts"`
	RatesPercent    map[Decision]float64 `json:"rates_percent"`

	Throughput ThroughputMetrics `json:"throughput"`

	Latency            LatencySummary `json:"latency"`
	TailOver1sPercent  float64        `json:"tail_gt_1s_percent"`
	CacheLatency       LatencySummary `json:"cache_latency"`
	ReservationLatency LatencySummary `json:"reservation_latency"`
	PersistenceLatency LatencySummary `json:"persistence_latency"`

	Retries RetryMetrics `json:"retries"`

	CacheHits       int     `json:"cache_hits"`
	CacheMisses     int     `json:"cache_misses"`
	CacheHitPercent float64 `json:"cache_hit_percent"`

	Courses []CourseUtilization `json:"course_utilization"`

	StudentsProcessed      int     `json:"students_processed"`
	StudentsWithMinCourses int     `json:"students_with_min_courses"`
	MinCoursesTarget       int     `json:"min_courses_target"`
	AvgEnrolledPerStudent  float64 `json:"avg_enrolled_per_student"`
	SessionFaults          int     `json:"session_faults"`
}

// Count returns the number of attempts with the given decision.
func (m RunMetrics) Count(d Decision) int {
	return m.Counts[d]
}

// Rate returns the percentage of attempts with the given decision.
func (m RunMetrics) Rate(d Decision) float64 {
	return m.RatesPercent[d]
}

// TimelineSample is one observation of a running load test.
type TimelineSample struct {
	ElapsedSeconds    float64 `json:"elapsed_seconds"`
	InFlight          int64   `json:"in_flight_sessions"`
	AttemptsCompleted int64   `json:"attempts_completed"`
	StudentsCompleted int64   `json:"students_completed"`
}

// ResourceSnapshot captures host and runtime resource usage at one instant.
type ResourceSnapshot struct {
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	MemoryUsedMB      uint64  `json:"memory_used_mb"`
	HeapAllocMB       uint64  `json:"heap_alloc_mb"`
	Goroutines        int     `json:"goroutines"`
}

// LiveMetrics is the process-wide counter snapshot served by the API.
type LiveMetrics struct {
	AttemptsTotal     uint64            `json:"attempts_total"`
	AttemptsByOutcome map[string]uint64 `json:"attempts_by_outcome"`
	SessionsInFlight  int64             `json:"sessions_in_flight"`
	SessionsCompleted uint64            `json:"sessions_completed"`
	SessionFaults     uint64            `json:"session_faults"`
	RunsCompleted     uint64            `json:"runs_completed"`
	RequestsTotal     uint64            `json:"requests_total"`
	Goroutines        int               `json:"goroutines"`
	GeneratedAt       time.Time         `json:"generated_at"`
}
