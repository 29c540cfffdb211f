package service

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
)

func sampleAttempts() []models.Attempt {
	ms := time.Millisecond
	return []models.Attempt{
		{StudentID: "s1", CourseID: "c1", Decision: models.DecisionEnrolled, Total: 40 * ms, CacheHit: true, Hot: true,
			Phases: models.PhaseTimings{CacheLookup: 2 * ms, Reservation: 8 * ms, Persistence: 20 * ms}},
		{StudentID: "s1", CourseID: "c2", Decision: models.DecisionWaitlisted, Total: 60 * ms, CacheHit: false,
			RetryCount: 2, RetryResolved: true,
			Phases: models.PhaseTimings{CacheLookup: 40 * ms, Reservation: 3 * ms, Persistence: 12 * ms}},
		{StudentID: "s2", CourseID: "c1", Decision: models.DecisionFailed, Total: 1200 * ms, CacheHit: true, Hot: true,
			RetryCount: 3, RetryResolved: false,
			Phases: models.PhaseTimings{CacheLookup: 3 * ms, Reservation: 11 * ms, Persistence: 15 * ms}},
		{StudentID: "s2", CourseID: "c2", Decision: models.DecisionError4xx, Total: 30 * ms, CacheHit: true,
			Phases: models.PhaseTimings{CacheLookup: 1 * ms, Reservation: 2 * ms, Persistence: 9 * ms}},
		{StudentID: "s3", CourseID: "c2", Decision: models.DecisionEnrolled, Total: 50 * ms, CacheHit: true,
			Phases: models.PhaseTimings{CacheLookup: 4 * ms, Reservation: 5 * ms, Persistence: 30 * ms}},
	}
}

func sampleCourses() []models.Course {
	return []models.Course{
		{ID: "c1", Code: "CS101", Capacity: 2, Hot: true},
		{ID: "c2", Code: "CS102", Capacity: 4},
	}
}

func TestSummarizeCounts(t *testing.T) {
	m := Summarize(SummaryInput{
		Attempts:     sampleAttempts(),
		Courses:      sampleCourses(),
		Duration:     2 * time.Second,
		MinCourses:   1,
		PeakInFlight: 7,
	})

	assert.Equal(t, 5, m.TotalAttempts)
	assert.Equal(t, 2, m.Count(models.DecisionEnrolled))
	assert.Equal(t, 0, m.Count(models.DecisionError5xx))
	assert.InDelta(t, 40.0, m.Rate(models.DecisionEnrolled), 1e-9)
	assert.InDelta(t, 20.0, m.Rate(models.DecisionError4xx), 1e-9)

	assert.InDelta(t, 2.5, m.Throughput.AttemptsPerSec, 1e-9)
	assert.InDelta(t, 1.0, m.Throughput.EnrolledPerSec, 1e-9)
	assert.InDelta(t, 1.5, m.Throughput.WritesPerSec, 1e-9)
	assert.InDelta(t, 1.0, m.Throughput.HotSectionOpsPerSec, 1e-9)
	assert.InDelta(t, 0.5, m.Throughput.CacheMissesPerSec, 1e-9)
	assert.Equal(t, 7, m.Throughput.PeakInFlight)

	assert.Equal(t, 4, m.CacheHits)
	assert.Equal(t, 1, m.CacheMisses)
	assert.InDelta(t, 80.0, m.CacheHitPercent, 1e-9)
	assert.InDelta(t, 20.0, m.TailOver1sPercent, 1e-9)

	assert.Equal(t, 5, m.Retries.TotalRetries)
	assert.Equal(t, 2, m.Retries.AttemptsWithRetries)
	assert.InDelta(t, 100.0, m.Retries.RetryRatePercent, 1e-9)
	assert.InDelta(t, 50.0, m.Retries.RetrySuccessPercent, 1e-9)

	assert.Equal(t, 3, m.StudentsProcessed)
	assert.Equal(t, 2, m.StudentsWithMinCourses)
	assert.InDelta(t, 2.0/3.0, m.AvgEnrolledPerStudent, 1e-9)

	require.Len(t, m.Courses, 2)
	assert.Equal(t, "c1", m.Courses[0].CourseID)
	assert.Equal(t, 1, m.Courses[0].Enrolled)
	assert.Equal(t, 1, m.Courses[0].Failed)
	assert.InDelta(t, 50.0, m.Courses[0].UtilizationPercent, 1e-9)
	assert.Equal(t, 1, m.Courses[1].Waitlisted)
	assert.InDelta(t, 25.0, m.Courses[1].UtilizationPercent, 1e-9)
}

func TestSummarizeLatencyPercentiles(t *testing.T) {
	m := Summarize(SummaryInput{Attempts: sampleAttempts(), Duration: time.Second})

	// sorted totals: 30 40 50 60 1200
	assert.Equal(t, 5, m.Latency.Samples)
	assert.InDelta(t, 50.0, m.Latency.P50Ms, 1e-9)
	assert.InDelta(t, 1200.0, m.Latency.P95Ms, 1e-9)
	assert.InDelta(t, 1200.0, m.Latency.P99Ms, 1e-9)
	assert.InDelta(t, 276.0, m.Latency.MeanMs, 1e-9)
	assert.InDelta(t, 15.0, m.PersistenceLatency.P50Ms, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	m := Summarize(SummaryInput{})
	assert.Zero(t, m.TotalAttempts)
	assert.Zero(t, m.Latency.P95Ms)
	assert.Zero(t, m.Throughput.AttemptsPerSec)
	assert.InDelta(t, 100.0, m.Retries.RetrySuccessPercent, 1e-9)
	assert.Empty(t, m.Courses)
}

func TestSummarizeRetryRateCountsEveryRetry(t *testing.T) {
	m := Summarize(SummaryInput{
		Attempts: []models.Attempt{
			{StudentID: "s1", CourseID: "c1", Decision: models.DecisionEnrolled, RetryCount: 3, RetryResolved: true},
			{StudentID: "s2", CourseID: "c1", Decision: models.DecisionEnrolled},
		},
		Courses: []models.Course{{ID: "c1", Capacity: 5}},
	})

	assert.Equal(t, 3, m.Retries.TotalRetries)
	assert.Equal(t, 1, m.Retries.AttemptsWithRetries)
	assert.InDelta(t, 150.0, m.Retries.RetryRatePercent, 1e-9)
	assert.InDelta(t, 100.0, m.Retries.RetrySuccessPercent, 1e-9)
}

func TestSummarizeIgnoresAttemptOrder(t *testing.T) {
	courses := distinctCourses(8, 3)
	driver, _ := newScenarioDriver(courses, defaultTestPolicy(), 2, 3, 8)
	outcome := driver.Run(context.Background(), roster(30), courses)
	require.NotEmpty(t, outcome.Attempts)

	in := SummaryInput{Attempts: outcome.Attempts, Courses: courses, Duration: 3 * time.Second, MinCourses: 2, PeakInFlight: 8}
	baseline := Summarize(in)

	rnd := rand.New(rand.NewPCG(5, 5))
	for i := 0; i < 5; i++ {
		shuffled := make([]models.Attempt, len(outcome.Attempts))
		copy(shuffled, outcome.Attempts)
		rnd.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		in.Attempts = shuffled

		if diff := cmp.Diff(baseline, Summarize(in)); diff != "" {
			t.Fatalf("metrics changed after shuffle (-want +got):\n%s", diff)
		}
	}
}

func TestPercentile(t *testing.T) {
	values := make([]time.Duration, 10)
	for i := range values {
		values[i] = time.Duration(i+1) * 10 * time.Millisecond
	}
	assert.Equal(t, 60*time.Millisecond, Percentile(values, 0.5))
	assert.Equal(t, 100*time.Millisecond, Percentile(values, 0.95))
	assert.Equal(t, 100*time.Millisecond, Percentile(values, 1.0))
	assert.Equal(t, 10*time.Millisecond, Percentile(values, 0))
	assert.Equal(t, time.Duration(0), Percentile(nil, 0.5))
}
