package service

import (
	"slices"
	"sort"
	"time"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
)

// SummaryInput is everything the aggregator needs from a finished run.
type SummaryInput struct {
	Attempts      []models.Attempt
	Courses       []models.Course
	Duration      time.Duration
	MinCourses    int
	PeakInFlight  int
	SessionFaults int
}

// Summarize reduces a run's attempts into its metrics. The result does not
// depend on attempt order.
func Summarize(in SummaryInput) models.RunMetrics {
	total := len(in.Attempts)
	metrics := models.RunMetrics{
		DurationSeconds:  in.Duration.Seconds(),
		TotalAttempts:    total,
		Counts:           make(map[models.Decision]int, len(models.Decisions)),
		RatesPercent:     make(map[models.Decision]float64, len(models.Decisions)),
		MinCoursesTarget: in.MinCourses,
		SessionFaults:    in.SessionFaults,
	}
	for _, d := range models.Decisions {
		metrics.Counts[d] = 0
	}

	var (
		totals      = make([]time.Duration, 0, total)
		cache       = make([]time.Duration, 0, total)
		reservation = make([]time.Duration, 0, total)
		persistence = make([]time.Duration, 0, total)
		hotOps      int
		tail        int
	)
	courseStats := make(map[string]*models.CourseUtilization, len(in.Courses))
	for _, course := range in.Courses {
		courseStats[course.ID] = &models.CourseUtilization{
			CourseID:   course.ID,
			CourseCode: course.Code,
			Hot:        course.Hot,
			Capacity:   course.Capacity,
		}
	}
	enrolledByStudent := make(map[string]int)

	for _, a := range in.Attempts {
		metrics.Counts[a.Decision]++
		totals = append(totals, a.Total)
		cache = append(cache, a.Phases.CacheLookup)
		reservation = append(reservation, a.Phases.Reservation)
		persistence = append(persistence, a.Phases.Persistence)

		if a.Total > time.Second {
			tail++
		}
		if a.Hot {
			hotOps++
		}
		if a.CacheHit {
			metrics.CacheHits++
		} else {
			metrics.CacheMisses++
		}
		if a.RetryCount > 0 {
			metrics.Retries.AttemptsWithRetries++
			metrics.Retries.TotalRetries += a.RetryCount
			if a.RetryResolved {
				metrics.Retries.ResolvedAttempts++
			}
		}

		if _, ok := enrolledByStudent[a.StudentID]; !ok {
			enrolledByStudent[a.StudentID] = 0
		}
		if a.Decision == models.DecisionEnrolled {
			enrolledByStudent[a.StudentID]++
		}

		if stats, ok := courseStats[a.CourseID]; ok {
			switch a.Decision {
			case models.DecisionEnrolled:
				stats.Enrolled++
			case models.DecisionWaitlisted:
				stats.Waitlisted++
			case models.DecisionFailed:
				stats.Failed++
			}
		}
	}

	for _, d := range models.Decisions {
		metrics.RatesPercent[d] = percentOf(metrics.Counts[d], total)
	}

	metrics.Latency = summarizeLatency(totals)
	metrics.CacheLatency = summarizeLatency(cache)
	metrics.ReservationLatency = summarizeLatency(reservation)
	metrics.PersistenceLatency = summarizeLatency(persistence)
	metrics.TailOver1sPercent = percentOf(tail, total)
	metrics.CacheHitPercent = percentOf(metrics.CacheHits, total)

	metrics.Retries.RetryRatePercent = percentOf(metrics.Retries.TotalRetries, total)
	if metrics.Retries.AttemptsWithRetries == 0 {
		metrics.Retries.RetrySuccessPercent = 100
	} else {
		metrics.Retries.RetrySuccessPercent = percentOf(metrics.Retries.ResolvedAttempts, metrics.Retries.AttemptsWithRetries)
	}

	enrolled := metrics.Counts[models.DecisionEnrolled]
	writes := enrolled + metrics.Counts[models.DecisionWaitlisted]
	metrics.Throughput.PeakInFlight = in.PeakInFlight
	if secs := in.Duration.Seconds(); secs > 0 {
		metrics.Throughput.AttemptsPerSec = float64(total) / secs
		metrics.Throughput.EnrolledPerSec = float64(enrolled) / secs
		metrics.Throughput.HotSectionOpsPerSec = float64(hotOps) / secs
		metrics.Throughput.WritesPerSec = float64(writes) / secs
		metrics.Throughput.CacheMissesPerSec = float64(metrics.CacheMisses) / secs
	}

	metrics.StudentsProcessed = len(enrolledByStudent)
	for _, n := range enrolledByStudent {
		if n >= in.MinCourses {
			metrics.StudentsWithMinCourses++
		}
	}
	if metrics.StudentsProcessed > 0 {
		metrics.AvgEnrolledPerStudent = float64(enrolled) / float64(metrics.StudentsProcessed)
	}

	metrics.Courses = make([]models.CourseUtilization, 0, len(courseStats))
	for _, stats := range courseStats {
		if stats.Capacity > 0 {
			stats.UtilizationPercent = float64(stats.Enrolled) / float64(stats.Capacity) * 100
		}
		metrics.Courses = append(metrics.Courses, *stats)
	}
	sort.Slice(metrics.Courses, func(i, j int) bool {
		return metrics.Courses[i].CourseID < metrics.Courses[j].CourseID
	})

	return metrics
}

// Percentile returns the nearest-rank value at ratio from an ascending slice:
// index floor(ratio*n) clamped to n-1. An empty slice yields 0.
func Percentile(sorted []time.Duration, ratio float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(ratio * float64(n))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func summarizeLatency(values []time.Duration) models.LatencySummary {
	if len(values) == 0 {
		return models.LatencySummary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	// Summing integer nanoseconds keeps the mean independent of order.
	var sum time.Duration
	for _, v := range sorted {
		sum += v
	}
	return models.LatencySummary{
		Samples: len(sorted),
		MeanMs:  models.Millis(sum) / float64(len(sorted)),
		P50Ms:   models.Millis(Percentile(sorted, 0.50)),
		P95Ms:   models.Millis(Percentile(sorted, 0.95)),
		P99Ms:   models.Millis(Percentile(sorted, 0.99)),
	}
}

func percentOf(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
