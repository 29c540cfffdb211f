package service

import (
	"fmt"
	"sort"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/pkg/config"
)

const topCoursesLimit = 10

// SLOEvaluator grades run metrics against configured targets.
type SLOEvaluator struct {
	targets config.SLOConfig
}

// NewSLOEvaluator constructs an evaluator for the given targets.
func NewSLOEvaluator(targets config.SLOConfig) *SLOEvaluator {
	return &SLOEvaluator{targets: targets}
}

// Evaluate runs every check and assigns a grade from the pass rate.
func (e *SLOEvaluator) Evaluate(m models.RunMetrics) models.SLOReport {
	t := e.targets
	checks := []models.SLOCheck{
		atLeast("throughput", "successful registrations/sec", "req/s", t.MinSuccessfulPerSec, m.Throughput.EnrolledPerSec),
		within("throughput", "total attempts/sec", "req/s", t.MinAttemptsPerSec, t.MaxAttemptsPerSec, m.Throughput.AttemptsPerSec),
		atLeast("throughput", "peak concurrent sessions", "sessions", float64(t.MinPeakConcurrent), float64(m.Throughput.PeakInFlight)),

		atMost("latency", "p50 response time", "ms", t.MaxP50Ms, m.Latency.P50Ms),
		atMost("latency", "p95 response time", "ms", t.MaxP95Ms, m.Latency.P95Ms),
		atMost("latency", "p99 response time", "ms", t.MaxP99Ms, m.Latency.P99Ms),
		below("latency", "responses over 1s", "%", t.MaxTailPercent, m.TailOver1sPercent),

		atMost("contention", "reservation p95", "ms", t.MaxReservationP95Ms, m.ReservationLatency.P95Ms),
		below("contention", "retry rate", "%", t.MaxRetryRatePercent, m.Retries.RetryRatePercent),

		atMost("database", "persistence p95", "ms", t.MaxPersistenceP95Ms, m.PersistenceLatency.P95Ms),

		atLeast("cache", "cache hit rate", "%", t.MinCacheHitPercent, m.CacheHitPercent),

		below("reliability", "5xx error rate", "%", t.Max5xxPercent, m.Rate(models.DecisionError5xx)),
		below("reliability", "4xx error rate", "%", t.Max4xxPercent, m.Rate(models.DecisionError4xx)),
		atLeast("reliability", "retry success rate", "%", t.MinRetrySuccessPercent, m.Retries.RetrySuccessPercent),
	}

	report := models.SLOReport{
		Checks:     checks,
		Total:      len(checks),
		TopCourses: TopCourses(m.Courses, topCoursesLimit),
	}
	for _, check := range checks {
		if check.Passed {
			report.Passed++
		}
	}
	if report.Total > 0 {
		report.PassRate = float64(report.Passed) / float64(report.Total) * 100
	}
	report.Grade = GradeFor(report.PassRate)
	return report
}

// GradeFor maps a pass rate percentage onto a grade band.
func GradeFor(passRate float64) string {
	switch {
	case passRate >= 90:
		return models.GradeExcellent
	case passRate >= 80:
		return models.GradeGood
	case passRate >= 70:
		return models.GradeNeedsImprovement
	default:
		return models.GradeCritical
	}
}

// TopCourses returns the n most utilized courses, ties broken by course code.
func TopCourses(courses []models.CourseUtilization, n int) []models.CourseUtilization {
	ranked := make([]models.CourseUtilization, len(courses))
	copy(ranked, courses)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].UtilizationPercent != ranked[j].UtilizationPercent {
			return ranked[i].UtilizationPercent > ranked[j].UtilizationPercent
		}
		return ranked[i].CourseCode < ranked[j].CourseCode
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func atLeast(category, name, unit string, target, actual float64) models.SLOCheck {
	return models.SLOCheck{Category: category, Name: name, Unit: unit, Target: fmt.Sprintf(">= %g", target), Actual: actual, Passed: actual >= target}
}

func atMost(category, name, unit string, target, actual float64) models.SLOCheck {
	return models.SLOCheck{Category: category, Name: name, Unit: unit, Target: fmt.Sprintf("<= %g", target), Actual: actual, Passed: actual <= target}
}

func below(category, name, unit string, target, actual float64) models.SLOCheck {
	return models.SLOCheck{Category: category, Name: name, Unit: unit, Target: fmt.Sprintf("< %g", target), Actual: actual, Passed: actual < target}
}

func within(category, name, unit string, lo, hi, actual float64) models.SLOCheck {
	return models.SLOCheck{Category: category, Name: name, Unit: unit, Target: fmt.Sprintf("%g-%g", lo, hi), Actual: actual, Passed: actual >= lo && actual <= hi}
}
