package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	metrics := NewMetricsService()
	metrics.ObserveSession([]models.Attempt{
		{Decision: models.DecisionEnrolled, CacheHit: true, Total: 40 * time.Millisecond},
		{Decision: models.DecisionWaitlisted, RetryCount: 2},
	})
	metrics.ObserveSession([]models.Attempt{{Decision: models.DecisionEnrolled}})
	metrics.ObserveSessionFault()
	metrics.SetInFlight(3)
	metrics.ObserveRun(models.RunStatusFinished)
	metrics.ObserveHTTPRequest(http.MethodGet, "/api/v1/runs", http.StatusOK, time.Millisecond)

	want := models.LiveMetrics{
		AttemptsTotal:     3,
		AttemptsByOutcome: map[string]uint64{"Enrolled": 2, "Waitlisted": 1},
		SessionsInFlight:  3,
		SessionsCompleted: 2,
		SessionFaults:     1,
		RunsCompleted:     1,
		RequestsTotal:     1,
	}
	got := metrics.Snapshot()
	assert.Positive(t, got.Goroutines)
	assert.False(t, got.GeneratedAt.IsZero())
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(models.LiveMetrics{}, "Goroutines", "GeneratedAt")); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestMetricsServiceExposesPrometheus(t *testing.T) {
	metrics := NewMetricsService()
	metrics.ObserveSession([]models.Attempt{{Decision: models.DecisionFailed, Hot: true}})

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `registration_attempts_total{decision="Failed",hot="true"} 1`)
	assert.Contains(t, body, `registration_cache_lookups_total{result="miss"} 1`)
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var metrics *MetricsService
	metrics.ObserveSession([]models.Attempt{{Decision: models.DecisionEnrolled}})
	metrics.ObserveRun(models.RunStatusFailed)
	assert.Equal(t, models.LiveMetrics{}, metrics.Snapshot())

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
