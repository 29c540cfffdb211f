package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
)

func TestCompareMetricsFlagsRegressions(t *testing.T) {
	baseline := models.RunMetrics{
		Throughput: models.ThroughputMetrics{EnrolledPerSec: 100, AttemptsPerSec: 200},
		Latency:    models.LatencySummary{P50Ms: 100, P95Ms: 300, P99Ms: 500},
	}
	candidate := baseline
	candidate.Throughput.EnrolledPerSec = 80
	candidate.Latency.P95Ms = 310
	candidate.Latency.P50Ms = 50

	results := compareMetrics(baseline, candidate, 10)
	require.Len(t, results, len(metrics))

	byName := make(map[string]comparison, len(results))
	for _, res := range results {
		byName[res.Metric.Name] = res
	}
	assert.True(t, byName["Successful registrations/sec"].Regressed)
	assert.InDelta(t, -20.0, byName["Successful registrations/sec"].DeltaPct, 1e-9)
	assert.False(t, byName["P95 latency ms"].Regressed)
	assert.False(t, byName["P50 latency ms"].Regressed)
	assert.False(t, byName["Attempts/sec"].Regressed)
}

func TestDeltaPercentZeroBaseline(t *testing.T) {
	assert.Equal(t, 0.0, deltaPercent(0, 0))
	assert.Equal(t, 100.0, deltaPercent(0, 3))
	assert.InDelta(t, 50.0, deltaPercent(2, 3), 1e-9)
}

func TestResultsDatasetMarksCritical(t *testing.T) {
	ds := resultsDataset([]comparison{
		{Metric: metric{Name: "P99 latency ms", Critical: true}, Baseline: 1, Candidate: 2, DeltaPct: 100, Regressed: true},
		{Metric: metric{Name: "4xx %"}, Baseline: 1, Candidate: 1},
	})
	require.Len(t, ds.Rows, 2)
	assert.Equal(t, "CRITICAL", ds.Rows[0][4])
	assert.Equal(t, "+100.0%", ds.Rows[0][3])
	assert.Equal(t, "OK", ds.Rows[1][4])
}
