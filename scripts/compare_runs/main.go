package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/pkg/export"
)

type direction int

const (
	lowerIsBetter direction = iota
	higherIsBetter
)

type metric struct {
	Name     string
	Better   direction
	Critical bool
	Value    func(models.RunMetrics) float64
}

type comparison struct {
	Metric    metric
	Baseline  float64
	Candidate float64
	DeltaPct  float64
	Regressed bool
}

var metrics = []metric{
	{Name: "Successful registrations/sec", Better: higherIsBetter, Critical: true, Value: func(m models.RunMetrics) float64 { return m.Throughput.EnrolledPerSec }},
	{Name: "Attempts/sec", Better: higherIsBetter, Value: func(m models.RunMetrics) float64 { return m.Throughput.AttemptsPerSec }},
	{Name: "Peak concurrent sessions", Better: higherIsBetter, Value: func(m models.RunMetrics) float64 { return float64(m.Throughput.PeakInFlight) }},
	{Name: "P50 latency ms", Better: lowerIsBetter, Value: func(m models.RunMetrics) float64 { return m.Latency.P50Ms }},
	{Name: "P95 latency ms", Better: lowerIsBetter, Critical: true, Value: func(m models.RunMetrics) float64 { return m.Latency.P95Ms }},
	{Name: "P99 latency ms", Better: lowerIsBetter, Critical: true, Value: func(m models.RunMetrics) float64 { return m.Latency.P99Ms }},
	{Name: "Reservation P95 ms", Better: lowerIsBetter, Value: func(m models.RunMetrics) float64 { return m.ReservationLatency.P95Ms }},
	{Name: "Persistence P95 ms", Better: lowerIsBetter, Value: func(m models.RunMetrics) float64 { return m.PersistenceLatency.P95Ms }},
	{Name: "Retry rate %", Better: lowerIsBetter, Value: func(m models.RunMetrics) float64 { return m.Retries.RetryRatePercent }},
	{Name: "Cache hit %", Better: higherIsBetter, Value: func(m models.RunMetrics) float64 { return m.CacheHitPercent }},
	{Name: "5xx %", Better: lowerIsBetter, Critical: true, Value: func(m models.RunMetrics) float64 { return m.Rate(models.DecisionError5xx) }},
	{Name: "4xx %", Better: lowerIsBetter, Value: func(m models.RunMetrics) float64 { return m.Rate(models.DecisionError4xx) }},
}

func main() {
	var (
		baselinePath  string
		candidatePath string
		tolerance     float64
	)
	flag.StringVar(&baselinePath, "baseline", "", "metrics.json of the reference run")
	flag.StringVar(&candidatePath, "candidate", "", "metrics.json of the run under test")
	flag.Float64Var(&tolerance, "tolerance", 10, "Allowed regression in percent of the baseline value")
	flag.Parse()

	if baselinePath == "" || candidatePath == "" {
		log.Fatal("both -baseline and -candidate are required")
	}
	baseline, err := loadMetrics(baselinePath)
	if err != nil {
		log.Fatalf("failed to load baseline: %v", err)
	}
	candidate, err := loadMetrics(candidatePath)
	if err != nil {
		log.Fatalf("failed to load candidate: %v", err)
	}

	results := compareMetrics(baseline, candidate, tolerance)
	out, err := export.NewTextExporter().Render("Run Comparison", resultsDataset(results))
	if err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	fmt.Print(out)

	breaking, optional := 0, 0
	for _, res := range results {
		if !res.Regressed {
			continue
		}
		if res.Metric.Critical {
			breaking++
		} else {
			optional++
		}
	}
	fmt.Printf("Critical regressions: %d, Other regressions: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadMetrics(path string) (models.RunMetrics, error) {
	var m models.RunMetrics
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, nil
}

func compareMetrics(baseline, candidate models.RunMetrics, tolerance float64) []comparison {
	results := make([]comparison, 0, len(metrics))
	for _, m := range metrics {
		res := comparison{Metric: m, Baseline: m.Value(baseline), Candidate: m.Value(candidate)}
		res.DeltaPct = deltaPercent(res.Baseline, res.Candidate)
		worse := res.DeltaPct
		if m.Better == higherIsBetter {
			worse = -worse
		}
		res.Regressed = worse > tolerance
		results = append(results, res)
	}
	return results
}

// deltaPercent is the change relative to the baseline. A zero baseline counts
// any increase as a full 100%.
func deltaPercent(baseline, candidate float64) float64 {
	if baseline == 0 {
		switch {
		case candidate > 0:
			return 100
		case candidate < 0:
			return -100
		}
		return 0
	}
	return (candidate - baseline) / math.Abs(baseline) * 100
}

func resultsDataset(results []comparison) export.Dataset {
	ds := export.NewDataset("Metrics", "Metric", "Baseline", "Candidate", "Delta", "Status")
	for _, res := range results {
		status := "OK"
		if res.Regressed {
			status = "REGRESSED"
			if res.Metric.Critical {
				status = "CRITICAL"
			}
		}
		ds.Append(res.Metric.Name,
			fmt.Sprintf("%.2f", res.Baseline),
			fmt.Sprintf("%.2f", res.Candidate),
			fmt.Sprintf("%+.1f%%", res.DeltaPct),
			status,
		)
	}
	return *ds
}
