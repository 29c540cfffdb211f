package service

import (
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
)

var attemptBuckets = []float64{.005, .01, .025, .05, .1, .15, .25, .5, 1, 2.5}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	phaseDuration   *prometheus.HistogramVec
	retriesTotal    prometheus.Counter
	cacheLookups    *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	sessionFaults   prometheus.Counter
	runsTotal       *prometheus.CounterVec

	mu            sync.Mutex
	outcomeCounts map[models.Decision]uint64
	attemptCount  uint64
	requestCount  uint64
	sessionCount  uint64
	faultCount    uint64
	runCount      uint64
	inFlight      int64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	attemptsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_attempts_total",
		Help: "Registration attempts by decision and section temperature",
	}, []string{"decision", "hot"})

	attemptDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registration_attempt_duration_seconds",
		Help:    "End-to-end simulated duration of registration attempts",
		Buckets: attemptBuckets,
	}, []string{"decision"})

	phaseDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registration_phase_duration_seconds",
		Help:    "Simulated duration of each attempt phase",
		Buckets: attemptBuckets,
	}, []string{"phase"})

	retriesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registration_retries_total",
		Help: "Contention retries performed",
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_cache_lookups_total",
		Help: "Course cache lookups by result",
	}, []string{"result"})

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "registration_sessions_in_flight",
		Help: "Student sessions currently running",
	})

	sessionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registration_sessions_completed_total",
		Help: "Student sessions completed",
	})

	sessionFaults := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registration_session_faults_total",
		Help: "Student sessions that ended with a fault",
	})

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "load_runs_total",
		Help: "Load runs by terminal status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, attemptsTotal, attemptDuration, phaseDuration,
		retriesTotal, cacheLookups, sessionsActive, sessionsTotal, sessionFaults, runsTotal, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		attemptsTotal:   attemptsTotal,
		attemptDuration: attemptDuration,
		phaseDuration:   phaseDuration,
		retriesTotal:    retriesTotal,
		cacheLookups:    cacheLookups,
		sessionsActive:  sessionsActive,
		sessionsTotal:   sessionsTotal,
		sessionFaults:   sessionFaults,
		runsTotal:       runsTotal,
		outcomeCounts:   make(map[models.Decision]uint64, len(models.Decisions)),
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// ObserveSession records every attempt of a completed session.
func (m *MetricsService) ObserveSession(attempts []models.Attempt) {
	if m == nil {
		return
	}
	for _, a := range attempts {
		decision := string(a.Decision)
		m.attemptsTotal.WithLabelValues(decision, strconv.FormatBool(a.Hot)).Inc()
		m.attemptDuration.WithLabelValues(decision).Observe(a.Total.Seconds())
		m.phaseDuration.WithLabelValues("cache").Observe(a.Phases.CacheLookup.Seconds())
		m.phaseDuration.WithLabelValues("reservation").Observe(a.Phases.Reservation.Seconds())
		m.phaseDuration.WithLabelValues("persistence").Observe(a.Phases.Persistence.Seconds())
		if a.RetryCount > 0 {
			m.retriesTotal.Add(float64(a.RetryCount))
		}
		if a.CacheHit {
			m.cacheLookups.WithLabelValues("hit").Inc()
		} else {
			m.cacheLookups.WithLabelValues("miss").Inc()
		}
	}
	m.sessionsTotal.Inc()

	m.mu.Lock()
	for _, a := range attempts {
		m.outcomeCounts[a.Decision]++
	}
	m.attemptCount += uint64(len(attempts))
	m.sessionCount++
	m.mu.Unlock()
}

// ObserveSessionFault counts a faulted session.
func (m *MetricsService) ObserveSessionFault() {
	if m == nil {
		return
	}
	m.sessionFaults.Inc()
	atomic.AddUint64(&m.faultCount, 1)
}

// SetInFlight updates the live session gauge.
func (m *MetricsService) SetInFlight(n int64) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
	atomic.StoreInt64(&m.inFlight, n)
}

// ObserveRun counts a run reaching a terminal status.
func (m *MetricsService) ObserveRun(status models.RunStatus) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(string(status)).Inc()
	atomic.AddUint64(&m.runCount, 1)
}

// Snapshot returns aggregated counters for the live endpoint.
func (m *MetricsService) Snapshot() models.LiveMetrics {
	if m == nil {
		return models.LiveMetrics{}
	}
	m.mu.Lock()
	byOutcome := make(map[string]uint64, len(m.outcomeCounts))
	for decision, n := range m.outcomeCounts {
		byOutcome[string(decision)] = n
	}
	attempts := m.attemptCount
	sessions := m.sessionCount
	m.mu.Unlock()

	return models.LiveMetrics{
		AttemptsTotal:     attempts,
		AttemptsByOutcome: byOutcome,
		SessionsInFlight:  atomic.LoadInt64(&m.inFlight),
		SessionsCompleted: sessions,
		SessionFaults:     atomic.LoadUint64(&m.faultCount),
		RunsCompleted:     atomic.LoadUint64(&m.runCount),
		RequestsTotal:     atomic.LoadUint64(&m.requestCount),
		Goroutines:        runtime.NumGoroutine(),
		GeneratedAt:       time.Now().UTC(),
	}
}
