package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/pkg/config"
)

func newScenarioDriver(courses []models.Course, policy AdmissionPolicy, minCourses, maxCourses, concurrency int) (*LoadDriver, *MemorySeatLedger) {
	ledger := NewMemorySeatLedger(courses)
	latency := NewSimulatedLatency(config.LatencyConfig{
		Pacing:          config.DurationRange{Min: 5 * time.Millisecond, Max: 15 * time.Millisecond},
		CacheHit:        config.DurationRange{Min: time.Millisecond, Max: 5 * time.Millisecond},
		CacheMiss:       config.DurationRange{Min: 30 * time.Millisecond, Max: 80 * time.Millisecond},
		ReserveHot:      config.DurationRange{Min: 6 * time.Millisecond, Max: 12 * time.Millisecond},
		ReserveNormal:   config.DurationRange{Min: 2 * time.Millisecond, Max: 6 * time.Millisecond},
		RetryBackoff:    config.DurationRange{Min: 5 * time.Millisecond, Max: 25 * time.Millisecond},
		PersistError:    config.DurationRange{Min: 8 * time.Millisecond, Max: 20 * time.Millisecond},
		PersistEnrolled: config.DurationRange{Min: 15 * time.Millisecond, Max: 35 * time.Millisecond},
		PersistOther:    config.DurationRange{Min: 10 * time.Millisecond, Max: 30 * time.Millisecond},
		ThinkTime:       config.DurationRange{Min: 200 * time.Millisecond, Max: 800 * time.Millisecond},
	}, 0.97)
	engine := NewAdmissionEngine(ledger, NewMemoryWaitlist(courses), latency, NoopSleeper{}, policy, nil)
	sessions := NewSessionOrchestrator(engine, latency, NoopSleeper{}, minCourses, maxCourses)
	return NewLoadDriver(sessions, nil, DriverConfig{MaxConcurrency: concurrency, Seed: 2024}, nil), ledger
}

func countDecision(attempts []models.Attempt, d models.Decision) int {
	n := 0
	for _, a := range attempts {
		if a.Decision == d {
			n++
		}
	}
	return n
}

func TestSingleSeatTwoStudents(t *testing.T) {
	courses := []models.Course{{ID: "only", Code: "CS100", Capacity: 1, Schedule: models.Schedule{Days: "MWF", Time: "08:00-09:30"}}}
	driver, ledger := newScenarioDriver(courses, zeroErrorPolicy(0), 1, 1, 2)

	outcome := driver.Run(context.Background(), roster(2), courses)

	require.Len(t, outcome.Attempts, 2)
	assert.Equal(t, 1, countDecision(outcome.Attempts, models.DecisionEnrolled))
	assert.Equal(t, 1, countDecision(outcome.Attempts, models.DecisionFailed))
	remaining, err := ledger.Remaining(context.Background(), "only")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestCapacityFullyConsumedUnderContention(t *testing.T) {
	courses := distinctCourses(5, 30)
	driver, ledger := newScenarioDriver(courses, zeroErrorPolicy(0), 3, 3, 50)

	outcome := driver.Run(context.Background(), roster(100), courses)

	assert.Equal(t, 150, countDecision(outcome.Attempts, models.DecisionEnrolled))
	assert.Zero(t, countDecision(outcome.Attempts, models.DecisionError4xx))
	assert.Zero(t, countDecision(outcome.Attempts, models.DecisionError5xx))
	for id, remaining := range ledger.Snapshot() {
		assert.Zero(t, remaining, "course %s still has seats", id)
	}

	perStudent := make(map[string]int)
	for _, a := range outcome.Attempts {
		if a.Decision == models.DecisionEnrolled {
			perStudent[a.StudentID]++
		}
	}
	for student, n := range perStudent {
		assert.LessOrEqual(t, n, 3, "student %s over target", student)
	}
	assert.Equal(t, 100, outcome.StudentsCompleted)
	assert.False(t, outcome.Cancelled)
}

func TestDriverIsReproducibleForSeed(t *testing.T) {
	courses := distinctCourses(12, 4)
	first, _ := newScenarioDriver(courses, defaultTestPolicy(), 2, 4, 1)
	second, _ := newScenarioDriver(courses, defaultTestPolicy(), 2, 4, 1)

	a := first.Run(context.Background(), roster(20), courses)
	b := second.Run(context.Background(), roster(20), courses)

	require.Equal(t, len(a.Attempts), len(b.Attempts))
	for i := range a.Attempts {
		assert.Equal(t, a.Attempts[i].Decision, b.Attempts[i].Decision)
		assert.Equal(t, a.Attempts[i].Total, b.Attempts[i].Total)
	}
}

type probeRunner struct {
	active  atomic.Int64
	peak    atomic.Int64
	hold    time.Duration
	panicOn string
	errorOn string
}

func (p *probeRunner) Run(ctx context.Context, student models.Student, _ []models.Course, _ Random) ([]models.Attempt, error) {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if student.ID == p.panicOn {
		panic("simulated session crash")
	}
	if student.ID == p.errorOn {
		return []models.Attempt{{StudentID: student.ID}}, errors.New("unexpected session error")
	}
	if err := (TimerSleeper{}).Sleep(ctx, p.hold); err != nil {
		return nil, err
	}
	return []models.Attempt{{StudentID: student.ID, Decision: models.DecisionEnrolled}}, nil
}

type observerStub struct {
	sessions atomic.Int64
	faults   atomic.Int64
}

func (o *observerStub) ObserveSession([]models.Attempt) { o.sessions.Add(1) }
func (o *observerStub) ObserveSessionFault()            { o.faults.Add(1) }
func (o *observerStub) SetInFlight(int64)               {}

func TestDriverBoundsConcurrency(t *testing.T) {
	runner := &probeRunner{hold: 5 * time.Millisecond}
	driver := NewLoadDriver(runner, nil, DriverConfig{MaxConcurrency: 4}, nil)

	outcome := driver.Run(context.Background(), roster(40), nil)

	assert.Len(t, outcome.Attempts, 40)
	assert.LessOrEqual(t, runner.peak.Load(), int64(4))
	assert.LessOrEqual(t, outcome.PeakInFlight, 4)
	assert.GreaterOrEqual(t, outcome.PeakInFlight, 1)
	assert.Zero(t, driver.Progress().InFlight)
}

func TestDriverIsolatesSessionFaults(t *testing.T) {
	runner := &probeRunner{panicOn: "STU000003", errorOn: "STU000005"}
	observer := &observerStub{}
	driver := NewLoadDriver(runner, observer, DriverConfig{MaxConcurrency: 3}, nil)

	outcome := driver.Run(context.Background(), roster(10), nil)

	require.Len(t, outcome.Faults, 2)
	assert.Len(t, outcome.Attempts, 8)
	for _, a := range outcome.Attempts {
		assert.NotEqual(t, "STU000003", a.StudentID)
		assert.NotEqual(t, "STU000005", a.StudentID)
	}
	var sawStack bool
	for _, fault := range outcome.Faults {
		assert.Contains(t, []string{"STU000003", "STU000005"}, fault.StudentID)
		if fault.StudentID == "STU000003" {
			sawStack = fault.Stack != ""
			assert.Contains(t, fault.Error, "simulated session crash")
		}
	}
	assert.True(t, sawStack)
	assert.Equal(t, int64(10), observer.sessions.Load())
	assert.Equal(t, int64(2), observer.faults.Load())
}

func TestDriverCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	driver := NewLoadDriver(&probeRunner{}, nil, DriverConfig{MaxConcurrency: 2}, nil)

	outcome := driver.Run(ctx, roster(5), nil)
	assert.True(t, outcome.Cancelled)
	assert.Empty(t, outcome.Attempts)
}
