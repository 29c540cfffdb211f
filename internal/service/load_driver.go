package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
)

type sessionRunner interface {
	Run(ctx context.Context, student models.Student, courses []models.Course, rnd Random) ([]models.Attempt, error)
}

type sessionObserver interface {
	ObserveSession(attempts []models.Attempt)
	ObserveSessionFault()
	SetInFlight(n int64)
}

// DriverConfig bounds a load run.
type DriverConfig struct {
	MaxConcurrency int
	Seed           uint64
	ProgressEvery  int
}

// DriverProgress is a point-in-time view of a running load.
type DriverProgress struct {
	InFlight          int64
	PeakInFlight      int64
	AttemptsCompleted int64
	StudentsCompleted int64
}

// RunOutcome is what a driver run produced.
type RunOutcome struct {
	Attempts          []models.Attempt
	Faults            []models.SessionFault
	StartedAt         time.Time
	Duration          time.Duration
	PeakInFlight      int
	StudentsCompleted int
	Cancelled         bool
}

// LoadDriver fans student sessions out over a bounded pool. A driver runs one
// load at a time; create a new one per run.
type LoadDriver struct {
	sessions sessionRunner
	observer sessionObserver
	cfg      DriverConfig
	logger   *zap.Logger

	inFlight          atomic.Int64
	peak              atomic.Int64
	attemptsCompleted atomic.Int64
	studentsCompleted atomic.Int64
}

// NewLoadDriver builds a driver. observer may be nil.
func NewLoadDriver(sessions sessionRunner, observer sessionObserver, cfg DriverConfig, logger *zap.Logger) *LoadDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 100
	}
	return &LoadDriver{sessions: sessions, observer: observer, cfg: cfg, logger: logger}
}

// Progress reports live counters without blocking the run.
func (d *LoadDriver) Progress() DriverProgress {
	return DriverProgress{
		InFlight:          d.inFlight.Load(),
		PeakInFlight:      d.peak.Load(),
		AttemptsCompleted: d.attemptsCompleted.Load(),
		StudentsCompleted: d.studentsCompleted.Load(),
	}
}

// Run executes one session per student with at most MaxConcurrency in flight.
// Session i draws from stream i+1 of the run seed. A cancelled ctx stops new
// sessions from starting; attempts already recorded are kept.
func (d *LoadDriver) Run(ctx context.Context, students []models.Student, courses []models.Course) RunOutcome {
	outcome := RunOutcome{StartedAt: time.Now().UTC()}
	began := time.Now()

	sem := semaphore.NewWeighted(int64(d.cfg.MaxConcurrency))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	d.logger.Sugar().Infow("load run started", "students", len(students), "courses", len(courses), "max_concurrency", d.cfg.MaxConcurrency)

	for i, student := range students {
		if ctx.Err() != nil {
			outcome.Cancelled = true
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			outcome.Cancelled = true
			break
		}
		wg.Add(1)
		go func(index int, student models.Student) {
			defer wg.Done()
			defer sem.Release(1)

			d.enter()
			attempts, fault := d.runSession(ctx, index, student, courses)
			d.leave()

			mu.Lock()
			if fault != nil {
				outcome.Faults = append(outcome.Faults, *fault)
			}
			outcome.Attempts = append(outcome.Attempts, attempts...)
			mu.Unlock()

			d.record(attempts, fault, len(students), began)
		}(i, student)
	}
	wg.Wait()

	if ctx.Err() != nil {
		outcome.Cancelled = true
	}
	outcome.Duration = time.Since(began)
	outcome.PeakInFlight = int(d.peak.Load())
	outcome.StudentsCompleted = int(d.studentsCompleted.Load())

	d.logger.Sugar().Infow("load run finished",
		"attempts", len(outcome.Attempts),
		"students_completed", outcome.StudentsCompleted,
		"faults", len(outcome.Faults),
		"peak_in_flight", outcome.PeakInFlight,
		"duration", outcome.Duration,
		"cancelled", outcome.Cancelled,
	)
	return outcome
}

func (d *LoadDriver) runSession(ctx context.Context, index int, student models.Student, courses []models.Course) (attempts []models.Attempt, fault *models.SessionFault) {
	defer func() {
		if r := recover(); r != nil {
			attempts = nil
			fault = &models.SessionFault{
				StudentID: student.ID,
				Error:     appErrors.Clone(appErrors.ErrSessionFault, fmt.Sprintf("panic: %v", r)).Error(),
				Stack:     string(debug.Stack()),
			}
		}
	}()

	rnd := NewRandom(d.cfg.Seed, uint64(index)+1)
	attempts, err := d.sessions.Run(ctx, student, courses, rnd)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, &models.SessionFault{
			StudentID: student.ID,
			Error:     appErrors.WrapAs(appErrors.ErrSessionFault, err, "").Error(),
		}
	}
	return attempts, nil
}

func (d *LoadDriver) enter() {
	n := d.inFlight.Add(1)
	for {
		peak := d.peak.Load()
		if n <= peak || d.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if d.observer != nil {
		d.observer.SetInFlight(n)
	}
}

func (d *LoadDriver) leave() {
	n := d.inFlight.Add(-1)
	if d.observer != nil {
		d.observer.SetInFlight(n)
	}
}

func (d *LoadDriver) record(attempts []models.Attempt, fault *models.SessionFault, total int, began time.Time) {
	attemptsDone := d.attemptsCompleted.Add(int64(len(attempts)))
	done := d.studentsCompleted.Add(1)

	if d.observer != nil {
		d.observer.ObserveSession(attempts)
		if fault != nil {
			d.observer.ObserveSessionFault()
		}
	}
	if fault != nil {
		d.logger.Error("registration session faulted", zap.String("student_id", fault.StudentID), zap.String("error", fault.Error))
	}

	if done%int64(d.cfg.ProgressEvery) == 0 {
		elapsed := time.Since(began).Seconds()
		var rate float64
		if elapsed > 0 {
			rate = float64(attemptsDone) / elapsed
		}
		d.logger.Sugar().Infow("load run progress",
			"students_completed", done,
			"students_total", total,
			"attempts", attemptsDone,
			"attempts_per_sec", rate,
			"in_flight", d.inFlight.Load(),
		)
	}
}
