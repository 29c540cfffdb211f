package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
)

// SeatLedger tracks remaining seats per course. Reserve must be atomic: of N
// concurrent calls against a course with C seats, exactly min(N, C) observe
// ReserveReserved.
type SeatLedger interface {
	Reserve(ctx context.Context, courseID string) (models.ReserveResult, error)
	Remaining(ctx context.Context, courseID string) (int, error)
}

// Waitlist appends students to a per-course first-come-first-served queue.
type Waitlist interface {
	Append(ctx context.Context, courseID, studentID string) (int, error)
}

// MemorySeatLedger keeps one atomic counter per course. The map is built once
// and never mutated, so lookups need no lock.
type MemorySeatLedger struct {
	seats map[string]*atomic.Int64
}

// NewMemorySeatLedger seeds counters from course capacities. Negative
// capacities are treated as zero.
func NewMemorySeatLedger(courses []models.Course) *MemorySeatLedger {
	seats := make(map[string]*atomic.Int64, len(courses))
	for _, course := range courses {
		counter := &atomic.Int64{}
		if course.Capacity > 0 {
			counter.Store(int64(course.Capacity))
		}
		seats[course.ID] = counter
	}
	return &MemorySeatLedger{seats: seats}
}

// Reserve decrements the course counter if it is positive.
func (l *MemorySeatLedger) Reserve(_ context.Context, courseID string) (models.ReserveResult, error) {
	counter, ok := l.seats[courseID]
	if !ok {
		return models.ReserveFull, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %s is not in the seat ledger", courseID))
	}
	for {
		remaining := counter.Load()
		if remaining <= 0 {
			return models.ReserveFull, nil
		}
		if counter.CompareAndSwap(remaining, remaining-1) {
			return models.ReserveReserved, nil
		}
	}
}

// Remaining returns the seats left for a course.
func (l *MemorySeatLedger) Remaining(_ context.Context, courseID string) (int, error) {
	counter, ok := l.seats[courseID]
	if !ok {
		return 0, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %s is not in the seat ledger", courseID))
	}
	return int(counter.Load()), nil
}

// Snapshot returns the remaining seats for every course.
func (l *MemorySeatLedger) Snapshot() map[string]int {
	out := make(map[string]int, len(l.seats))
	for id, counter := range l.seats {
		out[id] = int(counter.Load())
	}
	return out
}
