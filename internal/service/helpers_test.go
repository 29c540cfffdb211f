package service

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
)

// scriptedRandom replays queued draws and falls back once exhausted.
type scriptedRandom struct {
	floats   []float64
	ints     []int
	fallback float64
}

func (r *scriptedRandom) Float64() float64 {
	if len(r.floats) == 0 {
		return r.fallback
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *scriptedRandom) IntN(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	if v >= n {
		return n - 1
	}
	return v
}

// fixedLatency returns constant phase durations without drawing.
type fixedLatency struct{}

func (fixedLatency) Pacing(Random) time.Duration { return 10 * time.Millisecond }
func (fixedLatency) CacheLookup(Random) (bool, time.Duration) {
	return true, 2 * time.Millisecond
}
func (fixedLatency) Reservation(Random, bool) time.Duration  { return 4 * time.Millisecond }
func (fixedLatency) RetryBackoff(Random) time.Duration       { return 10 * time.Millisecond }
func (fixedLatency) ThinkTime(Random) time.Duration          { return 0 }
func (fixedLatency) Persistence(_ Random, d models.Decision) time.Duration {
	if d == models.DecisionEnrolled {
		return 20 * time.Millisecond
	}
	return 15 * time.Millisecond
}

type failingLedger struct {
	err error
}

func (l failingLedger) Reserve(context.Context, string) (models.ReserveResult, error) {
	return models.ReserveFull, l.err
}

func (l failingLedger) Remaining(context.Context, string) (int, error) {
	return 0, l.err
}

func zeroErrorPolicy(waitlist float64) AdmissionPolicy {
	return AdmissionPolicy{WaitlistProbability: waitlist, RetryDecay: 0.2, MaxRetries: 3}
}

// distinctCourses builds n courses with non-overlapping schedules.
func distinctCourses(n, capacity int) []models.Course {
	days := []string{"MWF", "TTH", "MW", "WF", "TH"}
	slots := []string{"08:00-09:30", "09:45-11:15", "11:30-13:00", "13:15-14:45", "15:00-16:30", "16:45-18:15"}
	courses := make([]models.Course, n)
	for i := range courses {
		courses[i] = models.Course{
			ID:       fmt.Sprintf("course-%03d", i),
			Code:     fmt.Sprintf("CS%03d", 100+i),
			Capacity: capacity,
			Schedule: models.Schedule{Days: days[i%len(days)], Time: slots[(i/len(days))%len(slots)]},
		}
	}
	return courses
}

func roster(n int) []models.Student {
	students := make([]models.Student, n)
	for i := range students {
		students[i] = models.Student{ID: fmt.Sprintf("STU%06d", i+1)}
	}
	return students
}
