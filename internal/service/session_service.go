package service

import (
	"context"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
)

type attemptDecider interface {
	Decide(ctx context.Context, student models.Student, course models.Course, rnd Random) (models.Attempt, error)
}

// SessionOrchestrator plays one student's registration session.
type SessionOrchestrator struct {
	engine     attemptDecider
	latency    LatencyProvider
	sleeper    Sleeper
	minCourses int
	maxCourses int
}

// NewSessionOrchestrator builds an orchestrator bounded by [minCourses, maxCourses].
func NewSessionOrchestrator(engine attemptDecider, latency LatencyProvider, sleeper Sleeper, minCourses, maxCourses int) *SessionOrchestrator {
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	if maxCourses < minCourses {
		maxCourses = minCourses
	}
	return &SessionOrchestrator{
		engine:     engine,
		latency:    latency,
		sleeper:    sleeper,
		minCourses: minCourses,
		maxCourses: maxCourses,
	}
}

// Run draws an enrollment target, samples up to twice that many candidate
// courses and attempts them in order until the target is met. Candidates that
// clash with an already enrolled schedule are skipped without an attempt.
// On cancellation the attempts made so far are returned with ctx.Err().
func (o *SessionOrchestrator) Run(ctx context.Context, student models.Student, courses []models.Course, rnd Random) ([]models.Attempt, error) {
	target := o.minCourses + rnd.IntN(o.maxCourses-o.minCourses+1)
	candidates := sampleIndices(rnd, len(courses), min(2*target, len(courses)))

	attempts := make([]models.Attempt, 0, len(candidates))
	enrolled := make([]models.Schedule, 0, target)
	for _, idx := range candidates {
		if len(enrolled) >= target {
			break
		}
		if err := o.sleeper.Sleep(ctx, o.latency.ThinkTime(rnd)); err != nil {
			return attempts, err
		}

		course := courses[idx]
		if conflictsWith(enrolled, course.Schedule) {
			continue
		}

		attempt, err := o.engine.Decide(ctx, student, course, rnd)
		if err != nil {
			return attempts, err
		}
		attempts = append(attempts, attempt)
		if attempt.Decision == models.DecisionEnrolled {
			enrolled = append(enrolled, course.Schedule)
		}
	}
	return attempts, nil
}

func conflictsWith(enrolled []models.Schedule, candidate models.Schedule) bool {
	for _, slot := range enrolled {
		if slot.Conflicts(candidate) {
			return true
		}
	}
	return false
}
