package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/pkg/config"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
)

// AdmissionPolicy holds the outcome probabilities applied to every attempt.
type AdmissionPolicy struct {
	ServiceFaultProbability float64
	ClientRejectProbability float64
	WaitlistProbability     float64
	RetryProbabilityNormal  float64
	RetryProbabilityHot     float64
	RetryDecay              float64
	MaxRetries              int
}

// PolicyFromConfig extracts the admission policy from simulation settings.
func PolicyFromConfig(cfg config.SimulationConfig) AdmissionPolicy {
	return AdmissionPolicy{
		ServiceFaultProbability: cfg.ServiceFaultProbability,
		ClientRejectProbability: cfg.ClientRejectProbability,
		WaitlistProbability:     cfg.WaitlistProbability,
		RetryProbabilityNormal:  cfg.RetryProbabilityNormal,
		RetryProbabilityHot:     cfg.RetryProbabilityHot,
		RetryDecay:              cfg.RetryDecay,
		MaxRetries:              cfg.MaxRetries,
	}
}

func (p AdmissionPolicy) retryProbability(hot bool) float64 {
	if hot {
		return p.RetryProbabilityHot
	}
	return p.RetryProbabilityNormal
}

// decisionContext carries the per-attempt state the rules read and annotate.
type decisionContext struct {
	ctx     context.Context
	student models.Student
	course  models.Course
	rnd     Random
	// draw is shared by the transient failure rules so their bands do not overlap.
	draw    float64
	attempt *models.Attempt
}

type admissionRule struct {
	name  string
	apply func(e *AdmissionEngine, dc *decisionContext) (models.Decision, bool)
}

// defaultRules is evaluated in order; the first rule that matches decides.
var defaultRules = []admissionRule{
	{name: "service_fault", apply: ruleServiceFault},
	{name: "client_reject", apply: ruleClientReject},
	{name: "seat_reserved", apply: ruleSeatReserved},
	{name: "waitlist", apply: ruleWaitlist},
	{name: "capacity_exhausted", apply: ruleCapacityExhausted},
}

// AdmissionEngine executes one registration attempt end to end.
type AdmissionEngine struct {
	ledger   SeatLedger
	waitlist Waitlist
	latency  LatencyProvider
	sleeper  Sleeper
	policy   AdmissionPolicy
	rules    []admissionRule
	logger   *zap.Logger
	now      func() time.Time
}

// NewAdmissionEngine wires the engine dependencies.
func NewAdmissionEngine(ledger SeatLedger, waitlist Waitlist, latency LatencyProvider, sleeper Sleeper, policy AdmissionPolicy, logger *zap.Logger) *AdmissionEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	return &AdmissionEngine{
		ledger:   ledger,
		waitlist: waitlist,
		latency:  latency,
		sleeper:  sleeper,
		policy:   policy,
		rules:    defaultRules,
		logger:   logger,
		now:      time.Now,
	}
}

// Decide runs the pacing, cache, reservation, contention, decision and
// persistence phases for one student/course pair and returns the attempt.
// Cancellation before the decision aborts the attempt with ctx.Err(); once the
// ledger has been consulted the attempt always completes.
func (e *AdmissionEngine) Decide(ctx context.Context, student models.Student, course models.Course, rnd Random) (models.Attempt, error) {
	attempt := models.Attempt{
		ID:         uuid.NewString(),
		StudentID:  student.ID,
		CourseID:   course.ID,
		CourseCode: course.Code,
		Hot:        course.Hot,
		StartedAt:  e.now().UTC(),
	}

	pacing := e.latency.Pacing(rnd)
	if err := e.sleeper.Sleep(ctx, pacing); err != nil {
		return models.Attempt{}, err
	}
	attempt.Phases.Pacing = pacing

	hit, lookup := e.latency.CacheLookup(rnd)
	if err := e.sleeper.Sleep(ctx, lookup); err != nil {
		return models.Attempt{}, err
	}
	attempt.CacheHit = hit
	attempt.Phases.CacheLookup = lookup

	reservation := e.latency.Reservation(rnd, course.Hot)
	if err := e.sleeper.Sleep(ctx, reservation); err != nil {
		return models.Attempt{}, err
	}
	attempt.Phases.Reservation = reservation

	if err := e.contend(ctx, rnd, &attempt); err != nil {
		return models.Attempt{}, err
	}

	dc := &decisionContext{
		ctx:     context.WithoutCancel(ctx),
		student: student,
		course:  course,
		rnd:     rnd,
		draw:    rnd.Float64(),
		attempt: &attempt,
	}
	attempt.Decision = e.evaluate(dc)

	persistence := e.latency.Persistence(rnd, attempt.Decision)
	_ = e.sleeper.Sleep(ctx, persistence)
	attempt.Phases.Persistence = persistence
	attempt.Total = attempt.Phases.Sum()

	return attempt, nil
}

// contend simulates optimistic-lock contention with bounded retries.
func (e *AdmissionEngine) contend(ctx context.Context, rnd Random, attempt *models.Attempt) error {
	p := e.policy.retryProbability(attempt.Hot)
	if p <= 0 {
		return nil
	}
	conflicted := rnd.Float64() < p
	for conflicted && attempt.RetryCount < e.policy.MaxRetries {
		attempt.RetryCount++
		backoff := e.latency.RetryBackoff(rnd)
		if err := e.sleeper.Sleep(ctx, backoff); err != nil {
			return err
		}
		attempt.Phases.RetryBackoff += backoff
		conflicted = rnd.Float64() < p*e.policy.RetryDecay
	}
	attempt.RetryResolved = attempt.RetryCount > 0 && !conflicted
	if conflicted && attempt.RetryCount > 0 {
		e.logger.Debug("contention retries exhausted",
			zap.String("course_id", attempt.CourseID),
			zap.Int("retries", attempt.RetryCount),
			zap.Error(appErrors.ErrContentionRetryExhausted))
	}
	return nil
}

func (e *AdmissionEngine) evaluate(dc *decisionContext) models.Decision {
	for _, rule := range e.rules {
		if decision, ok := rule.apply(e, dc); ok {
			return decision
		}
	}
	return models.DecisionFailed
}

func ruleServiceFault(e *AdmissionEngine, dc *decisionContext) (models.Decision, bool) {
	if dc.draw < e.policy.ServiceFaultProbability {
		return models.DecisionError5xx, true
	}
	return "", false
}

func ruleClientReject(e *AdmissionEngine, dc *decisionContext) (models.Decision, bool) {
	if dc.draw < e.policy.ServiceFaultProbability+e.policy.ClientRejectProbability {
		return models.DecisionError4xx, true
	}
	return "", false
}

func ruleSeatReserved(e *AdmissionEngine, dc *decisionContext) (models.Decision, bool) {
	result, err := e.ledger.Reserve(dc.ctx, dc.course.ID)
	if err != nil {
		wrapped := appErrors.WrapAs(appErrors.ErrTransientService, err, "seat ledger unavailable")
		dc.attempt.Fault = wrapped.Error()
		e.logger.Warn("seat ledger reserve failed", zap.String("course_id", dc.course.ID), zap.Error(err))
		return models.DecisionError5xx, true
	}
	if result == models.ReserveReserved {
		return models.DecisionEnrolled, true
	}
	return "", false
}

func ruleWaitlist(e *AdmissionEngine, dc *decisionContext) (models.Decision, bool) {
	if dc.rnd.Float64() >= e.policy.WaitlistProbability {
		return "", false
	}
	if e.waitlist != nil {
		position, err := e.waitlist.Append(dc.ctx, dc.course.ID, dc.student.ID)
		if err != nil {
			dc.attempt.Fault = err.Error()
			e.logger.Warn("waitlist append failed", zap.String("course_id", dc.course.ID), zap.Error(err))
		}
		dc.attempt.WaitlistPosition = position
	}
	return models.DecisionWaitlisted, true
}

func ruleCapacityExhausted(_ *AdmissionEngine, _ *decisionContext) (models.Decision, bool) {
	return models.DecisionFailed, true
}

// OutcomeError maps a decision onto the error taxonomy. Successful and
// waitlisted attempts return nil. The attempts export uses it to fill the
// error-code column of registrations.csv.
func OutcomeError(decision models.Decision) *appErrors.Error {
	switch decision {
	case models.DecisionFailed:
		return appErrors.ErrCapacityExhausted
	case models.DecisionError4xx:
		return appErrors.ErrClientRejected
	case models.DecisionError5xx:
		return appErrors.ErrTransientService
	default:
		return nil
	}
}
