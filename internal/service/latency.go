package service

import (
	"context"
	"time"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/pkg/config"
)

// LatencyProvider samples the simulated duration of each attempt phase.
type LatencyProvider interface {
	Pacing(rnd Random) time.Duration
	CacheLookup(rnd Random) (bool, time.Duration)
	Reservation(rnd Random, hot bool) time.Duration
	RetryBackoff(rnd Random) time.Duration
	Persistence(rnd Random, decision models.Decision) time.Duration
	ThinkTime(rnd Random) time.Duration
}

// Sleeper waits for a simulated phase to elapse.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SimulatedLatency draws phase durations uniformly from configured ranges.
type SimulatedLatency struct {
	profile      config.LatencyConfig
	cacheHitRate float64
}

// NewSimulatedLatency builds a provider from the latency profile.
func NewSimulatedLatency(profile config.LatencyConfig, cacheHitRate float64) *SimulatedLatency {
	return &SimulatedLatency{profile: profile, cacheHitRate: cacheHitRate}
}

func (l *SimulatedLatency) Pacing(rnd Random) time.Duration {
	return sampleRange(rnd, l.profile.Pacing)
}

// CacheLookup decides hit or miss first, then samples the matching range.
func (l *SimulatedLatency) CacheLookup(rnd Random) (bool, time.Duration) {
	hit := rnd.Float64() < l.cacheHitRate
	if hit {
		return true, sampleRange(rnd, l.profile.CacheHit)
	}
	return false, sampleRange(rnd, l.profile.CacheMiss)
}

func (l *SimulatedLatency) Reservation(rnd Random, hot bool) time.Duration {
	if hot {
		return sampleRange(rnd, l.profile.ReserveHot)
	}
	return sampleRange(rnd, l.profile.ReserveNormal)
}

func (l *SimulatedLatency) RetryBackoff(rnd Random) time.Duration {
	return sampleRange(rnd, l.profile.RetryBackoff)
}

func (l *SimulatedLatency) Persistence(rnd Random, decision models.Decision) time.Duration {
	switch {
	case decision.IsError():
		return sampleRange(rnd, l.profile.PersistError)
	case decision == models.DecisionEnrolled:
		return sampleRange(rnd, l.profile.PersistEnrolled)
	default:
		return sampleRange(rnd, l.profile.PersistOther)
	}
}

func (l *SimulatedLatency) ThinkTime(rnd Random) time.Duration {
	return sampleRange(rnd, l.profile.ThinkTime)
}

func sampleRange(rnd Random, r config.DurationRange) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rnd.Float64()*float64(r.Max-r.Min))
}

// TimerSleeper blocks for the requested duration or until ctx is done.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoopSleeper returns immediately. Sampled durations are still recorded, so a
// fast run keeps its latency distribution while finishing in a fraction of
// the wall-clock time.
type NoopSleeper struct{}

func (NoopSleeper) Sleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// SleeperFor picks the sleeper for a run.
func SleeperFor(fast bool) Sleeper {
	if fast {
		return NoopSleeper{}
	}
	return TimerSleeper{}
}
