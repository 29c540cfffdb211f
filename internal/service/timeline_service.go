package service

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
)

type progressSource interface {
	Progress() DriverProgress
}

// TimelineSampler records driver progress at a fixed interval.
type TimelineSampler struct {
	source   progressSource
	interval time.Duration

	mu      sync.Mutex
	started time.Time
	samples []models.TimelineSample
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTimelineSampler builds a sampler; a non-positive interval defaults to 1s.
func NewTimelineSampler(source progressSource, interval time.Duration) *TimelineSampler {
	if interval <= 0 {
		interval = time.Second
	}
	return &TimelineSampler{source: source, interval: interval}
}

// Start begins sampling until ctx ends or Stop is called.
func (s *TimelineSampler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.started = time.Now()
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sample()
			}
		}
	}()
}

// Stop halts sampling, records a final sample and returns the timeline.
func (s *TimelineSampler) Stop() []models.TimelineSample {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	<-done
	s.sample()

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TimelineSample, len(s.samples))
	copy(out, s.samples)
	return out
}

func (s *TimelineSampler) sample() {
	progress := s.source.Progress()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, models.TimelineSample{
		ElapsedSeconds:    time.Since(s.started).Seconds(),
		InFlight:          progress.InFlight,
		AttemptsCompleted: progress.AttemptsCompleted,
		StudentsCompleted: progress.StudentsCompleted,
	})
}
