package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrRunning is returned by Start when the scheduler is already running.
var ErrRunning = errors.New("scheduler already running")

// TickFunc is invoked once per interval with the tick instant.
type TickFunc func(ctx context.Context, now time.Time)

// Scheduler is a tick source with an explicit lifecycle. Ticks fire on
// interval boundaries (whole minutes for a one-minute interval).
type Scheduler struct {
	interval time.Duration
	tick     TickFunc
	log      *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped Scheduler.
func New(interval time.Duration, tick TickFunc, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		interval: interval,
		tick:     tick,
		log:      log,
		now:      time.Now,
	}
}

// Start launches the tick loop. It stops when ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the tick source and waits for an in-flight tick to finish.
// It is safe to call on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	next := nextBoundary(s.now(), s.interval)
	timer := time.NewTimer(next.Sub(s.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			// The tick instant is the boundary itself, so a late wakeup still
			// matches the intended minute. Shutdown lets the tick finish.
			s.tick(context.WithoutCancel(ctx), next)

			prev := next
			next = nextBoundary(s.now(), s.interval)
			if !next.After(prev) {
				next = prev.Add(s.interval)
			}
			if missed := next.Sub(prev)/s.interval - 1; missed > 0 {
				s.log.Warn("tick overran, boundaries skipped", zap.Int64("skipped", int64(missed)))
			}
			timer.Reset(next.Sub(s.now()))
		}
	}
}

// nextBoundary returns the first multiple of interval strictly after now.
func nextBoundary(now time.Time, interval time.Duration) time.Time {
	return now.Truncate(interval).Add(interval)
}
