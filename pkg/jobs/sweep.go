// Package jobs schedules the grace period sweep.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Abhijeet1005/zendly-assignment/pkg/utils"
)

// Sweeper reclaims conversations whose grace period expired and reports how
// many were returned to the queue.
type Sweeper interface {
	ProcessExpiredGracePeriods(ctx context.Context) int
}

// Lease elects the instance that sweeps on a given tick.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
}

// sweepTimeout bounds a single sweep run.
const sweepTimeout = 5 * time.Minute

// TickerScheduler runs the sweep in-process on a fixed interval.
type TickerScheduler struct {
	sweeper  Sweeper
	lease    Lease
	interval time.Duration
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTickerScheduler creates a scheduler. lease may be nil, in which case
// every tick sweeps.
func NewTickerScheduler(sweeper Sweeper, lease Lease, interval time.Duration) *TickerScheduler {
	return &TickerScheduler{
		sweeper:  sweeper,
		lease:    lease,
		interval: interval,
		logger:   utils.GetLogger(),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background loop.
func (s *TickerScheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("Grace period sweep started", "interval", s.interval)
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
				s.RunOnce(ctx)
				cancel()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *TickerScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// RunOnce sweeps once if this instance holds the lease. ran is false when
// another instance holds it. A lease backend error does not block the sweep;
// reclaiming is row-locked and safe to run concurrently.
func (s *TickerScheduler) RunOnce(ctx context.Context) (reclaimed int, ran bool) {
	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx)
		if err != nil {
			s.logger.Warn("Sweep lease unavailable, sweeping anyway", "error", err)
		} else if !ok {
			s.logger.Debug("Sweep lease held by another instance")
			return 0, false
		}
	}
	return s.sweeper.ProcessExpiredGracePeriods(ctx), true
}
