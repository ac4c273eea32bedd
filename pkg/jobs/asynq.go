package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Abhijeet1005/zendly-assignment/pkg/utils"
	"github.com/hibiken/asynq"
)

const (
	// TypeGracePeriodSweep is the asynq task type for one sweep run.
	TypeGracePeriodSweep = "grace_period:sweep"

	sweepQueue = "maintenance"
)

// AsynqScheduler enqueues the sweep as a periodic asynq task and consumes it.
// Any number of instances may run it; asynq's uniqueness lock keeps one task
// per interval.
type AsynqScheduler struct {
	scheduler *asynq.Scheduler
	server    *asynq.Server
	mux       *asynq.ServeMux
	sweeper   Sweeper
	interval  time.Duration
	logger    *slog.Logger
}

// NewAsynqScheduler builds the scheduler and worker against redisURL.
func NewAsynqScheduler(redisURL string, sweeper Sweeper, interval time.Duration) (*AsynqScheduler, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	logger := utils.GetLogger()

	s := &AsynqScheduler{
		scheduler: asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC, LogLevel: asynq.WarnLevel}),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: 1,
			Queues:      map[string]int{sweepQueue: 1},
			LogLevel:    asynq.WarnLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Asynq task failed", "type", task.Type(), "error", err)
			}),
		}),
		mux:      asynq.NewServeMux(),
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
	s.mux.HandleFunc(TypeGracePeriodSweep, s.HandleSweepTask)
	return s, nil
}

// Start registers the periodic task and starts both the scheduler and the
// worker.
func (s *AsynqScheduler) Start() error {
	task := asynq.NewTask(TypeGracePeriodSweep, nil)
	if _, err := s.scheduler.Register(fmt.Sprintf("@every %s", s.interval), task,
		asynq.Queue(sweepQueue), asynq.Unique(s.interval), asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("asynq: register sweep: %w", err)
	}
	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("asynq: start scheduler: %w", err)
	}
	if err := s.server.Start(s.mux); err != nil {
		s.scheduler.Shutdown()
		return fmt.Errorf("asynq: start server: %w", err)
	}
	s.logger.Info("Grace period sweep scheduled on asynq", "interval", s.interval)
	return nil
}

func (s *AsynqScheduler) Stop() {
	s.scheduler.Shutdown()
	s.server.Shutdown()
}

// HandleSweepTask runs one sweep. It never fails the task; per-hold errors
// are logged by the sweeper and retried on the next run.
func (s *AsynqScheduler) HandleSweepTask(ctx context.Context, _ *asynq.Task) error {
	n := s.sweeper.ProcessExpiredGracePeriods(ctx)
	s.logger.Debug("Sweep task finished", "reclaimed", n)
	return nil
}
