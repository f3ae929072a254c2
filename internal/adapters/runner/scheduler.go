package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mikey/llm-inbox-triage/internal/config"
	"github.com/mikey/llm-inbox-triage/internal/core"
	"go.uber.org/zap"
)

// SchedulerOptions configures a Scheduler
type SchedulerOptions struct {
	Interval    time.Duration
	MaxMessages int
	Concurrency int
	RunOnStart  bool
}

// Scheduler triages every account on a fixed interval
type Scheduler struct {
	pass       accountPass
	interval   time.Duration
	runOnStart bool
	logger     *zap.Logger

	running  atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a new scheduler
func NewScheduler(
	service *core.TriageService,
	open TransportOpener,
	accounts []config.AccountConfig,
	opts SchedulerOptions,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		pass: accountPass{
			service:     service,
			open:        open,
			accounts:    accounts,
			maxMessages: opts.MaxMessages,
			concurrency: opts.Concurrency,
			logger:      logger,
		},
		interval:   opts.Interval,
		runOnStart: opts.RunOnStart,
		logger:     logger,
	}
}

// RunOnce triages every account. A pass already in progress is not overlapped.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("Previous pass still running, skipping")
		return nil
	}
	defer s.running.Store(false)

	start := time.Now()
	_, err := s.pass.run(ctx)
	if err != nil {
		s.logger.Error("Pass finished with errors", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return err
	}
	s.logger.Info("Pass finished", zap.Int("accounts", len(s.pass.accounts)), zap.Duration("duration", time.Since(start)))
	return nil
}

// Start starts the schedule in the background
func (s *Scheduler) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("Scheduler starting",
		zap.Duration("interval", s.interval),
		zap.Int("accounts", len(s.pass.accounts)))

	go s.loop(ctx)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	if s.runOnStart {
		s.RunOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels any in-flight pass and waits for it to finish
func (s *Scheduler) Stop() error {
	s.stopOnce.Do(func() {
		if s.cancel == nil {
			return
		}
		s.cancel()
		<-s.done
		s.logger.Info("Scheduler stopped")
	})
	return nil
}
