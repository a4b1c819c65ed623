package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

// Runner executes one run over a window
type Runner interface {
	Run(ctx context.Context, w Window) (*Report, error)
}

// Scheduler triggers a run on a cron schedule, each over
// [today-backfillDays, today]
type Scheduler struct {
	cron         *cron.Cron
	runner       Runner
	backfillDays int
	timeout      time.Duration
	logger       *zap.Logger
	now          func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler for a standard five field cron spec.
// timeout bounds a single run; zero means no bound.
func NewScheduler(spec string, runner Runner, backfillDays int, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:         cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner:       runner,
		backfillDays: backfillDays,
		timeout:      timeout,
		logger:       logger,
		now:          time.Now,
	}

	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start starts the scheduler in its own goroutine. A stopped scheduler can
// be started again.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.logger.Info("Scheduler started", zap.Int("backfill_days", s.backfillDays))
	s.cron.Start()
}

// Stop cancels a running run and waits for it to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// runContext returns the context of the current Start
func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Scheduler) tick() {
	ctx := s.runContext()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	w := TodayWindow(s.now(), s.backfillDays)
	if _, err := s.runner.Run(ctx, w); err != nil {
		if errors.Is(err, warehouse.ErrRunInProgress) {
			return
		}
		// already logged by the pipeline; the next tick retries
		s.logger.Debug("Scheduled run failed", zap.Stringer("window", w), zap.Error(err))
	}
}
