// Package scheduler runs the assignment expiry sweep on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scopedrbac/internal/rbac/util"

	"github.com/robfig/cron/v3"
)

type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

type Options struct {
	// Schedule is a cron spec or descriptor such as "@every 5m".
	Schedule string
	// Timeout bounds one run including retries.
	Timeout time.Duration
	Retry   util.RetryPolicy
	Logger  *slog.Logger
}

// SweepScheduler triggers Sweeper on a schedule. Overlapping runs are skipped.
type SweepScheduler struct {
	sweeper  Sweeper
	schedule string
	timeout  time.Duration
	retry    util.RetryPolicy
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	running bool
}

func New(sweeper Sweeper, opts Options) *SweepScheduler {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if opts.Retry == (util.RetryPolicy{}) {
		opts.Retry = util.DefaultRetryPolicy
	}
	return &SweepScheduler{
		sweeper:  sweeper,
		schedule: opts.Schedule,
		timeout:  opts.Timeout,
		retry:    opts.Retry,
		logger:   util.OrDefault(opts.Logger),
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start registers the sweep job and starts the cron loop.
func (s *SweepScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("sweep scheduler already running")
	}

	entry, err := s.cron.AddFunc(s.schedule, func() {
		_, _ = s.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.entry = entry
	s.cron.Start()
	s.running = true

	s.logger.Info("sweep scheduler started", "schedule", s.schedule, "next_run", s.cron.Entry(entry).Next)
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish or ctx to end.
func (s *SweepScheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cron.Remove(s.entry)
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.Info("sweep scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("sweep scheduler stop timed out")
	}
}

// RunOnce sweeps now. Dependency failures are retried; the sweep is safe to
// repeat because each expiry is conditional.
func (s *SweepScheduler) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	total := 0
	err := util.RetryIdempotent(ctx, s.retry, func(ctx context.Context) error {
		n, err := s.sweeper.SweepExpired(ctx)
		total += n
		return err
	})
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err, "expired", total)
		return total, err
	}
	s.logger.Debug("expiry sweep finished", "expired", total)
	return total, nil
}
