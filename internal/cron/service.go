package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/metrics"
)

const defaultTick = time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Schedule *Schedule
	Lock     Lock
	Ledger   RunLedger
	Metrics  *metrics.CronJobMetrics
	Tick     time.Duration
	Now      func() time.Time
}

// Service wakes every tick, takes the worker lock and runs whichever
// scheduled jobs are due. One failing job does not stop the rest of the tick.
type Service struct {
	logg     *logger.Logger
	schedule *Schedule
	lock     Lock
	ledger   RunLedger
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	if params.Schedule == nil || len(params.Schedule.Entries()) == 0 {
		return nil, fmt.Errorf("at least one scheduled job required")
	}
	ledger := params.Ledger
	if ledger == nil {
		ledger = NewMemoryRunLedger()
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		schedule: params.Schedule,
		lock:     params.Lock,
		ledger:   ledger,
		metrics:  params.Metrics,
		tick:     tick,
		now:      now,
	}, nil
}

// Run ticks immediately and then every Tick until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil {
			s.logg.Error(ctx, "cron.tick.failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs the due jobs once. It returns the combined job failures.
func (s *Service) Tick(ctx context.Context) error {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire worker lock: %w", err)
	}
	if !held {
		s.metrics.CycleSkipped("lock_held")
		s.logg.Info(ctx, "cron.tick.skipped: another replica holds the worker lock")
		return nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron.lock.release_failed", err)
		}
	}()

	due, err := s.schedule.Due(ctx, s.ledger, s.now())
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	var errs error
	for _, entry := range due {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		errs = multierr.Append(errs, s.runJob(ctx, entry.Job))
	}
	return errs
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx := s.logg.WithJob(ctx, name)
	started := s.now()
	if err := s.ledger.MarkRun(jobCtx, name, started); err != nil {
		s.logg.Warn(s.logg.WithField(jobCtx, "error", err.Error()), "cron.job.mark_failed")
	}

	err := job.Run(jobCtx)
	took := s.now().Sub(started)
	s.metrics.Observe(name, took, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logg.Warn(jobCtx, "cron.job.canceled")
		} else {
			s.logg.Error(jobCtx, "cron.job.failed", err)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	s.logg.Info(jobCtx, "cron.job.completed")
	return nil
}
