package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/clock"
	jobdomain "github.com/smallbiznis/hireboard/internal/job/domain"
	obsmetrics "github.com/smallbiznis/hireboard/internal/observability/metrics"
	purchasedomain "github.com/smallbiznis/hireboard/internal/purchase/domain"
	"github.com/smallbiznis/hireboard/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobAbandonStalePending = "abandon_stale_pending"
	JobExpireListings      = "expire_listings"

	lockKeyPrefix = "scheduler:"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Purchases purchasedomain.Repository
	Jobs      jobdomain.Repository
	Locker    *ratelimit.Locker `optional:"true"`
	Config    Config            `optional:"true"`
}

type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	purchases purchasedomain.Repository
	jobs      jobdomain.Repository
	locker    *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Purchases == nil || p.Jobs == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		purchases: p.Purchases,
		jobs:      p.Jobs,
		locker:    p.Locker,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	schedMetrics := obsmetrics.Scheduler()

	release, ok := s.acquire(parent, name)
	if !ok {
		schedMetrics.IncJobSkipped(name, obsmetrics.SchedulerSkipReasonLockHeld)
		s.log.Debug("job skipped; lock held elsewhere", zap.String("job", name))
		return nil
	}
	defer release()

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	ctx, run := s.startRun(ctx, name)
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(run.startedAt))
	s.finishRun(ctx, run, err)
	if err == nil {
		return nil
	}

	schedMetrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		s.logger(ctx).Warn("job timed out", zap.String("job", name), zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// acquire takes the per-job lease when a locker is configured. Without
// redis every replica runs the job; the batch updates are idempotent.
func (s *Scheduler) acquire(ctx context.Context, name string) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	lease, err := s.locker.Acquire(ctx, lockKeyPrefix+name, s.cfg.LockTTL)
	switch {
	case errors.Is(err, ratelimit.ErrLockHeld):
		return nil, false
	case err != nil:
		s.log.Warn("scheduler lock unavailable; running unlocked", zap.String("job", name), zap.Error(err))
		return func() {}, true
	}
	return func() {
		if err := lease.Release(context.Background()); err != nil {
			s.log.Warn("scheduler lock release failed", zap.String("job", name), zap.Error(err))
		}
	}, true
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobAbandonStalePending, func(ctx context.Context) error {
			return s.runJob(ctx, JobAbandonStalePending, 30*time.Second, s.AbandonStalePendingJob)
		}},
		{JobExpireListings, func(ctx context.Context) error {
			return s.runJob(ctx, JobExpireListings, 30*time.Second, s.ExpireListingsJob)
		}},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// AbandonStalePendingJob marks pending purchases older than PendingAfter as
// abandoned. Abandoned purchases stay fulfillable if payment arrives late.
func (s *Scheduler) AbandonStalePendingJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.cfg.PendingAfter)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.purchases.MarkAbandoned(ctx, s.db, cutoff, s.cfg.BatchSize, now)
		if err != nil {
			s.jobFailed(ctx, "scheduler.abandon_pending.failed", err, zap.Time("created_before", cutoff))
			return err
		}
		run.record("purchases", n)
		if n > 0 {
			s.logger(ctx).Info("scheduler.purchases.abandoned",
				zap.Int64("count", n),
				zap.Time("created_before", cutoff),
			)
		}
		if n < int64(s.cfg.BatchSize) {
			return nil
		}
	}
}

// ExpireListingsJob moves active jobs past their window to expired so
// listings and reports read the stored status.
func (s *Scheduler) ExpireListingsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	now := s.clock.Now().UTC()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.jobs.MarkExpired(ctx, s.db, now, s.cfg.BatchSize)
		if err != nil {
			s.jobFailed(ctx, "scheduler.expire_listings.failed", err)
			return err
		}
		run.record("jobs", n)
		if n < int64(s.cfg.BatchSize) {
			return nil
		}
	}
}
