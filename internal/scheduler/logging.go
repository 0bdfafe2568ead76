package scheduler

import (
	"context"
	"sort"
	"time"

	obscontext "github.com/smallbiznis/hireboard/internal/observability/context"
	obslogger "github.com/smallbiznis/hireboard/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/hireboard/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun accumulates what one sweep touched, keyed by table.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time
	touched   map[string]int
	errors    int
}

type jobRunKey struct{}

func (s *Scheduler) startRun(ctx context.Context, job string) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
		touched:   map[string]int{},
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	// The run id doubles as the request id so gorm and audit lines correlate.
	ctx = obscontext.WithRequestID(ctx, run.runID)

	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", job),
		zap.Int("batch_size", s.cfg.BatchSize),
	)
	return ctx, run
}

func jobRunFromContext(ctx context.Context) *jobRun {
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

// record counts rows moved in table and exports the batch size.
func (r *jobRun) record(table string, rows int64) {
	if r == nil || rows <= 0 {
		return
	}
	r.touched[table] += int(rows)
	obsmetrics.Scheduler().AddBatchProcessed(r.job, table, int(rows))
}

func (s *Scheduler) finishRun(ctx context.Context, run *jobRun, err error) {
	if err != nil && run.errors == 0 {
		run.errors++
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("error_count", run.errors),
	}
	tables := make([]string, 0, len(run.touched))
	for table := range run.touched {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		fields = append(fields, zap.Int(table+"_count", run.touched[table]))
	}

	if run.errors > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) jobFailed(ctx context.Context, msg string, err error, fields ...zap.Field) {
	run := jobRunFromContext(ctx)
	job := ""
	if run != nil {
		run.errors++
		job = run.job
	}
	s.logger(ctx).Error(msg, append([]zap.Field{
		zap.String("job", job),
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Error(err),
	}, fields...)...)
}
