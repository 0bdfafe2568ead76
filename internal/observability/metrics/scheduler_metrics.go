package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonUnknown              = "unknown"

	SchedulerSkipReasonLockHeld = "lock_held"
)

// pgReasons maps postgres SQLSTATE codes a sweep can hit to failure reasons.
var pgReasons = map[string]string{
	"55P03": SchedulerJobReasonDBLockTimeout,
	"40001": SchedulerJobReasonSerializationFailure,
	"23505": SchedulerJobReasonUniqueViolation,
}

// SchedulerMetrics tracks sweeper health in prometheus.
type SchedulerMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	timeouts *prometheus.CounterVec
	failures *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	rows     *prometheus.CounterVec
}

var (
	schedulerOnce sync.Once
	scheduler     *SchedulerMetrics
)

// Scheduler returns the process-wide scheduler metrics.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the process-wide scheduler metrics. Only the
// first call's labels take effect.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerOnce.Do(func() {
		scheduler = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return scheduler
}

func ResetSchedulerMetricsForTest() {
	schedulerOnce = sync.Once{}
	scheduler = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := serviceLabels(cfg)
	counter := func(name, help string, dims ...string) *prometheus.CounterVec {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "hireboard_scheduler_" + name,
			Help:        help,
			ConstLabels: labels,
		}, dims)
		return registerOrExisting(registerer, vec).(*prometheus.CounterVec)
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "hireboard_scheduler_job_duration_seconds",
		Help:        "Wall time of one sweep.",
		ConstLabels: labels,
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"job"})

	return &SchedulerMetrics{
		runs:     counter("job_runs_total", "Sweeps started.", "job"),
		duration: registerOrExisting(registerer, duration).(*prometheus.HistogramVec),
		timeouts: counter("job_timeouts_total", "Sweeps cut off by their deadline.", "job"),
		failures: counter("job_errors_total", "Failed sweeps by reason.", "job", "reason"),
		skipped:  counter("job_skipped_total", "Sweeps skipped before doing any work.", "job", "reason"),
		rows:     counter("batch_processed_total", "Rows changed by sweeps.", "job", "resource"),
	}
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.runs.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m != nil {
		m.duration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.timeouts.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m != nil && err != nil {
		m.failures.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
	}
}

func (m *SchedulerMetrics) IncJobSkipped(job, reason string) {
	if m != nil {
		m.skipped.WithLabelValues(job, reason).Inc()
	}
}

// AddBatchProcessed counts rows a sweep changed in one table.
func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m != nil && count > 0 {
		m.rows.WithLabelValues(job, resource).Add(float64(count))
	}
}

// ClassifySchedulerJobReason turns a sweep error into a bounded label value.
func ClassifySchedulerJobReason(err error) string {
	if err == nil {
		return SchedulerJobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SchedulerJobReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return SchedulerJobReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if reason, ok := pgReasons[pgErr.Code]; ok {
			return reason
		}
	}
	return SchedulerJobReasonUnknown
}
