package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/hireboard/internal/clock"
	jobrepo "github.com/smallbiznis/hireboard/internal/job/repository"
	obsmetrics "github.com/smallbiznis/hireboard/internal/observability/metrics"
	purchaserepo "github.com/smallbiznis/hireboard/internal/purchase/repository"
	"github.com/smallbiznis/hireboard/internal/ratelimit"
	"github.com/smallbiznis/hireboard/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "hireboard",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(baseTime), cfg: DefaultConfig()}
	err = s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "hireboard",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, 1.0, getCounterValue(t, registry, "hireboard_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "hireboard",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, 1.0, getCounterValue(t, registry, "hireboard_scheduler_job_errors_total", errorLabels))
}

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	return &fixture{db: dbtest.Open(t), node: node, clock: clock.NewFakeClock(baseTime)}
}

func (f *fixture) scheduler(t *testing.T, cfg Config, locker *ratelimit.Locker) *Scheduler {
	t.Helper()
	s, err := New(Params{
		DB:        f.db,
		Log:       zap.NewNop(),
		GenID:     f.node,
		Clock:     f.clock,
		Purchases: purchaserepo.Provide(),
		Jobs:      jobrepo.Provide(),
		Locker:    locker,
		Config:    cfg,
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) purchase(t *testing.T, status string, createdAt time.Time) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Exec(
		`INSERT INTO purchases (id, user_id, external_session_id, kind, pack_id, status, currency, created_at, updated_at)
		 VALUES (?, ?, ?, 'credit_pack', 'single', ?, 'usd', ?, ?)`,
		id, f.node.Generate(), "cs_"+id.String(), status, createdAt, createdAt,
	).Error)
	return id
}

func (f *fixture) purchaseStatus(t *testing.T, id snowflake.ID) string {
	t.Helper()
	var status string
	require.NoError(t, f.db.Raw(`SELECT status FROM purchases WHERE id = ?`, id).Scan(&status).Error)
	return status
}

func (f *fixture) job(t *testing.T, status string, expiresAt time.Time) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Exec(
		`INSERT INTO jobs (id, owner_id, title, status, source, expires_at, created_at, updated_at)
		 VALUES (?, ?, 'Prep cook', ?, 'paid', ?, ?, ?)`,
		id, f.node.Generate(), status, expiresAt, baseTime, baseTime,
	).Error)
	return id
}

func (f *fixture) jobStatus(t *testing.T, id snowflake.ID) string {
	t.Helper()
	var status string
	require.NoError(t, f.db.Raw(`SELECT status FROM jobs WHERE id = ?`, id).Scan(&status).Error)
	return status
}

func TestAbandonStalePendingMarksOnlyOldPending(t *testing.T) {
	f := newFixture(t)
	stale := []snowflake.ID{
		f.purchase(t, "pending", baseTime.Add(-48*time.Hour)),
		f.purchase(t, "pending", baseTime.Add(-30*time.Hour)),
		f.purchase(t, "pending", baseTime.Add(-25*time.Hour)),
	}
	fresh := f.purchase(t, "pending", baseTime.Add(-time.Hour))
	completed := f.purchase(t, "completed", baseTime.Add(-72*time.Hour))

	// A batch size below the backlog forces several passes.
	s := f.scheduler(t, Config{BatchSize: 2, PendingAfter: 24 * time.Hour}, nil)
	require.NoError(t, s.RunOnce(context.Background()))

	for _, id := range stale {
		assert.Equal(t, "abandoned", f.purchaseStatus(t, id))
	}
	assert.Equal(t, "pending", f.purchaseStatus(t, fresh))
	assert.Equal(t, "completed", f.purchaseStatus(t, completed))
}

func TestExpireListingsFlipsClosedWindows(t *testing.T) {
	f := newFixture(t)
	closed := f.job(t, "active", baseTime.Add(-time.Minute))
	open := f.job(t, "active", baseTime.Add(time.Hour))
	inactive := f.job(t, "inactive", baseTime.Add(-time.Hour))

	s := f.scheduler(t, Config{EnabledJobs: []string{JobExpireListings}}, nil)
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, "expired", f.jobStatus(t, closed))
	assert.Equal(t, "active", f.jobStatus(t, open))
	assert.Equal(t, "inactive", f.jobStatus(t, inactive))
}

func TestRunOnceSkipsWhenLockHeldElsewhere(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "hireboard", Environment: "test"})

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	stale := f.purchase(t, "pending", baseTime.Add(-48*time.Hour))
	require.NoError(t, mr.Set("hireboard:lock:"+lockKeyPrefix+JobAbandonStalePending, "other-replica"))

	s := f.scheduler(t, Config{EnabledJobs: []string{JobAbandonStalePending}}, ratelimit.NewLocker(client))
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, "pending", f.purchaseStatus(t, stale))
	assert.Equal(t, 1.0, getCounterValue(t, registry, "hireboard_scheduler_job_skipped_total", map[string]string{
		"service": "hireboard",
		"env":     "test",
		"job":     JobAbandonStalePending,
		"reason":  obsmetrics.SchedulerSkipReasonLockHeld,
	}))

	// Once the other holder lets go the job runs and releases its own lock.
	mr.Del("hireboard:lock:" + lockKeyPrefix + JobAbandonStalePending)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, "abandoned", f.purchaseStatus(t, stale))
	assert.False(t, mr.Exists("hireboard:lock:"+lockKeyPrefix+JobAbandonStalePending))
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
