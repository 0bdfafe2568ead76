package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	addondomain "github.com/smallbiznis/hireboard/internal/addon/domain"
	addonrepo "github.com/smallbiznis/hireboard/internal/addon/repository"
	"github.com/smallbiznis/hireboard/internal/analytics"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/smallbiznis/hireboard/internal/clock"
	"github.com/smallbiznis/hireboard/internal/config"
	creditdomain "github.com/smallbiznis/hireboard/internal/credit/domain"
	creditrepo "github.com/smallbiznis/hireboard/internal/credit/repository"
	creditservice "github.com/smallbiznis/hireboard/internal/credit/service"
	"github.com/smallbiznis/hireboard/internal/gate/domain"
	"github.com/smallbiznis/hireboard/internal/gate/service"
	jobdomain "github.com/smallbiznis/hireboard/internal/job/domain"
	jobrepo "github.com/smallbiznis/hireboard/internal/job/repository"
	"github.com/smallbiznis/hireboard/internal/queue"
	"github.com/smallbiznis/hireboard/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

var errJobWrite = errors.New("job write failed")

// failingJobs wraps the real repository and fails every write.
type failingJobs struct {
	jobdomain.Repository
}

func (failingJobs) Insert(ctx context.Context, tx *gorm.DB, job *jobdomain.Job) error {
	return errJobWrite
}

func (failingJobs) Repost(ctx context.Context, tx *gorm.DB, id snowflake.ID, expiresAt, now time.Time) error {
	return errJobWrite
}

func (failingJobs) SetFlags(ctx context.Context, tx *gorm.DB, id snowflake.ID, flags jobdomain.Flags, now time.Time) error {
	return errJobWrite
}

type recordingQueue struct {
	mu       sync.Mutex
	posts    []queue.PromotionalPost
	matching []queue.JobMatching
}

func (q *recordingQueue) EnqueuePromotionalPost(ctx context.Context, task queue.PromotionalPost) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.posts = append(q.posts, task)
	return nil
}

func (q *recordingQueue) EnqueueJobMatching(ctx context.Context, task queue.JobMatching) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.matching = append(q.matching, task)
	return nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recordingTracker) Track(ctx context.Context, event analytics.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	credits creditdomain.Service
	jobs    jobdomain.Repository
	grants  addondomain.Repository
	queue   *recordingQueue
	tracker *recordingTracker
	svc     domain.Service
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithJobs(t, nil)
}

func newFixtureWithJobs(t *testing.T, wrap func(jobdomain.Repository) jobdomain.Repository) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	fc := clock.NewFakeClock(baseTime)
	log := zap.NewNop()

	f := &fixture{
		db:    db,
		node:  node,
		clock: fc,
		credits: creditservice.New(creditservice.Params{
			DB: db, Log: log, GenID: node, Clock: fc, Repo: creditrepo.Provide(),
		}),
		jobs:    jobrepo.Provide(),
		grants:  addonrepo.Provide(),
		queue:   &recordingQueue{},
		tracker: &recordingTracker{},
	}
	jobs := f.jobs
	if wrap != nil {
		jobs = wrap(jobs)
	}

	var cfg config.Config
	cfg.Jobs.FreeWindowDays = 30
	cfg.Jobs.PaidWindowDays = 60
	f.svc = service.New(service.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   fc,
		Cfg:     cfg,
		Credits: f.credits,
		Jobs:    jobs,
		Grants:  f.grants,
		Queue:   f.queue,
		Tracker: f.tracker,
	})
	return f
}

func (f *fixture) mint(t *testing.T, userID snowflake.ID, creditType catalogdomain.CreditType, n int) {
	t.Helper()
	_, err := f.credits.MintForPurchase(context.Background(), f.db, creditdomain.MintRequest{
		UserID:     userID,
		PurchaseID: f.node.Generate(),
		Counts:     map[catalogdomain.CreditType]int{creditType: n},
		IssuedAt:   f.clock.Now(),
		ExpiresAt:  f.clock.Now().AddDate(0, 0, 90),
	})
	require.NoError(t, err)
}

func (f *fixture) available(t *testing.T, userID snowflake.ID, creditType catalogdomain.CreditType) int {
	t.Helper()
	lines, err := f.credits.Balance(context.Background(), userID)
	require.NoError(t, err)
	for _, line := range lines {
		if line.CreditType == creditType {
			return int(line.Available)
		}
	}
	return 0
}

func (f *fixture) insertJob(t *testing.T, ownerID snowflake.ID, status jobdomain.JobStatus, expiresAt time.Time) *jobdomain.Job {
	t.Helper()
	now := f.clock.Now()
	job := &jobdomain.Job{
		ID:        f.node.Generate(),
		OwnerID:   ownerID,
		Title:     "Line cook",
		Status:    status,
		Source:    jobdomain.JobSourcePaid,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.jobs.Insert(context.Background(), f.db, job))
	return job
}

func (f *fixture) insertGrant(t *testing.T, userID snowflake.ID, active bool, expiresAt time.Time, effects ...catalogdomain.Effect) *addondomain.Grant {
	t.Helper()
	grant := &addondomain.Grant{
		ID:         f.node.Generate(),
		UserID:     userID,
		AddOnID:    "spotlight",
		PurchaseID: f.node.Generate(),
		Effects:    addondomain.EncodeEffects(effects),
		Active:     active,
		CreatedAt:  f.clock.Now(),
		ExpiresAt:  expiresAt,
	}
	inserted, err := f.grants.InsertGrant(context.Background(), f.db, grant)
	require.NoError(t, err)
	require.True(t, inserted)
	return grant
}

func (f *fixture) countJobs(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM jobs`).Scan(&n).Error)
	return n
}

func TestPublishJobSpendsOneCredit(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	f.mint(t, userID, catalogdomain.CreditTypeJobPost, 2)

	job, err := f.svc.PublishJob(context.Background(), domain.PublishJobRequest{
		UserID: userID,
		Title:  "  Barista  ",
	})
	require.NoError(t, err)

	assert.Equal(t, "Barista", job.Title)
	assert.Equal(t, jobdomain.JobStatusActive, job.Status)
	assert.Equal(t, jobdomain.JobSourcePaid, job.Source)
	require.NotNil(t, job.ExpiresAt)
	assert.True(t, job.ExpiresAt.Equal(baseTime.AddDate(0, 0, 60)))
	assert.Equal(t, 1, f.available(t, userID, catalogdomain.CreditTypeJobPost))

	var usedAgainst int64
	require.NoError(t, f.db.Raw(
		`SELECT used_against_job_id FROM credit_units WHERE user_id = ? AND used = TRUE`, userID,
	).Scan(&usedAgainst).Error)
	assert.Equal(t, job.ID.Int64(), usedAgainst)
}

func TestPublishJobUsesFreeWindow(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	f.mint(t, userID, catalogdomain.CreditTypeJobPost, 1)

	job, err := f.svc.PublishJob(context.Background(), domain.PublishJobRequest{
		UserID: userID,
		Title:  "Dishwasher",
		Source: jobdomain.JobSourceFree,
	})
	require.NoError(t, err)
	require.NotNil(t, job.ExpiresAt)
	assert.True(t, job.ExpiresAt.Equal(baseTime.AddDate(0, 0, 30)))
}

func TestPublishJobWithoutCreditsCreatesNothing(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()

	_, err := f.svc.PublishJob(context.Background(), domain.PublishJobRequest{UserID: userID, Title: "Host"})
	require.ErrorIs(t, err, creditdomain.ErrInsufficientCredits)
	assert.Zero(t, f.countJobs(t))
}

func TestPublishJobValidatesInput(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	f.mint(t, userID, catalogdomain.CreditTypeJobPost, 1)

	_, err := f.svc.PublishJob(context.Background(), domain.PublishJobRequest{UserID: userID, Title: "   "})
	assert.ErrorIs(t, err, jobdomain.ErrInvalidTitle)

	_, err = f.svc.PublishJob(context.Background(), domain.PublishJobRequest{UserID: userID, Title: "Chef", Source: "barter"})
	assert.ErrorIs(t, err, jobdomain.ErrInvalidSource)

	assert.Equal(t, 1, f.available(t, userID, catalogdomain.CreditTypeJobPost))
}

func TestPublishJobRollsBackCreditWhenJobWriteFails(t *testing.T) {
	f := newFixtureWithJobs(t, func(r jobdomain.Repository) jobdomain.Repository {
		return failingJobs{Repository: r}
	})
	userID := f.node.Generate()
	f.mint(t, userID, catalogdomain.CreditTypeJobPost, 1)

	_, err := f.svc.PublishJob(context.Background(), domain.PublishJobRequest{UserID: userID, Title: "Server"})
	require.ErrorIs(t, err, errJobWrite)

	assert.Equal(t, 1, f.available(t, userID, catalogdomain.CreditTypeJobPost))
	assert.Zero(t, f.countJobs(t))
}

func TestRepostJobRejectsLiveJob(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	f.mint(t, userID, catalogdomain.CreditTypeJobPost, 1)
	job := f.insertJob(t, userID, jobdomain.JobStatusActive, baseTime.Add(24*time.Hour))

	_, err := f.svc.RepostJob(context.Background(), domain.RepostJobRequest{UserID: userID, JobID: job.ID})
	require.ErrorIs(t, err, jobdomain.ErrJobStillActive)
	assert.Equal(t, 1, f.available(t, userID, catalogdomain.CreditTypeJobPost))
}

func TestRepostJobRenewsExpiredListing(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	f.mint(t, userID, catalogdomain.CreditTypeJobPost, 2)
	job := f.insertJob(t, userID, jobdomain.JobStatusActive, baseTime.Add(-time.Hour))

	reposted, err := f.svc.RepostJob(context.Background(), domain.RepostJobRequest{UserID: userID, JobID: job.ID})
	require.NoError(t, err)
	assert.Equal(t, jobdomain.JobStatusActive, reposted.Status)
	assert.Equal(t, 1, reposted.RepostCount)
	require.NotNil(t, reposted.ExpiresAt)
	assert.True(t, reposted.ExpiresAt.Equal(baseTime.AddDate(0, 0, 60)))
	assert.Equal(t, 1, f.available(t, userID, catalogdomain.CreditTypeJobPost))

	// Each repost of an expired listing spends a fresh credit.
	f.clock.Advance(61 * 24 * time.Hour)
	reposted, err = f.svc.RepostJob(context.Background(), domain.RepostJobRequest{UserID: userID, JobID: job.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, reposted.RepostCount)
	assert.Zero(t, f.available(t, userID, catalogdomain.CreditTypeJobPost))
}

func TestRepostJobChecksOwnershipAndExistence(t *testing.T) {
	f := newFixture(t)
	owner := f.node.Generate()
	other := f.node.Generate()
	f.mint(t, other, catalogdomain.CreditTypeJobPost, 1)
	job := f.insertJob(t, owner, jobdomain.JobStatusExpired, baseTime.Add(-time.Hour))

	_, err := f.svc.RepostJob(context.Background(), domain.RepostJobRequest{UserID: other, JobID: job.ID})
	assert.ErrorIs(t, err, jobdomain.ErrOwnershipMismatch)

	_, err = f.svc.RepostJob(context.Background(), domain.RepostJobRequest{UserID: other, JobID: f.node.Generate()})
	assert.ErrorIs(t, err, jobdomain.ErrJobNotFound)

	assert.Equal(t, 1, f.available(t, other, catalogdomain.CreditTypeJobPost))
}

func TestRepostJobRollsBackCreditWhenJobWriteFails(t *testing.T) {
	f := newFixtureWithJobs(t, func(r jobdomain.Repository) jobdomain.Repository {
		return failingJobs{Repository: r}
	})
	userID := f.node.Generate()
	f.mint(t, userID, catalogdomain.CreditTypeJobPost, 1)
	job := f.insertJob(t, userID, jobdomain.JobStatusInactive, baseTime.Add(-time.Hour))

	_, err := f.svc.RepostJob(context.Background(), domain.RepostJobRequest{UserID: userID, JobID: job.ID})
	require.ErrorIs(t, err, errJobWrite)
	assert.Equal(t, 1, f.available(t, userID, catalogdomain.CreditTypeJobPost))
}

func TestFeatureJobIsIdempotent(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	f.mint(t, userID, catalogdomain.CreditTypeFeature, 2)
	job := f.insertJob(t, userID, jobdomain.JobStatusActive, baseTime.Add(48*time.Hour))

	first, err := f.svc.FeatureJob(context.Background(), domain.FeatureJobRequest{UserID: userID, JobID: job.ID})
	require.NoError(t, err)
	assert.False(t, first.AlreadyFeatured)
	assert.True(t, first.Job.Featured)
	assert.NotNil(t, first.Job.FeaturedAt)

	second, err := f.svc.FeatureJob(context.Background(), domain.FeatureJobRequest{UserID: userID, JobID: job.ID})
	require.NoError(t, err)
	assert.True(t, second.AlreadyFeatured)

	assert.Equal(t, 1, f.available(t, userID, catalogdomain.CreditTypeFeature))
	require.Len(t, f.queue.matching, 1)
	assert.Equal(t, job.ID.String(), f.queue.matching[0].JobID)
	require.Len(t, f.tracker.events, 1)
	assert.Equal(t, analytics.EventFeatureActivated, f.tracker.events[0].Name)
}

func TestFeatureJobRequiresLiveJobAndCredit(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	expired := f.insertJob(t, userID, jobdomain.JobStatusActive, baseTime.Add(-time.Minute))
	live := f.insertJob(t, userID, jobdomain.JobStatusActive, baseTime.Add(time.Hour))

	_, err := f.svc.FeatureJob(context.Background(), domain.FeatureJobRequest{UserID: userID, JobID: expired.ID})
	assert.ErrorIs(t, err, jobdomain.ErrJobNotActive)

	_, err = f.svc.FeatureJob(context.Background(), domain.FeatureJobRequest{UserID: userID, JobID: live.ID})
	assert.ErrorIs(t, err, creditdomain.ErrInsufficientCredits)
	assert.Empty(t, f.queue.matching)
}

func TestFeatureJobRollsBackCreditWhenFlagWriteFails(t *testing.T) {
	f := newFixtureWithJobs(t, func(r jobdomain.Repository) jobdomain.Repository {
		return failingJobs{Repository: r}
	})
	userID := f.node.Generate()
	f.mint(t, userID, catalogdomain.CreditTypeFeature, 1)
	job := f.insertJob(t, userID, jobdomain.JobStatusActive, baseTime.Add(time.Hour))

	_, err := f.svc.FeatureJob(context.Background(), domain.FeatureJobRequest{UserID: userID, JobID: job.ID})
	require.ErrorIs(t, err, errJobWrite)
	assert.Equal(t, 1, f.available(t, userID, catalogdomain.CreditTypeFeature))
	assert.Empty(t, f.queue.matching)
}

func TestApplyAddOnSetsFlagsOncePerJob(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	grant := f.insertGrant(t, userID, true, baseTime.AddDate(0, 0, 30),
		catalogdomain.EffectBoost, catalogdomain.EffectPin, catalogdomain.EffectSocialPush)
	first := f.insertJob(t, userID, jobdomain.JobStatusActive, baseTime.Add(time.Hour))
	second := f.insertJob(t, userID, jobdomain.JobStatusActive, baseTime.Add(time.Hour))

	res, err := f.svc.ApplyAddOn(context.Background(), domain.ApplyAddOnRequest{UserID: userID, GrantID: grant.ID, JobID: first.ID})
	require.NoError(t, err)
	assert.True(t, res.Job.Boosted)
	assert.True(t, res.Job.Pinned)
	assert.True(t, res.Job.SocialPush)
	assert.False(t, res.Job.Featured)
	require.NotNil(t, res.Application)
	assert.Equal(t, grant.ID, res.Application.GrantID)

	_, err = f.svc.ApplyAddOn(context.Background(), domain.ApplyAddOnRequest{UserID: userID, GrantID: grant.ID, JobID: first.ID})
	assert.ErrorIs(t, err, addondomain.ErrAddonAlreadyApplied)

	_, err = f.svc.ApplyAddOn(context.Background(), domain.ApplyAddOnRequest{UserID: userID, GrantID: grant.ID, JobID: second.ID})
	require.NoError(t, err)

	require.Len(t, f.queue.posts, 2)
	assert.Equal(t, first.ID.String(), f.queue.posts[0].JobID)
	require.Len(t, f.tracker.events, 2)
	assert.Equal(t, analytics.EventAddOnApplied, f.tracker.events[0].Name)
}

func TestApplyAddOnRejectsUnusableGrants(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	other := f.node.Generate()
	job := f.insertJob(t, userID, jobdomain.JobStatusActive, baseTime.Add(time.Hour))

	inactive := f.insertGrant(t, userID, false, baseTime.AddDate(0, 0, 30), catalogdomain.EffectBoost)
	expired := f.insertGrant(t, userID, true, baseTime, catalogdomain.EffectBoost)
	foreign := f.insertGrant(t, other, true, baseTime.AddDate(0, 0, 30), catalogdomain.EffectBoost)

	cases := []struct {
		name    string
		grantID snowflake.ID
		want    error
	}{
		{name: "missing", grantID: f.node.Generate(), want: addondomain.ErrGrantNotFound},
		{name: "inactive", grantID: inactive.ID, want: addondomain.ErrGrantInactive},
		{name: "expired", grantID: expired.ID, want: addondomain.ErrGrantExpired},
		{name: "foreign", grantID: foreign.ID, want: jobdomain.ErrOwnershipMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.ApplyAddOn(context.Background(), domain.ApplyAddOnRequest{
				UserID:  userID,
				GrantID: tc.grantID,
				JobID:   job.ID,
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	var apps int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM add_on_applications`).Scan(&apps).Error)
	assert.Zero(t, apps)
}

func TestApplyAddOnRejectsForeignJob(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	grant := f.insertGrant(t, userID, true, baseTime.AddDate(0, 0, 30), catalogdomain.EffectBoost)
	job := f.insertJob(t, f.node.Generate(), jobdomain.JobStatusActive, baseTime.Add(time.Hour))

	_, err := f.svc.ApplyAddOn(context.Background(), domain.ApplyAddOnRequest{UserID: userID, GrantID: grant.ID, JobID: job.ID})
	assert.ErrorIs(t, err, jobdomain.ErrOwnershipMismatch)
}

func TestApplyAddOnRollsBackApplicationWhenFlagWriteFails(t *testing.T) {
	f := newFixtureWithJobs(t, func(r jobdomain.Repository) jobdomain.Repository {
		return failingJobs{Repository: r}
	})
	userID := f.node.Generate()
	grant := f.insertGrant(t, userID, true, baseTime.AddDate(0, 0, 30), catalogdomain.EffectSocialPush)
	job := f.insertJob(t, userID, jobdomain.JobStatusActive, baseTime.Add(time.Hour))

	_, err := f.svc.ApplyAddOn(context.Background(), domain.ApplyAddOnRequest{UserID: userID, GrantID: grant.ID, JobID: job.ID})
	require.ErrorIs(t, err, errJobWrite)

	applied, err := f.grants.HasApplication(context.Background(), f.db, grant.ID, job.ID)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, f.queue.posts)
}
