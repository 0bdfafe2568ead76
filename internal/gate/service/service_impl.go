package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	addondomain "github.com/smallbiznis/hireboard/internal/addon/domain"
	"github.com/smallbiznis/hireboard/internal/analytics"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/smallbiznis/hireboard/internal/clock"
	"github.com/smallbiznis/hireboard/internal/config"
	creditdomain "github.com/smallbiznis/hireboard/internal/credit/domain"
	"github.com/smallbiznis/hireboard/internal/gate/domain"
	jobdomain "github.com/smallbiznis/hireboard/internal/job/domain"
	obsmetrics "github.com/smallbiznis/hireboard/internal/observability/metrics"
	"github.com/smallbiznis/hireboard/internal/queue"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	gatePublish = "publish"
	gateRepost  = "repost"
	gateFeature = "feature"

	maxTitleLength = 200
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Credits    creditdomain.Service
	Jobs       jobdomain.Repository
	Grants     addondomain.Repository
	Queue      queue.Publisher     `optional:"true"`
	Tracker    analytics.Tracker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	freeWindow int
	paidWindow int
	credits    creditdomain.Service
	jobs       jobdomain.Repository
	grants     addondomain.Repository
	queue      queue.Publisher
	tracker    analytics.Tracker
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	publisher := p.Queue
	if publisher == nil {
		publisher = queue.Noop{}
	}
	tracker := p.Tracker
	if tracker == nil {
		tracker = analytics.Noop{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("gate.service"),
		genID:      p.GenID,
		clock:      c,
		freeWindow: positiveOr(p.Cfg.Jobs.FreeWindowDays, 30),
		paidWindow: positiveOr(p.Cfg.Jobs.PaidWindowDays, 60),
		credits:    p.Credits,
		jobs:       p.Jobs,
		grants:     p.Grants,
		queue:      publisher,
		tracker:    tracker,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) PublishJob(ctx context.Context, req domain.PublishJobRequest) (*jobdomain.Job, error) {
	if req.UserID == 0 {
		return nil, creditdomain.ErrInvalidUser
	}
	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > maxTitleLength {
		return nil, jobdomain.ErrInvalidTitle
	}
	source := req.Source
	if source == "" {
		source = jobdomain.JobSourcePaid
	}
	if source != jobdomain.JobSourceFree && source != jobdomain.JobSourcePaid {
		return nil, jobdomain.ErrInvalidSource
	}

	var job *jobdomain.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		jobID := s.genID.Generate()
		if _, err := s.credits.TryConsume(ctx, tx, creditdomain.ConsumeRequest{
			UserID:     req.UserID,
			CreditType: catalogdomain.CreditTypeJobPost,
			JobID:      jobID,
		}); err != nil {
			return err
		}

		expiresAt := catalogdomain.WindowEnd(now, s.window(source))
		job = &jobdomain.Job{
			ID:          jobID,
			OwnerID:     req.UserID,
			Title:       title,
			Status:      jobdomain.JobStatusActive,
			Source:      source,
			ExpiresAt:   &expiresAt,
			PublishedAt: &now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return s.jobs.Insert(ctx, tx, job)
	})
	if err != nil {
		s.rejected(ctx, catalogdomain.CreditTypeJobPost, gatePublish, err)
		return nil, err
	}

	s.obsMetrics.RecordCreditConsumed(ctx, string(catalogdomain.CreditTypeJobPost), gatePublish)
	s.log.Info("job published",
		zap.String("job_id", job.ID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("source", string(source)),
	)
	return job, nil
}

// RepostJob renews an expired or deactivated listing for one job_post credit.
func (s *Service) RepostJob(ctx context.Context, req domain.RepostJobRequest) (*jobdomain.Job, error) {
	var job *jobdomain.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		current, err := s.lockOwnedJob(ctx, tx, req.UserID, req.JobID)
		if err != nil {
			return err
		}
		if current.LiveAt(now) {
			return jobdomain.ErrJobStillActive
		}
		if current.Status == jobdomain.JobStatusDraft {
			return jobdomain.ErrJobNotActive
		}

		if _, err := s.credits.TryConsume(ctx, tx, creditdomain.ConsumeRequest{
			UserID:     req.UserID,
			CreditType: catalogdomain.CreditTypeJobPost,
			JobID:      current.ID,
		}); err != nil {
			return err
		}

		expiresAt := catalogdomain.WindowEnd(now, s.window(current.Source))
		if err := s.jobs.Repost(ctx, tx, current.ID, expiresAt, now); err != nil {
			return err
		}
		job, err = s.jobs.FindByID(ctx, tx, current.ID)
		return err
	})
	if err != nil {
		s.rejected(ctx, catalogdomain.CreditTypeJobPost, gateRepost, err)
		return nil, err
	}

	s.obsMetrics.RecordCreditConsumed(ctx, string(catalogdomain.CreditTypeJobPost), gateRepost)
	s.log.Info("job reposted",
		zap.String("job_id", job.ID.String()),
		zap.Int("repost_count", job.RepostCount),
	)
	return job, nil
}

// FeatureJob spends one feature credit to highlight an active job. Featuring
// an already featured job is a no-op and spends nothing.
func (s *Service) FeatureJob(ctx context.Context, req domain.FeatureJobRequest) (*domain.FeatureResult, error) {
	result := &domain.FeatureResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		current, err := s.lockOwnedJob(ctx, tx, req.UserID, req.JobID)
		if err != nil {
			return err
		}
		if !current.LiveAt(now) {
			return jobdomain.ErrJobNotActive
		}
		if current.Featured {
			result.Job = current
			result.AlreadyFeatured = true
			return nil
		}

		if _, err := s.credits.TryConsume(ctx, tx, creditdomain.ConsumeRequest{
			UserID:     req.UserID,
			CreditType: catalogdomain.CreditTypeFeature,
			JobID:      current.ID,
		}); err != nil {
			return err
		}
		if err := s.jobs.SetFlags(ctx, tx, current.ID, jobdomain.Flags{Featured: true}, now); err != nil {
			return err
		}
		result.Job, err = s.jobs.FindByID(ctx, tx, current.ID)
		return err
	})
	if err != nil {
		s.rejected(ctx, catalogdomain.CreditTypeFeature, gateFeature, err)
		return nil, err
	}
	if result.AlreadyFeatured {
		return result, nil
	}

	s.obsMetrics.RecordCreditConsumed(ctx, string(catalogdomain.CreditTypeFeature), gateFeature)
	jobID := result.Job.ID.String()
	userID := req.UserID.String()
	if err := s.queue.EnqueueJobMatching(ctx, queue.JobMatching{JobID: jobID, UserID: userID}); err != nil {
		s.log.Warn("enqueue job matching failed", zap.String("job_id", jobID), zap.Error(err))
	}
	s.track(ctx, userID, analytics.EventFeatureActivated, map[string]any{"job_id": jobID})
	return result, nil
}

// ApplyAddOn applies a grant's effects to one job. A grant applies to a
// given job at most once.
func (s *Service) ApplyAddOn(ctx context.Context, req domain.ApplyAddOnRequest) (*domain.ApplyResult, error) {
	result := &domain.ApplyResult{}
	var grant *addondomain.Grant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		var err error
		grant, err = s.grants.FindGrantForUpdate(ctx, tx, req.GrantID)
		if err != nil {
			return err
		}
		if grant == nil {
			return addondomain.ErrGrantNotFound
		}
		if grant.UserID != req.UserID {
			return jobdomain.ErrOwnershipMismatch
		}
		if !grant.Active {
			return addondomain.ErrGrantInactive
		}
		if !grant.ExpiresAt.After(now) {
			return addondomain.ErrGrantExpired
		}

		job, err := s.lockOwnedJob(ctx, tx, req.UserID, req.JobID)
		if err != nil {
			return err
		}

		applied, err := s.grants.HasApplication(ctx, tx, grant.ID, job.ID)
		if err != nil {
			return err
		}
		if applied {
			return addondomain.ErrAddonAlreadyApplied
		}
		app := &addondomain.Application{
			ID:        s.genID.Generate(),
			GrantID:   grant.ID,
			JobID:     job.ID,
			AppliedAt: now,
		}
		inserted, err := s.grants.InsertApplication(ctx, tx, app)
		if err != nil {
			return err
		}
		if !inserted {
			return addondomain.ErrAddonAlreadyApplied
		}

		if err := s.jobs.SetFlags(ctx, tx, job.ID, flagsFor(grant.EffectList()), now); err != nil {
			return err
		}
		result.Application = app
		result.Job, err = s.jobs.FindByID(ctx, tx, job.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, addondomain.ErrAddonAlreadyApplied) {
			s.log.Info("add-on already applied to job",
				zap.String("grant_id", req.GrantID.String()),
				zap.String("job_id", req.JobID.String()),
			)
		}
		return nil, err
	}

	jobID := result.Job.ID.String()
	userID := req.UserID.String()
	if grant.HasEffect(catalogdomain.EffectSocialPush) {
		err := s.queue.EnqueuePromotionalPost(ctx, queue.PromotionalPost{
			JobID:  jobID,
			UserID: userID,
			Reason: "addon_social_push",
		})
		if err != nil {
			s.log.Warn("enqueue promotional post failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}
	s.track(ctx, userID, analytics.EventAddOnApplied, map[string]any{
		"job_id":    jobID,
		"grant_id":  grant.ID.String(),
		"add_on_id": grant.AddOnID,
	})
	return result, nil
}

func (s *Service) lockOwnedJob(ctx context.Context, tx *gorm.DB, userID, jobID snowflake.ID) (*jobdomain.Job, error) {
	job, err := s.jobs.FindByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, jobdomain.ErrJobNotFound
	}
	if job.OwnerID != userID {
		return nil, jobdomain.ErrOwnershipMismatch
	}
	return job, nil
}

func (s *Service) window(source jobdomain.JobSource) int {
	if source == jobdomain.JobSourceFree {
		return s.freeWindow
	}
	return s.paidWindow
}

func (s *Service) rejected(ctx context.Context, creditType catalogdomain.CreditType, gate string, err error) {
	switch {
	case errors.Is(err, creditdomain.ErrInsufficientCredits):
		s.obsMetrics.RecordConsumeRejected(ctx, string(creditType), gate, "insufficient_credits")
	case errors.Is(err, creditdomain.ErrConsumeContention):
		s.obsMetrics.RecordConsumeRejected(ctx, string(creditType), gate, "contention")
		s.log.Warn("credit consume contention", zap.String("gate", gate))
	}
}

func (s *Service) track(ctx context.Context, userID, name string, props map[string]any) {
	if err := s.tracker.Track(ctx, analytics.Event{DistinctID: userID, Name: name, Properties: props}); err != nil {
		s.log.Debug("analytics capture failed", zap.String("event", name), zap.Error(err))
	}
}

func flagsFor(effects []catalogdomain.Effect) jobdomain.Flags {
	var flags jobdomain.Flags
	for _, effect := range effects {
		switch effect {
		case catalogdomain.EffectBoost:
			flags.Boosted = true
		case catalogdomain.EffectPin:
			flags.Pinned = true
		case catalogdomain.EffectSocialPush:
			flags.SocialPush = true
		case catalogdomain.EffectFeature:
			flags.Featured = true
		}
	}
	return flags
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
