package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	addondomain "github.com/smallbiznis/hireboard/internal/addon/domain"
	"github.com/smallbiznis/hireboard/internal/analytics"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/smallbiznis/hireboard/internal/clock"
	creditdomain "github.com/smallbiznis/hireboard/internal/credit/domain"
	"github.com/smallbiznis/hireboard/internal/fulfillment/domain"
	jobdomain "github.com/smallbiznis/hireboard/internal/job/domain"
	obsmetrics "github.com/smallbiznis/hireboard/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/hireboard/internal/payment/domain"
	purchasedomain "github.com/smallbiznis/hireboard/internal/purchase/domain"
	"github.com/smallbiznis/hireboard/internal/queue"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Purchases  purchasedomain.Repository
	Credits    creditdomain.Service
	Grants     addondomain.Service
	Catalog    catalogdomain.Service
	Jobs       jobdomain.Repository
	Gateway    paymentdomain.Gateway `optional:"true"`
	Queue      queue.Publisher       `optional:"true"`
	Tracker    analytics.Tracker     `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	purchases  purchasedomain.Repository
	credits    creditdomain.Service
	grants     addondomain.Service
	catalog    catalogdomain.Service
	jobs       jobdomain.Repository
	gateway    paymentdomain.Gateway
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
		log:        p.Log.Named("fulfillment.service"),
		clock:      c,
		purchases:  p.Purchases,
		credits:    p.Credits,
		grants:     p.Grants,
		catalog:    p.Catalog,
		jobs:       p.Jobs,
		gateway:    p.Gateway,
		queue:      publisher,
		tracker:    tracker,
		obsMetrics: p.ObsMetrics,
	}
}

// Fulfill applies the effects of a paid checkout session exactly once.
// Concurrent and repeated confirmations for the same session resolve to
// OutcomeAlreadyFulfilled.
func (s *Service) Fulfill(ctx context.Context, c domain.Confirmation) (*domain.Result, error) {
	c.SessionID = strings.TrimSpace(c.SessionID)
	if c.SessionID == "" {
		return nil, domain.ErrInvalidConfirmation
	}
	kind := purchasedomain.Kind(strings.TrimSpace(c.Kind))

	if kind != purchasedomain.KindUpsell {
		purchase, err := s.purchases.FindBySessionID(ctx, s.db, c.SessionID)
		if err != nil {
			return nil, err
		}
		if purchase != nil {
			return s.fulfillPurchase(ctx, purchase, c)
		}
		if kind != "" {
			return nil, s.unknown(ctx, c.SessionID, string(kind))
		}
	}

	upsell, err := s.purchases.FindUpsellBySessionID(ctx, s.db, c.SessionID)
	if err != nil {
		return nil, err
	}
	if upsell == nil {
		return nil, s.unknown(ctx, c.SessionID, string(kind))
	}
	return s.fulfillUpsell(ctx, upsell)
}

func (s *Service) fulfillPurchase(ctx context.Context, purchase *purchasedomain.Purchase, c domain.Confirmation) (*domain.Result, error) {
	logger := s.log.With(
		zap.String("session_id", purchase.ExternalSessionID),
		zap.String("purchase_id", purchase.ID.String()),
		zap.String("kind", string(purchase.Kind)),
	)
	result := &domain.Result{Kind: string(purchase.Kind), PurchaseID: purchase.ID}

	switch purchase.Status {
	case purchasedomain.StatusCompleted:
		result.Outcome = domain.OutcomeAlreadyFulfilled
		s.record(ctx, result)
		return result, nil
	case purchasedomain.StatusFailed:
		logger.Warn("payment confirmation for failed purchase")
		s.obsMetrics.RecordIntegrityAlert(ctx, "confirmation_for_failed_purchase")
		result.Outcome = domain.OutcomeSkipped
		s.record(ctx, result)
		return result, nil
	}

	if c.AmountTotal > 0 && c.AmountTotal != purchase.TotalAmount {
		logger.Warn("confirmed amount differs from purchase total",
			zap.Int64("confirmed", c.AmountTotal),
			zap.Int64("expected", purchase.TotalAmount),
		)
	}

	var minted map[catalogdomain.CreditType]int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		expiresAt := catalogdomain.WindowEnd(now, purchase.ValidityDays)

		won, err := s.purchases.MarkCompleted(ctx, tx, purchase.ExternalSessionID, now, &expiresAt)
		if err != nil {
			return fmt.Errorf("mark purchase completed: %w", err)
		}
		if !won {
			current, err := s.purchases.FindBySessionID(ctx, tx, purchase.ExternalSessionID)
			if err != nil {
				return err
			}
			if current != nil && current.Status == purchasedomain.StatusCompleted {
				result.Outcome = domain.OutcomeAlreadyFulfilled
			} else {
				result.Outcome = domain.OutcomeSkipped
			}
			return nil
		}

		switch purchase.Kind {
		case purchasedomain.KindCreditPack:
			n, err := s.credits.MintForPurchase(ctx, tx, creditdomain.MintRequest{
				UserID:     purchase.UserID,
				PurchaseID: purchase.ID,
				Counts:     purchase.Counts(),
				IssuedAt:   now,
				ExpiresAt:  expiresAt,
			})
			if err != nil {
				return err
			}
			result.CreditsMinted = n
			minted = purchase.Counts()
		case purchasedomain.KindAddOn:
			effects, err := s.addOnEffects(ctx, purchase)
			if err != nil {
				return err
			}
			grant, err := s.grants.CreateGrant(ctx, tx, addondomain.CreateGrantRequest{
				UserID:     purchase.UserID,
				AddOnID:    purchase.AddOnID,
				PurchaseID: purchase.ID,
				Effects:    effects,
				CreatedAt:  now,
				ExpiresAt:  expiresAt,
			})
			if err != nil {
				return err
			}
			result.GrantID = grant.ID
		default:
			return fmt.Errorf("unsupported purchase kind %q", purchase.Kind)
		}
		result.Outcome = domain.OutcomeFulfilled
		return nil
	})
	if err != nil {
		logger.Error("fulfillment failed", zap.Error(err))
		s.obsMetrics.RecordIntegrityAlert(ctx, "fulfillment_failed")
		return nil, err
	}

	s.record(ctx, result)
	if result.Outcome != domain.OutcomeFulfilled {
		return result, nil
	}

	for creditType, n := range minted {
		s.obsMetrics.RecordCreditsMinted(ctx, string(creditType), n)
	}
	logger.Info("purchase fulfilled",
		zap.Int("credits_minted", result.CreditsMinted),
		zap.String("grant_id", result.GrantID.String()),
	)
	s.track(ctx, purchase.UserID.String(), map[string]any{
		"kind":           string(purchase.Kind),
		"pack_id":        purchase.PackID,
		"add_on_id":      purchase.AddOnID,
		"amount":         purchase.TotalAmount,
		"currency":       purchase.Currency,
		"credits_minted": result.CreditsMinted,
	})
	return result, nil
}

func (s *Service) fulfillUpsell(ctx context.Context, upsell *purchasedomain.UpsellPurchase) (*domain.Result, error) {
	logger := s.log.With(
		zap.String("session_id", upsell.ExternalSessionID),
		zap.String("upsell_id", upsell.ID.String()),
		zap.String("job_id", upsell.JobID.String()),
	)
	result := &domain.Result{Kind: string(purchasedomain.KindUpsell), PurchaseID: upsell.ID}

	switch upsell.Status {
	case purchasedomain.UpsellStatusPaid:
		result.Outcome = domain.OutcomeAlreadyFulfilled
		s.record(ctx, result)
		return result, nil
	case purchasedomain.UpsellStatusFailed:
		logger.Warn("payment confirmation for failed upsell")
		s.obsMetrics.RecordIntegrityAlert(ctx, "confirmation_for_failed_purchase")
		result.Outcome = domain.OutcomeSkipped
		s.record(ctx, result)
		return result, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		won, err := s.purchases.MarkUpsellPaid(ctx, tx, upsell.ExternalSessionID, now)
		if err != nil {
			return fmt.Errorf("mark upsell paid: %w", err)
		}
		if !won {
			current, err := s.purchases.FindUpsellBySessionID(ctx, tx, upsell.ExternalSessionID)
			if err != nil {
				return err
			}
			if current != nil && current.Status == purchasedomain.UpsellStatusPaid {
				result.Outcome = domain.OutcomeAlreadyFulfilled
			} else {
				result.Outcome = domain.OutcomeSkipped
			}
			return nil
		}

		flags := jobdomain.Flags{
			SocialPush: upsell.SocialPush,
			Boosted:    upsell.PlacementBump,
			Pinned:     upsell.PlacementBump,
		}
		if err := s.jobs.SetFlags(ctx, tx, upsell.JobID, flags, now); err != nil {
			return fmt.Errorf("apply upsell flags: %w", err)
		}
		result.Outcome = domain.OutcomeFulfilled
		return nil
	})
	if err != nil {
		logger.Error("upsell fulfillment failed", zap.Error(err))
		s.obsMetrics.RecordIntegrityAlert(ctx, "fulfillment_failed")
		return nil, err
	}

	s.record(ctx, result)
	if result.Outcome != domain.OutcomeFulfilled {
		return result, nil
	}

	logger.Info("upsell fulfilled",
		zap.Bool("social_push", upsell.SocialPush),
		zap.Bool("placement_bump", upsell.PlacementBump),
	)
	if upsell.SocialPush {
		s.promote(ctx, upsell.JobID.String(), upsell.UserID.String())
	}
	s.track(ctx, upsell.UserID.String(), map[string]any{
		"kind":           string(purchasedomain.KindUpsell),
		"job_id":         upsell.JobID.String(),
		"social_push":    upsell.SocialPush,
		"placement_bump": upsell.PlacementBump,
		"amount":         upsell.TotalAmount,
		"currency":       upsell.Currency,
	})
	return result, nil
}

// MarkFailed moves a pending or abandoned purchase to failed. Completed
// purchases are left alone.
func (s *Service) MarkFailed(ctx context.Context, sessionID string, kind string) (*domain.Result, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.ErrInvalidConfirmation
	}
	now := s.clock.Now().UTC()

	if purchasedomain.Kind(kind) != purchasedomain.KindUpsell {
		purchase, err := s.purchases.FindBySessionID(ctx, s.db, sessionID)
		if err != nil {
			return nil, err
		}
		if purchase != nil {
			result := &domain.Result{Kind: string(purchase.Kind), PurchaseID: purchase.ID}
			won, err := s.purchases.MarkFailed(ctx, s.db, sessionID, now)
			if err != nil {
				return nil, err
			}
			result.Outcome = failedOutcome(won, purchase.Status == purchasedomain.StatusCompleted)
			s.record(ctx, result)
			return result, nil
		}
	}

	upsell, err := s.purchases.FindUpsellBySessionID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	if upsell == nil {
		return nil, s.unknown(ctx, sessionID, kind)
	}
	result := &domain.Result{Kind: string(purchasedomain.KindUpsell), PurchaseID: upsell.ID}
	won, err := s.purchases.MarkUpsellFailed(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	result.Outcome = failedOutcome(won, upsell.Status == purchasedomain.UpsellStatusPaid)
	s.record(ctx, result)
	return result, nil
}

// Reconcile asks the gateway for the session state and fulfills it when paid.
func (s *Service) Reconcile(ctx context.Context, sessionID string) (*domain.Result, error) {
	if s.gateway == nil {
		return nil, paymentdomain.ErrGatewayNotConfigured
	}
	session, err := s.gateway.GetCheckoutSession(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return nil, err
	}
	if !session.Paid {
		return nil, domain.ErrSessionNotPaid
	}
	s.log.Info("reconciling checkout session", zap.String("session_id", session.ID))
	return s.Fulfill(ctx, domain.Confirmation{
		SessionID:   session.ID,
		Kind:        session.Metadata[paymentdomain.MetadataKind],
		Metadata:    session.Metadata,
		AmountTotal: session.AmountTotal,
		Currency:    session.Currency,
	})
}

func (s *Service) addOnEffects(ctx context.Context, purchase *purchasedomain.Purchase) ([]catalogdomain.Effect, error) {
	if effects := purchase.Effects(); len(effects) > 0 {
		return effects, nil
	}
	addOn, err := s.catalog.FindAddOn(ctx, purchase.AddOnID)
	if err != nil {
		if errors.Is(err, catalogdomain.ErrInvalidSelection) {
			return nil, fmt.Errorf("add-on %q no longer in catalog: %w", purchase.AddOnID, err)
		}
		return nil, err
	}
	return addOn.Effects, nil
}

func (s *Service) unknown(ctx context.Context, sessionID, kind string) error {
	s.log.Error("no purchase recorded for checkout session",
		zap.String("session_id", sessionID),
		zap.String("kind", kind),
	)
	return domain.ErrUnknownPurchase
}

func (s *Service) promote(ctx context.Context, jobID, userID string) {
	err := s.queue.EnqueuePromotionalPost(ctx, queue.PromotionalPost{
		JobID:  jobID,
		UserID: userID,
		Reason: "upsell_social_push",
	})
	if err != nil {
		s.log.Warn("enqueue promotional post failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *Service) track(ctx context.Context, userID string, props map[string]any) {
	err := s.tracker.Track(ctx, analytics.Event{
		DistinctID: userID,
		Name:       analytics.EventPurchaseCompleted,
		Properties: props,
	})
	if err != nil {
		s.log.Debug("analytics capture failed", zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, result *domain.Result) {
	s.obsMetrics.RecordFulfillment(ctx, result.Kind, string(result.Outcome))
}

func failedOutcome(won, completed bool) domain.Outcome {
	switch {
	case won:
		return domain.OutcomeMarkedFailed
	case completed:
		return domain.OutcomeAlreadyFulfilled
	default:
		return domain.OutcomeSkipped
	}
}
