package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/smallbiznis/hireboard/internal/clock"
	"github.com/smallbiznis/hireboard/internal/config"
	jobdomain "github.com/smallbiznis/hireboard/internal/job/domain"
	obsmetrics "github.com/smallbiznis/hireboard/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/hireboard/internal/payment/domain"
	"github.com/smallbiznis/hireboard/internal/purchase/domain"
	"github.com/smallbiznis/hireboard/internal/ratelimit"
	"github.com/smallbiznis/hireboard/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       domain.Repository
	Plans      domain.PlanChecker
	Catalog    catalogdomain.Service
	Gateway    paymentdomain.Gateway
	JobRepo    jobdomain.Repository
	Limiter    *ratelimit.CheckoutLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics        `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	currency   string
	repo       domain.Repository
	plans      domain.PlanChecker
	catalog    catalogdomain.Service
	gateway    paymentdomain.Gateway
	jobRepo    jobdomain.Repository
	limiter    *ratelimit.CheckoutLimiter
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	currency := strings.ToLower(strings.TrimSpace(p.Cfg.Checkout.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("purchase.service"),
		genID:      p.GenID,
		clock:      c,
		currency:   currency,
		repo:       p.Repo,
		plans:      p.Plans,
		catalog:    p.Catalog,
		gateway:    p.Gateway,
		jobRepo:    p.JobRepo,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}
}

// CreateCheckout opens a gateway session for a credit pack or an add-on and
// records the pending purchase before the redirect URL is handed out.
func (s *Service) CreateCheckout(ctx context.Context, req domain.CreateCheckoutRequest) (*domain.CheckoutResponse, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if err := validateRedirects(req.SuccessURL, req.CancelURL); err != nil {
		return nil, err
	}

	packID := strings.TrimSpace(req.PackID)
	addOnID := strings.TrimSpace(req.AddOnID)
	if (packID == "") == (addOnID == "") {
		return nil, domain.ErrInvalidSelection
	}

	purchase := &domain.Purchase{
		ID:       s.genID.Generate(),
		UserID:   req.UserID,
		Status:   domain.StatusPending,
		Currency: s.currency,
	}
	metadata := map[string]string{
		paymentdomain.MetadataUserID:     req.UserID.String(),
		paymentdomain.MetadataPurchaseID: purchase.ID.String(),
	}

	var (
		item    paymentdomain.LineItem
		effects []string
	)
	if packID != "" {
		pack, err := s.catalog.FindPack(ctx, packID)
		if err != nil {
			return nil, err
		}
		if pack.TotalCredits() == 0 {
			return nil, domain.ErrInvalidSelection
		}
		if pack.RequiresSubscription {
			ok, err := s.plans.HasActivePlan(ctx, req.UserID)
			if err != nil {
				return nil, fmt.Errorf("check plan: %w", err)
			}
			if !ok {
				return nil, domain.ErrSubscriptionRequired
			}
		}
		purchase.Kind = domain.KindCreditPack
		purchase.PackID = pack.ID
		purchase.SetCounts(*pack)
		purchase.ValidityDays = pack.ExpirationDays
		purchase.TotalAmount = pack.Price
		metadata[paymentdomain.MetadataPackID] = pack.ID
		item = paymentdomain.LineItem{Name: pack.Name, PriceID: pack.GatewayPriceID, UnitAmount: pack.Price, Quantity: 1}
	} else {
		addOn, err := s.catalog.FindAddOn(ctx, addOnID)
		if err != nil {
			return nil, err
		}
		if len(addOn.Effects) == 0 {
			return nil, domain.ErrInvalidSelection
		}
		purchase.Kind = domain.KindAddOn
		purchase.AddOnID = addOn.ID
		purchase.ValidityDays = addOn.ValidityDays
		purchase.TotalAmount = addOn.Price
		metadata[paymentdomain.MetadataAddOnID] = addOn.ID
		for _, effect := range addOn.Effects {
			effects = append(effects, string(effect))
		}
		item = paymentdomain.LineItem{Name: addOn.Name, PriceID: addOn.GatewayPriceID, UnitAmount: addOn.Price, Quantity: 1}
	}
	metadata[paymentdomain.MetadataKind] = string(purchase.Kind)

	if err := s.allow(ctx, req.UserID); err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, paymentdomain.CheckoutSessionRequest{
		ClientReferenceID: purchase.ID.String(),
		Currency:          s.currency,
		SuccessURL:        req.SuccessURL,
		CancelURL:         req.CancelURL,
		LineItems:         []paymentdomain.LineItem{item},
		Metadata:          metadata,
	})
	if err != nil {
		s.log.Error("create checkout session failed",
			zap.String("user_id", req.UserID.String()),
			zap.String("kind", string(purchase.Kind)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	now := s.clock.Now().UTC()
	purchase.ExternalSessionID = session.ID
	purchase.Metadata = toJSONMap(metadata)
	if len(effects) > 0 {
		purchase.Metadata[domain.MetadataEffects] = effects
	}
	purchase.CreatedAt = now
	purchase.UpdatedAt = now
	if err := s.repo.Insert(ctx, s.db, purchase); err != nil {
		s.log.Error("persist pending purchase failed",
			zap.String("session_id", session.ID),
			zap.String("purchase_id", purchase.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("persist purchase: %w", err)
	}

	s.obsMetrics.RecordCheckout(ctx, string(purchase.Kind))
	return &domain.CheckoutResponse{
		PurchaseID:  purchase.ID,
		Kind:        purchase.Kind,
		SessionID:   session.ID,
		RedirectURL: session.URL,
	}, nil
}

func (s *Service) CreateUpsellCheckout(ctx context.Context, req domain.CreateUpsellCheckoutRequest) (*domain.CheckoutResponse, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if !req.SocialPush && !req.PlacementBump {
		return nil, domain.ErrInvalidSelection
	}
	if err := validateRedirects(req.SuccessURL, req.CancelURL); err != nil {
		return nil, err
	}

	job, err := s.jobRepo.FindByID(ctx, s.db, req.JobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, jobdomain.ErrJobNotFound
	}
	if job.OwnerID != req.UserID {
		return nil, jobdomain.ErrOwnershipMismatch
	}

	var flags []catalogdomain.UpsellFlag
	if req.SocialPush {
		flags = append(flags, catalogdomain.UpsellSocialPush)
	}
	if req.PlacementBump {
		flags = append(flags, catalogdomain.UpsellPlacementBump)
	}

	upsell := &domain.UpsellPurchase{
		ID:            s.genID.Generate(),
		UserID:        req.UserID,
		JobID:         job.ID,
		SocialPush:    req.SocialPush,
		PlacementBump: req.PlacementBump,
		Currency:      s.currency,
		Status:        domain.UpsellStatusPending,
	}
	items := make([]paymentdomain.LineItem, 0, len(flags))
	for _, flag := range flags {
		option, err := s.catalog.FindUpsell(ctx, flag)
		if err != nil {
			return nil, err
		}
		upsell.TotalAmount += option.Price
		items = append(items, paymentdomain.LineItem{
			Name:       upsellName(flag),
			PriceID:    option.GatewayPriceID,
			UnitAmount: option.Price,
			Quantity:   1,
		})
	}

	if err := s.allow(ctx, req.UserID); err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, paymentdomain.CheckoutSessionRequest{
		ClientReferenceID: upsell.ID.String(),
		Currency:          s.currency,
		SuccessURL:        req.SuccessURL,
		CancelURL:         req.CancelURL,
		LineItems:         items,
		Metadata: map[string]string{
			paymentdomain.MetadataUserID:     req.UserID.String(),
			paymentdomain.MetadataJobID:      job.ID.String(),
			paymentdomain.MetadataKind:       string(domain.KindUpsell),
			paymentdomain.MetadataPurchaseID: upsell.ID.String(),
		},
	})
	if err != nil {
		s.log.Error("create upsell checkout session failed",
			zap.String("user_id", req.UserID.String()),
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	upsell.ExternalSessionID = session.ID
	upsell.CreatedAt = s.clock.Now().UTC()
	if err := s.repo.InsertUpsell(ctx, s.db, upsell); err != nil {
		s.log.Error("persist pending upsell failed", zap.String("session_id", session.ID), zap.Error(err))
		return nil, fmt.Errorf("persist upsell: %w", err)
	}

	s.obsMetrics.RecordCheckout(ctx, string(domain.KindUpsell))
	return &domain.CheckoutResponse{
		PurchaseID:  upsell.ID,
		Kind:        domain.KindUpsell,
		SessionID:   session.ID,
		RedirectURL: session.URL,
	}, nil
}

func (s *Service) Get(ctx context.Context, userID, purchaseID snowflake.ID) (*domain.Purchase, error) {
	purchase, err := s.repo.FindByID(ctx, s.db, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase == nil || purchase.UserID != userID {
		return nil, domain.ErrPurchaseNotFound
	}
	return purchase, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPurchasesRequest) (domain.ListPurchasesResponse, error) {
	if req.UserID == 0 {
		return domain.ListPurchasesResponse{}, domain.ErrInvalidUser
	}
	pageSize := pagination.NormalizePageSize(req.PageSize)
	items, err := s.repo.List(ctx, s.db, req.UserID, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListPurchasesResponse{}, err
	}

	items, pageInfo := pagination.Trim(items, pageSize, func(p *domain.Purchase) string {
		return p.ID.String()
	})
	purchases := make([]domain.Purchase, 0, len(items))
	for _, item := range items {
		purchases = append(purchases, *item)
	}
	return domain.ListPurchasesResponse{PageInfo: pageInfo, Purchases: purchases}, nil
}

func (s *Service) allow(ctx context.Context, userID snowflake.ID) error {
	if s.limiter == nil || !s.limiter.Enabled() {
		return nil
	}
	res, err := s.limiter.Allow(ctx, userID.String())
	if err != nil {
		s.log.Warn("checkout rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !res.Allowed {
		s.obsMetrics.RecordRateLimitDenied(ctx, "checkout")
		return domain.ErrRateLimited
	}
	return nil
}

func validateRedirects(urls ...string) error {
	for _, raw := range urls {
		parsed, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return domain.ErrInvalidRedirect
		}
	}
	return nil
}

func upsellName(flag catalogdomain.UpsellFlag) string {
	switch flag {
	case catalogdomain.UpsellSocialPush:
		return "Social push"
	case catalogdomain.UpsellPlacementBump:
		return "Placement bump"
	}
	return string(flag)
}

func toJSONMap(metadata map[string]string) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
