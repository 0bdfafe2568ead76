package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/clock"
	fulfillmentdomain "github.com/smallbiznis/hireboard/internal/fulfillment/domain"
	obsmetrics "github.com/smallbiznis/hireboard/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/hireboard/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Repo           paymentdomain.Repository
	FulfillmentSvc fulfillmentdomain.Service
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

// Service records checkout events once and hands them to fulfillment.
type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           paymentdomain.Repository
	fulfillmentSvc fulfillmentdomain.Service
	obsMetrics     *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("payment.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		fulfillmentSvc: p.FulfillmentSvc,
		obsMetrics:     p.ObsMetrics,
	}
}

func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.CheckoutEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		SessionID:       event.SessionID,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	if err := s.dispatch(ctx, event); err != nil {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now().UTC()); err != nil {
		return err
	}

	if inserted {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, event *paymentdomain.CheckoutEvent) error {
	logger := s.log.With(
		zap.String("provider", event.Provider),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("session_id", event.SessionID),
		zap.String("kind", event.Kind),
	)

	var (
		result *fulfillmentdomain.Result
		err    error
	)
	switch event.Type {
	case paymentdomain.EventTypeCheckoutCompleted:
		result, err = s.fulfillmentSvc.Fulfill(ctx, fulfillmentdomain.Confirmation{
			SessionID:   event.SessionID,
			Kind:        event.Kind,
			Metadata:    event.Metadata,
			AmountTotal: event.AmountTotal,
			Currency:    event.Currency,
		})
	case paymentdomain.EventTypeCheckoutFailed:
		result, err = s.fulfillmentSvc.MarkFailed(ctx, event.SessionID, event.Kind)
	default:
		return paymentdomain.ErrInvalidEvent
	}

	if errors.Is(err, fulfillmentdomain.ErrUnknownPurchase) {
		// The gateway must not retry a session we never issued.
		logger.Error("checkout event for unknown purchase", zap.String("event_type", event.Type))
		s.obsMetrics.RecordIntegrityAlert(ctx, "unknown_purchase")
		return nil
	}
	if err != nil {
		logger.Error("checkout event dispatch failed", zap.String("event_type", event.Type), zap.Error(err))
		return err
	}

	logger.Info("checkout event handled",
		zap.String("event_type", event.Type),
		zap.String("outcome", string(result.Outcome)),
	)
	return nil
}

func validateEvent(event *paymentdomain.CheckoutEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	event.SessionID = strings.TrimSpace(event.SessionID)
	if event.ProviderEventID == "" || event.SessionID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if len(event.RawPayload) == 0 {
		return paymentdomain.ErrInvalidPayload
	}
	switch event.Type {
	case paymentdomain.EventTypeCheckoutCompleted, paymentdomain.EventTypeCheckoutFailed:
		return nil
	default:
		return paymentdomain.ErrInvalidEvent
	}
}
