package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/hireboard/internal/config"
	"github.com/smallbiznis/hireboard/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/hireboard/internal/payment/domain"
	paymentservice "github.com/smallbiznis/hireboard/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	Adapters   *adapters.Registry
	Cfg        config.Config
}

type Service struct {
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	adapters   *adapters.Registry
	configs    map[string]map[string]any
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
		configs:    providerConfigs(p.Cfg),
	}
}

func providerConfigs(cfg config.Config) map[string]map[string]any {
	configs := map[string]map[string]any{}
	if secret := strings.TrimSpace(cfg.Stripe.WebhookSecret); secret != "" {
		configs["stripe"] = map[string]any{"webhook_secret": secret}
	}
	return configs
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if !s.adapters.ProviderExists(provider) {
		s.log.Warn("payment webhook for unregistered provider",
			zap.String("provider", provider),
			zap.Strings("registered", s.adapters.Providers()),
		)
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	providerConfig, ok := s.configs[provider]
	if !ok {
		return paymentdomain.ErrProviderNotFound
	}
	adapter, err := s.adapters.NewAdapter(provider, paymentdomain.AdapterConfig{Config: providerConfig})
	if err != nil {
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("payment webhook signature rejected", zap.String("provider", provider))
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	if s.paymentSvc == nil {
		return errors.New("payment_service_unavailable")
	}
	return s.paymentSvc.ProcessEvent(ctx, event)
}
