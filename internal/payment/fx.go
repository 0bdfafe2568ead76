package payment

import (
	"github.com/smallbiznis/hireboard/internal/payment/adapters"
	"github.com/smallbiznis/hireboard/internal/payment/adapters/stripe"
	"github.com/smallbiznis/hireboard/internal/payment/domain"
	"github.com/smallbiznis/hireboard/internal/payment/repository"
	paymentservice "github.com/smallbiznis/hireboard/internal/payment/service"
	"github.com/smallbiznis/hireboard/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(stripe.NewFactory())
	}),
	fx.Provide(fx.Annotate(stripe.NewGateway, fx.As(new(domain.Gateway)))),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
