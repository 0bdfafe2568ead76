package fulfillment

import (
	"github.com/smallbiznis/hireboard/internal/fulfillment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fulfillment.service",
	fx.Provide(service.New),
)
