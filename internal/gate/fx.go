package gate

import (
	"github.com/smallbiznis/hireboard/internal/gate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gate.service",
	fx.Provide(service.New),
)
