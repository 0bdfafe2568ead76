package credit

import (
	"github.com/smallbiznis/hireboard/internal/credit/repository"
	"github.com/smallbiznis/hireboard/internal/credit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
