package purchase

import (
	"github.com/smallbiznis/hireboard/internal/purchase/repository"
	"github.com/smallbiznis/hireboard/internal/purchase/service"
	"go.uber.org/fx"
)

var Module = fx.Module("purchase.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.NewPlanChecker),
	fx.Provide(service.New),
)
