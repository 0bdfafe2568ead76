package job

import (
	"github.com/smallbiznis/hireboard/internal/job/repository"
	"github.com/smallbiznis/hireboard/internal/job/service"
	"go.uber.org/fx"
)

var Module = fx.Module("job.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
