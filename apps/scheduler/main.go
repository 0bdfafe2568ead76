package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/clock"
	"github.com/smallbiznis/hireboard/internal/config"
	jobrepository "github.com/smallbiznis/hireboard/internal/job/repository"
	"github.com/smallbiznis/hireboard/internal/observability"
	purchaserepository "github.com/smallbiznis/hireboard/internal/purchase/repository"
	"github.com/smallbiznis/hireboard/internal/ratelimit"
	"github.com/smallbiznis/hireboard/internal/scheduler"
	"github.com/smallbiznis/hireboard/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Repositories the sweeps write through, and the redis run lock.
		fx.Provide(purchaserepository.Provide),
		fx.Provide(jobrepository.Provide),
		ratelimit.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return config.IDNode(cfg, 3)
}
