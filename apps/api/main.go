package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/clock"
	"github.com/smallbiznis/hireboard/internal/config"
	"github.com/smallbiznis/hireboard/internal/observability"
	"github.com/smallbiznis/hireboard/internal/server"
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
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return config.IDNode(cfg, 2)
}
