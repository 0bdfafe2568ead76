package migration

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/clock"
	"github.com/smallbiznis/hireboard/internal/config"
	"github.com/smallbiznis/hireboard/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, c clock.Clock, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			return nil
		}
		if !strings.EqualFold(strings.TrimSpace(cfg.DBType), "postgres") {
			log.Warn("auto-migrate skipped: embedded migrations target postgres",
				zap.String("db_type", cfg.DBType))
		} else {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			version, err := Up(sqlDB)
			if err != nil {
				return err
			}
			log.Info("schema migrated", zap.Uint("version", version))
		}

		if cfg.BootstrapOperatorID != 0 {
			return seed.EnsureOperator(conn, snowflake.ID(cfg.BootstrapOperatorID), c.Now())
		}
		return nil
	}),
)
