package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/smallbiznis/bizboard/internal/audit"
	"github.com/smallbiznis/bizboard/internal/auth"
	"github.com/smallbiznis/bizboard/internal/authorization"
	"github.com/smallbiznis/bizboard/internal/billing"
	billingdomain "github.com/smallbiznis/bizboard/internal/billing/domain"
	"github.com/smallbiznis/bizboard/internal/billing/policy"
	"github.com/smallbiznis/bizboard/internal/clock"
	"github.com/smallbiznis/bizboard/internal/config"
	"github.com/smallbiznis/bizboard/internal/migration"
	"github.com/smallbiznis/bizboard/internal/observability"
	"github.com/smallbiznis/bizboard/internal/organization"
	"github.com/smallbiznis/bizboard/internal/seed"
	"github.com/smallbiznis/bizboard/internal/server"
	"github.com/smallbiznis/bizboard/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		fx.Invoke(func(conn *gorm.DB, cfg config.Config, pol *policy.Policy) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			rate := pol.CommissionRateFor(billingdomain.PlanFree)
			if err := seed.EnsureMainOrg(conn, rate); err != nil {
				return err
			}
			if cfg.Bootstrap.EnsureDefaultOrgAndUser {
				return seed.EnsureMainOrgAndAdmin(conn, rate)
			}
			return nil
		}),

		auth.Module,
		authorization.Module,
		audit.Module,
		organization.Module,
		billing.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
