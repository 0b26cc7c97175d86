package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerpay/internal/cache"
	"github.com/smallbiznis/partnerpay/internal/clock"
	"github.com/smallbiznis/partnerpay/internal/config"
	"github.com/smallbiznis/partnerpay/internal/embedtoken"
	"github.com/smallbiznis/partnerpay/internal/folder"
	"github.com/smallbiznis/partnerpay/internal/migration"
	"github.com/smallbiznis/partnerpay/internal/observability"
	"github.com/smallbiznis/partnerpay/internal/partner"
	"github.com/smallbiznis/partnerpay/internal/payment"
	"github.com/smallbiznis/partnerpay/internal/payout"
	"github.com/smallbiznis/partnerpay/internal/providers/email"
	"github.com/smallbiznis/partnerpay/internal/ratelimit"
	"github.com/smallbiznis/partnerpay/internal/recovery"
	"github.com/smallbiznis/partnerpay/internal/server"
	"github.com/smallbiznis/partnerpay/internal/workspace"
	"github.com/smallbiznis/partnerpay/pkg/db"
	"github.com/smallbiznis/partnerpay/pkg/idgen"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		cache.Module,
		ratelimit.Module,
		email.Module,

		// Domains
		workspace.Module,
		partner.Module,
		payout.Module,
		payment.Module,
		embedtoken.Module,
		folder.Module,
		recovery.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return idgen.NewNode()
}
