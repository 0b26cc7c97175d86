package payout

import (
	"github.com/smallbiznis/partnerpay/internal/payout/notifier"
	"github.com/smallbiznis/partnerpay/internal/payout/repository"
	"github.com/smallbiznis/partnerpay/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(notifier.New),
	fx.Provide(service.NewService),
)
