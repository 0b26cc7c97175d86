package payment

import (
	"github.com/smallbiznis/partnerpay/internal/config"
	"github.com/smallbiznis/partnerpay/internal/payment/adapters"
	"github.com/smallbiznis/partnerpay/internal/payment/adapters/stripe"
	"github.com/smallbiznis/partnerpay/internal/payment/domain"
	"github.com/smallbiznis/partnerpay/internal/payment/repository"
	"github.com/smallbiznis/partnerpay/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewRegistry),
	fx.Provide(stripe.ProvideTransferClient),
	fx.Provide(webhook.NewService),
)

func NewRegistry(cfg config.Config) *adapters.Registry {
	return adapters.NewRegistry(
		[]domain.AdapterConfig{
			{Provider: stripe.ProviderName, WebhookSecret: cfg.Stripe.WebhookSecret},
		},
		stripe.NewFactory(),
	)
}
