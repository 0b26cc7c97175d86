package embedtoken

import (
	"github.com/smallbiznis/partnerpay/internal/embedtoken/service"
	"github.com/smallbiznis/partnerpay/internal/embedtoken/store"
	"go.uber.org/fx"
)

var Module = fx.Module("embedtoken.service",
	fx.Provide(store.New),
	fx.Provide(service.NewService),
)
