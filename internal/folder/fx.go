package folder

import (
	"github.com/smallbiznis/partnerpay/internal/folder/repository"
	"github.com/smallbiznis/partnerpay/internal/folder/service"
	"go.uber.org/fx"
)

var Module = fx.Module("folder.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
