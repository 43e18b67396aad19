package subscription

import (
	"github.com/smallbiznis/portalsync/internal/subscription/repository"
	"github.com/smallbiznis/portalsync/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
