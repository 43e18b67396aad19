package invoice

import (
	"github.com/smallbiznis/portalsync/internal/invoice/repository"
	"github.com/smallbiznis/portalsync/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
