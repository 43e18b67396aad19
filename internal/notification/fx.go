package notification

import (
	"github.com/smallbiznis/portalsync/internal/notification/domain"
	"github.com/smallbiznis/portalsync/internal/notification/liveevents"
	"github.com/smallbiznis/portalsync/internal/notification/repository"
	"github.com/smallbiznis/portalsync/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(liveevents.NewHub),
	fx.Provide(service.NewRegistry),
	fx.Provide(service.New),
	fx.Provide(func(svc domain.Service) domain.Writer { return svc }),
)
