package scheduler

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/portalsync/internal/config"
	"go.uber.org/fx"
)

// Components provides the scheduler without starting the periodic loop.
var Components = fx.Options(
	fx.Provide(ProvideConfig),
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
	fx.Provide(NewDeadlineScanner),
	fx.Provide(New),
	fx.Invoke(closeRedis),
)

var Module = fx.Module("scheduler",
	Components,
	fx.Invoke(NewScheduler),
)

// NewScheduler starts the periodic scan when SCHEDULER_ENABLED is set. Scans
// otherwise only run on session bootstrap or through the scan command.
func NewScheduler(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if !cfg.Scheduler.Enabled {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sched.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func closeRedis(lc fx.Lifecycle, client *redis.Client) {
	if client == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
}
