package billingsync

import (
	"context"
	"net/http"

	"github.com/smallbiznis/portalsync/internal/billingsync/domain"
	"github.com/smallbiznis/portalsync/internal/billingsync/gateway"
	"github.com/smallbiznis/portalsync/internal/config"
	"github.com/smallbiznis/portalsync/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("billingsync",
	fx.Provide(NewDispatcher),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Metrics   *metrics.PortalMetrics
}

// NewDispatcher picks the HTTP gateway when a workflow URL is configured.
// On stop it waits for in-flight intents within the shutdown deadline.
func NewDispatcher(p Params) domain.Dispatcher {
	cfg := p.Config.BillingSync
	if cfg.WebhookURL == "" {
		p.Log.Warn("BILLING_SYNC_WEBHOOK_URL not set, lifecycle intents will be skipped")
		return gateway.NewNoopDispatcher(p.Log, p.Metrics)
	}

	d := gateway.NewHTTPDispatcher(gateway.Config{
		URL:              cfg.WebhookURL,
		Timeout:          cfg.Timeout,
		FailureThreshold: cfg.FailureThreshold,
		OpenTimeout:      cfg.OpenTimeout,
	}, &http.Client{}, p.Log, p.Metrics)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return d.Wait(ctx)
		},
	})
	return d
}
