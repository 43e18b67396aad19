package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/smallbiznis/portalsync/internal/billingsync/domain"
	"github.com/smallbiznis/portalsync/internal/observability/metrics"
	"github.com/smallbiznis/portalsync/pkg/log/ctxlogger"
	"github.com/smallbiznis/portalsync/pkg/telemetry/correlation"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	HeaderCorrelationID = "X-Correlation-ID"

	defaultTimeout          = 15 * time.Second
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
)

var errUpstreamStatus = errors.New("billing_sync_upstream_status")

type Config struct {
	URL              string
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// HTTPDispatcher posts intents to the billing workflow from a background
// goroutine. Transport errors are logged and counted, never returned.
type HTTPDispatcher struct {
	url     string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     *zap.Logger
	metrics *metrics.PortalMetrics

	inflight sync.WaitGroup
}

func NewHTTPDispatcher(cfg Config, client *http.Client, log *zap.Logger, m *metrics.PortalMetrics) *HTTPDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("billingsync.gateway")

	d := &HTTPDispatcher{
		url:     cfg.URL,
		timeout: cfg.Timeout,
		client:  client,
		log:     log,
		metrics: m,
	}
	d.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "billing_sync",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("billing sync breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return d
}

// Dispatch issues the POST in the background with a context detached from
// the caller, so a finished HTTP request never cancels an issued intent.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, intent domain.Intent) {
	ctx, cid := correlation.EnsureCorrelationID(ctx)
	log := ctxlogger.WithContext(ctx, d.log).With(
		zap.String("mode", string(intent.Mode)),
		zap.String("subscription_id", intent.Subscription.ID),
		zap.String("target_status", intent.TargetStatus),
	)

	body, err := json.Marshal(intent)
	if err != nil {
		log.Error("billing sync intent not encodable", zap.Error(err))
		d.metrics.IncDispatch(string(intent.Mode), metrics.DispatchFailed)
		return
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		start := time.Now()
		_, err := d.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, d.post(sendCtx, cid, body)
		})
		d.metrics.ObserveDispatchDuration(string(intent.Mode), time.Since(start))

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			log.Warn("billing sync intent dropped, breaker open", zap.Error(err))
			d.metrics.IncDispatch(string(intent.Mode), metrics.DispatchBreakerOpen)
		case err != nil:
			log.Error("billing sync intent failed", zap.Error(err))
			d.metrics.IncDispatch(string(intent.Mode), metrics.DispatchFailed)
		default:
			log.Info("billing sync intent delivered")
			d.metrics.IncDispatch(string(intent.Mode), metrics.DispatchDelivered)
		}
	}()
}

// Wait blocks until every issued intent finished or ctx is done.
func (d *HTTPDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *HTTPDispatcher) post(ctx context.Context, cid string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderCorrelationID, cid)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// The body is never interpreted; server errors only feed the breaker.
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %d", errUpstreamStatus, resp.StatusCode)
	}
	return nil
}

// NoopDispatcher stands in when no workflow URL is configured.
type NoopDispatcher struct {
	log     *zap.Logger
	metrics *metrics.PortalMetrics
}

func NewNoopDispatcher(log *zap.Logger, m *metrics.PortalMetrics) *NoopDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoopDispatcher{log: log.Named("billingsync.noop"), metrics: m}
}

func (d *NoopDispatcher) Dispatch(ctx context.Context, intent domain.Intent) {
	ctxlogger.WithContext(ctx, d.log).Info("billing sync disabled, intent skipped",
		zap.String("mode", string(intent.Mode)),
		zap.String("subscription_id", intent.Subscription.ID),
	)
	d.metrics.IncDispatch(string(intent.Mode), metrics.DispatchSkipped)
}

var (
	_ domain.Dispatcher = (*HTTPDispatcher)(nil)
	_ domain.Dispatcher = (*NoopDispatcher)(nil)
)
