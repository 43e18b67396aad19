package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels stamped on every series.
type Config struct {
	ServiceName string
	Environment string
}

const (
	AdmissionAdmitted        = "admitted"
	AdmissionDroppedIdentity = "dropped_identity"
	AdmissionDroppedSimilar  = "dropped_similar"
)

const (
	DispatchDelivered   = "delivered"
	DispatchFailed      = "failed"
	DispatchBreakerOpen = "breaker_open"
	DispatchSkipped     = "skipped"
)

// PortalMetrics captures lifecycle sync and notification signals.
type PortalMetrics struct {
	admissions          *prometheus.CounterVec
	dispatches          *prometheus.CounterVec
	dispatchDuration    *prometheus.HistogramVec
	transitions         *prometheus.CounterVec
	deadlineCreated     *prometheus.CounterVec
	optimisticRollbacks *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

var (
	portalMetricsOnce sync.Once
	portalMetrics     *PortalMetrics
)

// New is the fx constructor; it returns the process wide singleton.
func New(cfg Config) *PortalMetrics {
	return PortalWithConfig(cfg)
}

// Portal returns the singleton portal metrics registry.
func Portal() *PortalMetrics {
	return PortalWithConfig(Config{})
}

// PortalWithConfig returns the singleton portal metrics registry using config labels.
func PortalWithConfig(cfg Config) *PortalMetrics {
	portalMetricsOnce.Do(func() {
		portalMetrics = newPortalMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return portalMetrics
}

// ResetPortalMetricsForTest resets the singleton for tests.
func ResetPortalMetricsForTest() {
	portalMetricsOnce = sync.Once{}
	portalMetrics = nil
}

func constLabels(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "portalsync"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

func newPortalMetrics(registerer prometheus.Registerer, cfg Config) *PortalMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	admissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portalsync_notification_admissions_total",
		Help:        "Notification admission decisions by result.",
		ConstLabels: labels,
	}, []string{"source", "result"})
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portalsync_billing_dispatch_total",
		Help:        "Outbound lifecycle intents by mode and outcome.",
		ConstLabels: labels,
	}, []string{"mode", "outcome"})
	dispatchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "portalsync_billing_dispatch_duration_seconds",
		Help:        "Outbound lifecycle intent latency.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		ConstLabels: labels,
	}, []string{"mode"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portalsync_subscription_transition_total",
		Help:        "Subscription status transitions by target status and result.",
		ConstLabels: labels,
	}, []string{"to", "result"})
	deadlineCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portalsync_deadline_notifications_total",
		Help:        "Deadline notifications created by the scanner, by day offset.",
		ConstLabels: labels,
	}, []string{"days"})
	optimisticRollbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portalsync_notification_rollbacks_total",
		Help:        "Optimistic notification mutations rolled back after a failed persist.",
		ConstLabels: labels,
	}, []string{"operation"})
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portalsync_http_requests_total",
		Help:        "HTTP requests by route and status class.",
		ConstLabels: labels,
	}, []string{"method", "route", "status"})
	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "portalsync_http_request_duration_seconds",
		Help:        "HTTP request latency by route.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: labels,
	}, []string{"method", "route"})

	registerer.MustRegister(
		admissions,
		dispatches,
		dispatchDuration,
		transitions,
		deadlineCreated,
		optimisticRollbacks,
		httpRequests,
		httpDuration,
	)

	return &PortalMetrics{
		admissions:          admissions,
		dispatches:          dispatches,
		dispatchDuration:    dispatchDuration,
		transitions:         transitions,
		deadlineCreated:     deadlineCreated,
		optimisticRollbacks: optimisticRollbacks,
		httpRequests:        httpRequests,
		httpDuration:        httpDuration,
	}
}

// IncAdmission records one admission decision for a producer.
func (m *PortalMetrics) IncAdmission(source, result string) {
	if m == nil || m.admissions == nil {
		return
	}
	m.admissions.WithLabelValues(source, result).Inc()
}

// IncDispatch records the outcome of one outbound intent.
func (m *PortalMetrics) IncDispatch(mode, outcome string) {
	if m == nil || m.dispatches == nil {
		return
	}
	m.dispatches.WithLabelValues(mode, outcome).Inc()
}

func (m *PortalMetrics) ObserveDispatchDuration(mode string, d time.Duration) {
	if m == nil || m.dispatchDuration == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *PortalMetrics) IncTransition(to, result string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(to, result).Inc()
}

func (m *PortalMetrics) IncDeadlineNotification(days string) {
	if m == nil || m.deadlineCreated == nil {
		return
	}
	m.deadlineCreated.WithLabelValues(days).Inc()
}

func (m *PortalMetrics) IncOptimisticRollback(operation string) {
	if m == nil || m.optimisticRollbacks == nil {
		return
	}
	m.optimisticRollbacks.WithLabelValues(operation).Inc()
}

// ObserveHTTP records a finished request.
func (m *PortalMetrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
