package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/portalsync/internal/authorization"
	"github.com/smallbiznis/portalsync/internal/billingsync"
	"github.com/smallbiznis/portalsync/internal/config"
	"github.com/smallbiznis/portalsync/internal/customer"
	customerdomain "github.com/smallbiznis/portalsync/internal/customer/domain"
	"github.com/smallbiznis/portalsync/internal/invoice"
	invoicedomain "github.com/smallbiznis/portalsync/internal/invoice/domain"
	"github.com/smallbiznis/portalsync/internal/notification"
	notificationdomain "github.com/smallbiznis/portalsync/internal/notification/domain"
	"github.com/smallbiznis/portalsync/internal/observability"
	obslogger "github.com/smallbiznis/portalsync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/portalsync/internal/observability/metrics"
	"github.com/smallbiznis/portalsync/internal/orgcontext"
	"github.com/smallbiznis/portalsync/internal/scheduler"
	"github.com/smallbiznis/portalsync/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/portalsync/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(orgcontext.NewRegistry),
	authorization.Module,
	billingsync.Module,
	customer.Module,
	invoice.Module,
	notification.Module,
	subscription.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// deadlineScanner runs the invoice deadline scan for one tenant.
type deadlineScanner interface {
	ScanTenant(ctx context.Context, tenantID uuid.UUID) (int, error)
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.PortalMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		Metrics:         httpMetrics,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.PortalMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	scopes          *orgcontext.Registry
	authzSvc        authorization.Service
	customerSvc     customerdomain.Service
	invoiceSvc      invoicedomain.Service
	notificationSvc notificationdomain.Service
	subscriptionSvc subscriptiondomain.Service
	scanner         deadlineScanner
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Scopes          *orgcontext.Registry
	AuthzSvc        authorization.Service
	CustomerSvc     customerdomain.Service
	InvoiceSvc      invoicedomain.Service
	NotificationSvc notificationdomain.Service
	SubscriptionSvc subscriptiondomain.Service

	Scheduler *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		scopes:          p.Scopes,
		authzSvc:        p.AuthzSvc,
		customerSvc:     p.CustomerSvc,
		invoiceSvc:      p.InvoiceSvc,
		notificationSvc: p.NotificationSvc,
		subscriptionSvc: p.SubscriptionSvc,
	}
	if p.Scheduler != nil {
		svc.scanner = p.Scheduler
	}

	svc.registerAPIRoutes()
	svc.registerCallbackRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.OperatorContext())

	// -------- Scope --------
	api.GET("/scope", s.GetScope)
	api.PUT("/scope", s.SetScope)

	// -------- Session --------
	api.POST("/session/bootstrap", s.authorizeTenantAction(authorization.ObjectNotification, authorization.ActionNotificationView), s.BootstrapSession)

	// -------- Profile --------
	api.GET("/profile", s.authorizeTenantAction(authorization.ObjectCustomer, authorization.ActionCustomerView), s.GetProfile)
	api.PUT("/profile", s.authorizeTenantAction(authorization.ObjectCustomer, authorization.ActionCustomerUpdate), s.UpsertProfile)

	// -------- Invoices --------
	api.GET("/invoices", s.authorizeTenantAction(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)

	// -------- Subscriptions --------
	subscriptions := api.Group("/subscriptions")
	{
		view := s.authorizeTenantAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView)
		transition := s.authorizeTenantAction(authorization.ObjectSubscription, authorization.ActionSubscriptionTransition)

		subscriptions.GET("", view, s.ListSubscriptions)
		subscriptions.POST("", s.authorizeTenantAction(authorization.ObjectSubscription, authorization.ActionSubscriptionCreate), s.CreateSubscription)
		subscriptions.GET("/:id", view, s.GetSubscriptionByID)
		subscriptions.DELETE("/:id", s.authorizeTenantAction(authorization.ObjectSubscription, authorization.ActionSubscriptionDelete), s.DeleteSubscription)
		subscriptions.POST("/:id/transition", transition, s.TransitionSubscription)
		subscriptions.POST("/:id/activate", transition, s.ActivateSubscription)
		subscriptions.POST("/:id/resume", transition, s.ActivateSubscription)
		subscriptions.POST("/:id/pause", transition, s.PauseSubscription)
		subscriptions.POST("/:id/cancel", transition, s.CancelSubscription)
	}

	// -------- Notifications --------
	notifications := api.Group("/notifications")
	{
		view := s.authorizeTenantAction(authorization.ObjectNotification, authorization.ActionNotificationView)
		manage := s.authorizeTenantAction(authorization.ObjectNotification, authorization.ActionNotificationManage)

		notifications.GET("", view, s.ListNotifications)
		notifications.GET("/unread-count", view, s.GetUnreadCount)
		notifications.GET("/ws", view, s.StreamNotifications)
		notifications.POST("/refresh", view, s.RefreshNotifications)
		notifications.POST("/read-all", manage, s.MarkAllNotificationsRead)
		notifications.POST("/:id/read", manage, s.MarkNotificationRead)
		notifications.DELETE("", manage, s.DeleteAllNotifications)
		notifications.DELETE("/:id", manage, s.DeleteNotification)
	}
}

func (s *Server) registerCallbackRoutes() {
	s.engine.POST("/api/billing/callback", s.CallbackAuth(), s.BillingCallback)
}
