package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	billingsyncdomain "github.com/smallbiznis/portalsync/internal/billingsync/domain"
	"github.com/smallbiznis/portalsync/internal/clock"
	customerdomain "github.com/smallbiznis/portalsync/internal/customer/domain"
	notificationdomain "github.com/smallbiznis/portalsync/internal/notification/domain"
	"github.com/smallbiznis/portalsync/internal/observability/metrics"
	"github.com/smallbiznis/portalsync/internal/orgcontext"
	subscriptiondomain "github.com/smallbiznis/portalsync/internal/subscription/domain"
	"github.com/smallbiznis/portalsync/pkg/db/pagination"
	"github.com/smallbiznis/portalsync/pkg/log/ctxlogger"
	"github.com/smallbiznis/portalsync/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	transitionResultOK             = "ok"
	transitionResultInvalid        = "invalid"
	transitionResultLocalWriteFail = "local_write_failed"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID            *snowflake.Node
	clock            clock.Clock
	repo             subscriptiondomain.Repository
	subscriptionRepo repository.Repository[subscriptiondomain.Subscription]

	dispatcher  billingsyncdomain.Dispatcher
	customersvc customerdomain.Service
	notifier    notificationdomain.Writer
	metrics     *metrics.PortalMetrics
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository

	Dispatcher  billingsyncdomain.Dispatcher
	CustomerSvc customerdomain.Service
	Notifier    notificationdomain.Writer
	Metrics     *metrics.PortalMetrics `optional:"true"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		subscriptionRepo: repository.ProvideStore[subscriptiondomain.Subscription](p.DB),

		dispatcher:  p.Dispatcher,
		customersvc: p.CustomerSvc,
		notifier:    p.Notifier,
		metrics:     p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTenant
	}

	name := strings.TrimSpace(req.ServiceName)
	if name == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidServiceName
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || amount.IsNegative() {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidAmount
	}

	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	cycle, err := parseBillingCycle(req.BillingCycle)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	taxRate, err := parseTaxRate(req.TaxRate)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	now := s.clock.Now()
	subscription := subscriptiondomain.Subscription{
		ID:           s.genID.Generate(),
		TenantID:     tenantID,
		ServiceName:  name,
		Amount:       amount.Round(2),
		Currency:     currency,
		BillingCycle: cycle,
		TaxRate:      taxRate,
		Status:       subscriptiondomain.SubscriptionStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Metadata != nil {
		subscription.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Insert(ctx, s.db, &subscription); err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	return subscription, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTenant
	}

	subscriptionID, err := s.parseID(id, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, tenantID, subscriptionID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListSubscriptionRequest) (subscriptiondomain.ListSubscriptionResponse, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return subscriptiondomain.ListSubscriptionResponse{}, subscriptiondomain.ErrInvalidTenant
	}

	filter := &subscriptiondomain.Subscription{TenantID: tenantID}
	statusFilter, err := parseStatusFilter(req.Status)
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, err
	}
	if statusFilter != nil {
		filter.Status = *statusFilter
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	limit := page.Limit()

	options := []repository.QueryOption{
		repository.WithOrder("created_at desc, id desc"),
		repository.WithLimit(limit + 1),
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return subscriptiondomain.ListSubscriptionResponse{}, subscriptiondomain.ErrInvalidSubscription
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return subscriptiondomain.ListSubscriptionResponse{}, subscriptiondomain.ErrInvalidSubscription
		}
		cursorID, err := s.parseID(cursor.ID, subscriptiondomain.ErrInvalidSubscription)
		if err != nil {
			return subscriptiondomain.ListSubscriptionResponse{}, err
		}
		options = append(options, repository.WithWhere(
			"(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, cursorID,
		))
	}

	items, err := s.subscriptionRepo.Find(ctx, filter, options...)
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, err
	}

	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(item *subscriptiondomain.Subscription) pagination.Cursor {
		return pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	})
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, err
	}

	subscriptions := make([]subscriptiondomain.Subscription, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		subscriptions = append(subscriptions, *item)
	}

	return subscriptiondomain.ListSubscriptionResponse{
		PageInfo:      pageInfo,
		Subscriptions: subscriptions,
	}, nil
}

// Delete removes the subscription whatever its status. Nothing is sent to
// the billing workflow.
func (s *Service) Delete(ctx context.Context, id string) error {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return subscriptiondomain.ErrInvalidTenant
	}

	subscriptionID, err := s.parseID(id, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return err
	}

	affected, err := s.repo.Delete(ctx, s.db, tenantID, subscriptionID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return subscriptiondomain.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Service) TransitionSubscription(
	ctx context.Context,
	subscriptionID string,
	targetStatus subscriptiondomain.SubscriptionStatus,
) (subscriptiondomain.Subscription, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTenant
	}

	id, err := s.parseID(subscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	targetStatus = subscriptiondomain.SubscriptionStatus(strings.ToLower(strings.TrimSpace(string(targetStatus))))
	if !subscriptiondomain.IsValidStatus(targetStatus) {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTargetStatus
	}

	current, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if current == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	log := ctxlogger.WithContext(ctx, s.log).With(
		zap.String("subscription_id", current.ID.String()),
		zap.String("from", string(current.Status)),
		zap.String("to", string(targetStatus)),
	)

	if !subscriptiondomain.CanTransition(current.Status, targetStatus) {
		s.metrics.IncTransition(string(targetStatus), transitionResultInvalid)
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTransition
	}

	intent, err := s.buildIntent(ctx, tenantID, *current, targetStatus)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.dispatcher.Dispatch(ctx, intent)
	log.Info("lifecycle intent dispatched", zap.String("mode", string(intent.Mode)))

	updated := *current
	now := s.clock.Now()
	applyLifecycle(&updated, targetStatus, now)

	affected, err := s.repo.UpdateLifecycle(ctx, s.db, &updated, current.Status)
	if err == nil && affected == 0 {
		err = subscriptiondomain.ErrStaleSubscription
	}
	if err != nil {
		s.metrics.IncTransition(string(targetStatus), transitionResultLocalWriteFail)
		log.Error("local status write failed after dispatch", zap.Error(err))
		return subscriptiondomain.Subscription{}, &subscriptiondomain.LocalWriteError{
			SubscriptionID: current.ID,
			Target:         targetStatus,
			Err:            err,
		}
	}

	s.metrics.IncTransition(string(targetStatus), transitionResultOK)
	s.notifyTransition(ctx, log, current.Status, updated)
	return updated, nil
}

// ApplyExternalReference records the upstream reference reported by the
// billing workflow. The callback carries no tenant scope; the subscription
// row provides it.
func (s *Service) ApplyExternalReference(ctx context.Context, req subscriptiondomain.ApplyExternalReferenceRequest) (subscriptiondomain.Subscription, error) {
	id, err := s.parseID(req.SubscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	stripeID := strings.TrimSpace(req.StripeID)
	if stripeID == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidExternalReference
	}

	subscription, err := s.repo.FindByIDAnyTenant(ctx, s.db, id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	ctx = orgcontext.WithTenantID(ctx, subscription.TenantID)
	log := ctxlogger.WithContext(ctx, s.log).With(zap.String("subscription_id", subscription.ID.String()))

	if subscription.HasExternalReference() {
		if *subscription.StripeID != stripeID {
			log.Warn("external reference change rejected", zap.String("stripe_id", stripeID))
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrExternalReferenceImmutable
		}
		return *subscription, nil
	}

	affected, err := s.repo.SetExternalReference(ctx, s.db, subscription.ID, stripeID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if affected == 0 {
		// another callback won the race
		latest, err := s.repo.FindByIDAnyTenant(ctx, s.db, id)
		if err != nil {
			return subscriptiondomain.Subscription{}, err
		}
		if latest == nil {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
		}
		if latest.StripeID == nil || *latest.StripeID != stripeID {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrExternalReferenceImmutable
		}
		return *latest, nil
	}
	subscription.StripeID = &stripeID

	if req.StripeCustomerID != nil && strings.TrimSpace(*req.StripeCustomerID) != "" {
		if err := s.customersvc.AttachExternalReference(ctx, *req.StripeCustomerID); err != nil && !errors.Is(err, customerdomain.ErrNotFound) {
			log.Warn("customer reference not stored", zap.Error(err))
		}
	}

	link := subscriptionLink(subscription.ID)
	if _, err := s.notifier.Notify(ctx, notificationdomain.NewNotification{
		Title:    "Abonnement activé",
		Message:  "Votre abonnement " + subscription.ServiceName + " est actif.",
		Severity: notificationdomain.SeveritySuccess,
		Link:     &link,
	}); err != nil {
		log.Warn("activation notification not stored", zap.Error(err))
	}

	log.Info("external reference applied")
	return *subscription, nil
}

func (s *Service) buildIntent(
	ctx context.Context,
	tenantID uuid.UUID,
	subscription subscriptiondomain.Subscription,
	target subscriptiondomain.SubscriptionStatus,
) (billingsyncdomain.Intent, error) {
	mode := billingsyncdomain.ModeUpdateStatus
	if subscriptiondomain.IsFirstActivation(subscription, target) {
		mode = billingsyncdomain.ModeSubscriptionStart
	}

	client := billingsyncdomain.ClientPayload{SupabaseUserID: tenantID.String()}
	profile, err := s.customersvc.Get(ctx)
	switch {
	case err == nil:
		client.Email = profile.Email
		client.Name = profile.Name
		client.Company = profile.Company
		client.StripeCustomerID = profile.StripeCustomerID
		client.VATNumber = profile.VATNumber
		client.Address = profile.Address
	case errors.Is(err, customerdomain.ErrNotFound):
		ctxlogger.WithContext(ctx, s.log).Warn("billing profile missing, intent sent without contact")
	default:
		return billingsyncdomain.Intent{}, err
	}

	return billingsyncdomain.Intent{
		Mode:         mode,
		TargetStatus: string(target),
		Subscription: billingsyncdomain.SubscriptionPayload{
			ID:       subscription.ID.String(),
			Name:     subscription.ServiceName,
			Amount:   decimalNumber(subscription.Amount),
			Interval: subscription.BillingCycle.Interval(),
			Currency: subscription.Currency,
			Status:   string(subscription.Status),
			StripeID: subscription.StripeID,
			TaxRate:  decimalNumber(subscription.TaxRate),
		},
		Client: client,
	}, nil
}

func (s *Service) notifyTransition(ctx context.Context, log *zap.Logger, from subscriptiondomain.SubscriptionStatus, subscription subscriptiondomain.Subscription) {
	title, severity := transitionNotice(from, subscription.Status)
	if title == "" {
		return
	}
	link := subscriptionLink(subscription.ID)
	if _, err := s.notifier.Notify(ctx, notificationdomain.NewNotification{
		Title:    title,
		Message:  subscription.ServiceName,
		Severity: severity,
		Link:     &link,
	}); err != nil {
		log.Warn("transition notification not stored", zap.Error(err))
	}
}

func (s *Service) parseID(value string, invalidErr error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalidErr
	}
	return id, nil
}
