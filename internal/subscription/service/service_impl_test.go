package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	billingsyncdomain "github.com/smallbiznis/portalsync/internal/billingsync/domain"
	"github.com/smallbiznis/portalsync/internal/billingsync/mock"
	"github.com/smallbiznis/portalsync/internal/clock"
	customerdomain "github.com/smallbiznis/portalsync/internal/customer/domain"
	customerrepository "github.com/smallbiznis/portalsync/internal/customer/repository"
	customerservice "github.com/smallbiznis/portalsync/internal/customer/service"
	notificationdomain "github.com/smallbiznis/portalsync/internal/notification/domain"
	"github.com/smallbiznis/portalsync/internal/orgcontext"
	subscriptiondomain "github.com/smallbiznis/portalsync/internal/subscription/domain"
	"github.com/smallbiznis/portalsync/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu    sync.Mutex
	items []notificationdomain.NewNotification
}

func (n *recordingNotifier) Notify(ctx context.Context, req notificationdomain.NewNotification) (notificationdomain.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, req)
	tenantID, _ := orgcontext.TenantIDFromContext(ctx)
	return notificationdomain.Notification{TenantID: tenantID, Title: req.Title}, nil
}

func (n *recordingNotifier) ExistsSince(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.items))
	for _, item := range n.items {
		out = append(out, item.Title)
	}
	return out
}

// failingUpdateRepo fails the lifecycle write to simulate a store outage
// after the intent went out.
type failingUpdateRepo struct {
	subscriptiondomain.Repository
}

func (r failingUpdateRepo) UpdateLifecycle(context.Context, *gorm.DB, *subscriptiondomain.Subscription, subscriptiondomain.SubscriptionStatus) (int64, error) {
	return 0, errors.New("connection reset")
}

type harness struct {
	svc        subscriptiondomain.Service
	dispatcher *mock.MockDispatcher
	notifier   *recordingNotifier
	clock      *clock.FakeClock
	db         *gorm.DB
	ctx        context.Context
	tenantID   uuid.UUID
	intents    []billingsyncdomain.Intent
}

func newHarness(t *testing.T, repo subscriptiondomain.Repository) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&subscriptiondomain.Subscription{}, &customerdomain.Customer{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	h := &harness{
		dispatcher: mock.NewMockDispatcher(ctrl),
		notifier:   &recordingNotifier{},
		clock:      clock.NewFakeClock(epoch),
		db:         db,
		tenantID:   uuid.New(),
	}
	h.ctx = orgcontext.WithTenantID(context.Background(), h.tenantID)

	customers := customerservice.New(customerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: h.clock,
		Repo:  customerrepository.Provide(),
	})
	_, err = customers.Upsert(h.ctx, customerdomain.UpsertCustomerRequest{Name: "Camille Martin", Email: "camille@atelier.fr", Company: "Atelier Nord"})
	require.NoError(t, err)

	if repo == nil {
		repo = repository.Provide()
	}
	h.svc = NewService(ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       h.clock,
		Repo:        repo,
		Dispatcher:  h.dispatcher,
		CustomerSvc: customers,
		Notifier:    h.notifier,
	})
	return h
}

func (h *harness) expectDispatch(times int) {
	h.dispatcher.EXPECT().
		Dispatch(gomock.Any(), gomock.Any()).
		Times(times).
		Do(func(_ context.Context, intent billingsyncdomain.Intent) {
			h.intents = append(h.intents, intent)
		})
}

func (h *harness) create(t *testing.T) subscriptiondomain.Subscription {
	t.Helper()
	sub, err := h.svc.Create(h.ctx, subscriptiondomain.CreateSubscriptionRequest{
		ServiceName:  "Hébergement Pro",
		Amount:       "49.90",
		Currency:     "eur",
		BillingCycle: subscriptiondomain.BillingCycleMonthly,
		TaxRate:      "20",
	})
	require.NoError(t, err)
	return sub
}

func TestCreateStartsPending(t *testing.T) {
	h := newHarness(t, nil)

	sub := h.create(t)

	assert.Equal(t, subscriptiondomain.SubscriptionStatusPending, sub.Status)
	assert.Equal(t, "EUR", sub.Currency)
	assert.Nil(t, sub.StripeID)
	assert.Nil(t, sub.StartDate)
}

func TestCreateValidatesInput(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.svc.Create(h.ctx, subscriptiondomain.CreateSubscriptionRequest{ServiceName: "x", Amount: "abc"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidAmount)

	_, err = h.svc.Create(h.ctx, subscriptiondomain.CreateSubscriptionRequest{ServiceName: "x", Amount: "10", TaxRate: "120"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTaxRate)

	_, err = h.svc.Create(h.ctx, subscriptiondomain.CreateSubscriptionRequest{ServiceName: "x", Amount: "10", BillingCycle: "weekly"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidBillingCycle)

	_, err = h.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{ServiceName: "x", Amount: "10"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTenant)
}

func TestUnreachableTargetHasNoSideEffect(t *testing.T) {
	h := newHarness(t, nil)
	h.expectDispatch(0)
	sub := h.create(t)

	_, err := h.svc.TransitionSubscription(h.ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusPaused)
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)

	got, err := h.svc.GetByID(h.ctx, sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusPending, got.Status)
	assert.Nil(t, got.StripeID)
	assert.Empty(t, h.intents)
	assert.Empty(t, h.notifier.titles())
}

func TestFirstActivationSendsSubscriptionStart(t *testing.T) {
	h := newHarness(t, nil)
	h.expectDispatch(1)
	sub := h.create(t)

	updated, err := h.svc.TransitionSubscription(h.ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusActive)
	require.NoError(t, err)

	require.Len(t, h.intents, 1)
	intent := h.intents[0]
	assert.Equal(t, billingsyncdomain.ModeSubscriptionStart, intent.Mode)
	assert.Equal(t, "active", intent.TargetStatus)
	assert.Equal(t, "pending", intent.Subscription.Status)
	assert.Equal(t, "49.9", intent.Subscription.Amount.String())
	assert.Equal(t, "month", intent.Subscription.Interval)
	assert.Equal(t, "20", intent.Subscription.TaxRate.String())
	assert.Nil(t, intent.Subscription.StripeID)
	assert.Equal(t, "camille@atelier.fr", intent.Client.Email)
	assert.Equal(t, h.tenantID.String(), intent.Client.SupabaseUserID)

	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, updated.Status)
	require.NotNil(t, updated.StartDate)
	assert.True(t, updated.StartDate.Equal(epoch))
	require.NotNil(t, updated.NextBillingDate)
	assert.True(t, updated.NextBillingDate.Equal(epoch.AddDate(0, 1, 0)))
}

func TestResumeReusesExternalReference(t *testing.T) {
	h := newHarness(t, nil)
	h.expectDispatch(3)
	sub := h.create(t)

	_, err := h.svc.TransitionSubscription(h.ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusActive)
	require.NoError(t, err)

	_, err = h.svc.ApplyExternalReference(context.Background(), subscriptiondomain.ApplyExternalReferenceRequest{
		SubscriptionID: sub.ID.String(),
		StripeID:       "sub_123",
	})
	require.NoError(t, err)

	h.clock.Advance(24 * time.Hour)
	_, err = h.svc.TransitionSubscription(h.ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusPaused)
	require.NoError(t, err)

	h.clock.Advance(24 * time.Hour)
	resumed, err := h.svc.TransitionSubscription(h.ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusActive)
	require.NoError(t, err)

	require.Len(t, h.intents, 3)
	resume := h.intents[2]
	assert.Equal(t, billingsyncdomain.ModeUpdateStatus, resume.Mode)
	assert.Equal(t, "paused", resume.Subscription.Status)
	require.NotNil(t, resume.Subscription.StripeID)
	assert.Equal(t, "sub_123", *resume.Subscription.StripeID)

	require.NotNil(t, resumed.StripeID)
	assert.Equal(t, "sub_123", *resumed.StripeID)
	require.NotNil(t, resumed.StartDate)
	assert.True(t, resumed.StartDate.Equal(epoch))
	assert.Equal(t,
		[]string{"Activation de l'abonnement en cours", "Abonnement activé", "Suspension de l'abonnement", "Réactivation de l'abonnement"},
		h.notifier.titles(),
	)
}

func TestCancelledIsTerminal(t *testing.T) {
	h := newHarness(t, nil)
	h.expectDispatch(2)
	sub := h.create(t)

	_, err := h.svc.TransitionSubscription(h.ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusActive)
	require.NoError(t, err)
	_, err = h.svc.TransitionSubscription(h.ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusCancelled)
	require.NoError(t, err)

	_, err = h.svc.TransitionSubscription(h.ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusActive)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
}

func TestLocalWriteFailureSurfacesAfterDispatch(t *testing.T) {
	h := newHarness(t, failingUpdateRepo{Repository: repository.Provide()})
	h.expectDispatch(1)
	sub := h.create(t)

	_, err := h.svc.TransitionSubscription(h.ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusActive)

	require.Error(t, err)
	assert.ErrorIs(t, err, subscriptiondomain.ErrLocalWriteFailed)
	var writeErr *subscriptiondomain.LocalWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, sub.ID, writeErr.SubscriptionID)
	assert.Len(t, h.intents, 1)
	assert.Empty(t, h.notifier.titles())
}

func TestApplyExternalReferenceIsImmutable(t *testing.T) {
	h := newHarness(t, nil)
	sub := h.create(t)

	req := subscriptiondomain.ApplyExternalReferenceRequest{SubscriptionID: sub.ID.String(), StripeID: "sub_1"}
	_, err := h.svc.ApplyExternalReference(context.Background(), req)
	require.NoError(t, err)

	_, err = h.svc.ApplyExternalReference(context.Background(), req)
	require.NoError(t, err)

	req.StripeID = "sub_2"
	_, err = h.svc.ApplyExternalReference(context.Background(), req)
	assert.ErrorIs(t, err, subscriptiondomain.ErrExternalReferenceImmutable)
	assert.Equal(t, []string{"Abonnement activé"}, h.notifier.titles())
}

func TestReadsAndWritesFollowTenantInScope(t *testing.T) {
	h := newHarness(t, nil)
	sub := h.create(t)
	other := orgcontext.WithTenantID(context.Background(), uuid.New())

	_, err := h.svc.GetByID(other, sub.ID.String())
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	assert.ErrorIs(t, h.svc.Delete(other, sub.ID.String()), subscriptiondomain.ErrSubscriptionNotFound)

	list, err := h.svc.List(other, subscriptiondomain.ListSubscriptionRequest{})
	require.NoError(t, err)
	assert.Empty(t, list.Subscriptions)

	require.NoError(t, h.svc.Delete(h.ctx, sub.ID.String()))
}

func TestListPaginatesNewestFirst(t *testing.T) {
	h := newHarness(t, nil)
	var created []subscriptiondomain.Subscription
	for i := 0; i < 3; i++ {
		created = append(created, h.create(t))
		h.clock.Advance(time.Minute)
	}

	first, err := h.svc.List(h.ctx, subscriptiondomain.ListSubscriptionRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Subscriptions, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, created[2].ID, first.Subscriptions[0].ID)

	second, err := h.svc.List(h.ctx, subscriptiondomain.ListSubscriptionRequest{PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Subscriptions, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, created[0].ID, second.Subscriptions[0].ID)

	pending, err := h.svc.List(h.ctx, subscriptiondomain.ListSubscriptionRequest{Status: "active"})
	require.NoError(t, err)
	assert.Empty(t, pending.Subscriptions)
}
