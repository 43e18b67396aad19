package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/clock"
	"github.com/smallbiznis/portalsync/internal/config"
	"github.com/smallbiznis/portalsync/internal/notification/domain"
	"github.com/smallbiznis/portalsync/internal/notification/liveevents"
	"github.com/smallbiznis/portalsync/internal/notification/repository"
	"github.com/smallbiznis/portalsync/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Notification{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(epoch)
	repo := repository.Provide()
	hub := liveevents.NewHub()
	registry := NewRegistry(RegistryParams{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clk,
		Repo:   repo,
		Hub:    hub,
		Tuning: config.NewStaticSyncTuning(config.DefaultSyncTuning()),
	})
	t.Cleanup(registry.Close)

	return New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     repo,
		Hub:      hub,
		Registry: registry,
	}), clk
}

func TestNotifyRequiresTenantInScope(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Notify(context.Background(), domain.NewNotification{Title: "Paiement reçu"})
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)
}

func TestNotifyValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := orgcontext.WithTenantID(context.Background(), uuid.New())

	_, err := svc.Notify(ctx, domain.NewNotification{Title: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidTitle)

	_, err = svc.Notify(ctx, domain.NewNotification{Title: "x", Severity: "critical"})
	assert.ErrorIs(t, err, domain.ErrInvalidSeverity)
}

func TestNotifyReachesCenterThroughLiveStream(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := orgcontext.WithTenantID(context.Background(), uuid.New())

	_, _, err := svc.Bootstrap(ctx)
	require.NoError(t, err)

	link := "/invoices/7"
	created, err := svc.Notify(ctx, domain.NewNotification{Title: "Paiement reçu", Message: "F-1", Severity: domain.SeveritySuccess, Link: &link})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		count, err := svc.UnreadCount(ctx)
		return err == nil && count == 1
	}, time.Second, 10*time.Millisecond)

	items, err := svc.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, created.ID, items[0].ID)
}

func TestOperationsFollowTenantInScope(t *testing.T) {
	svc, _ := newTestService(t)
	tenantA, tenantB := uuid.New(), uuid.New()
	ctxA := orgcontext.WithTenantID(context.Background(), tenantA)
	ctxB := orgcontext.WithTenantID(context.Background(), tenantB)

	_, err := svc.Notify(ctxA, domain.NewNotification{Title: "Abonnement activé"})
	require.NoError(t, err)
	_, err = svc.Notify(ctxB, domain.NewNotification{Title: "Abonnement suspendu"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAll(ctxB))

	itemsA, count, err := svc.Bootstrap(ctxA)
	require.NoError(t, err)
	require.Len(t, itemsA, 1)
	assert.Equal(t, "Abonnement activé", itemsA[0].Title)
	assert.Equal(t, int64(1), count)

	itemsB, count, err := svc.Bootstrap(ctxB)
	require.NoError(t, err)
	assert.Empty(t, itemsB)
	assert.Zero(t, count)
}

func TestExistsSinceMatchesTitleAndLink(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := orgcontext.WithTenantID(context.Background(), uuid.New())
	link := "/invoices/10"

	_, err := svc.Notify(ctx, domain.NewNotification{
		Title:   "Échéance proche (3j)",
		Message: "La facture F-10 de 240.00 EUR arrive à échéance le 05/03/2026.",
		Link:    &link,
	})
	require.NoError(t, err)

	since := clk.Now().Add(-time.Hour)
	ok, err := svc.ExistsSince(ctx, "Échéance proche (3j)", "/invoices/10", since)
	require.NoError(t, err)
	assert.True(t, ok)

	// the link of another invoice never matches, even when it is a prefix
	ok, err = svc.ExistsSince(ctx, "Échéance proche (3j)", "/invoices/1", since)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.ExistsSince(ctx, "Échéance proche (1j)", "/invoices/10", since)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.ExistsSince(ctx, "Échéance proche (3j)", "/invoices/10", clk.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkReadRejectsMalformedID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := orgcontext.WithTenantID(context.Background(), uuid.New())

	assert.ErrorIs(t, svc.MarkRead(ctx, "abc"), domain.ErrInvalidID)
}
