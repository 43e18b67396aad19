package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/clock"
	"github.com/smallbiznis/portalsync/internal/config"
	"github.com/smallbiznis/portalsync/internal/notification/dedup"
	"github.com/smallbiznis/portalsync/internal/notification/domain"
	"github.com/smallbiznis/portalsync/internal/notification/liveevents"
	"github.com/smallbiznis/portalsync/internal/notification/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type failingRepo struct {
	domain.Repository
	failDeleteAll bool
	failMarkRead  bool
}

var errStoreDown = errors.New("store down")

func (r *failingRepo) DeleteAll(ctx context.Context, db *gorm.DB, tenantID uuid.UUID) error {
	if r.failDeleteAll {
		return errStoreDown
	}
	return r.Repository.DeleteAll(ctx, db, tenantID)
}

func (r *failingRepo) MarkRead(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, id snowflake.ID) (int64, error) {
	if r.failMarkRead {
		return 0, errStoreDown
	}
	return r.Repository.MarkRead(ctx, db, tenantID, id)
}

type fixture struct {
	db     *gorm.DB
	clock  *clock.FakeClock
	node   *snowflake.Node
	repo   *failingRepo
	tenant uuid.UUID
	center *Center
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Notification{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(epoch)
	repo := &failingRepo{Repository: repository.Provide()}
	tenant := uuid.New()
	tuning := config.NewStaticSyncTuning(config.DefaultSyncTuning())

	center := newCenter(tenant, centerDeps{
		db:      db,
		repo:    repo,
		deduper: dedup.New(clk, dedup.Config{LiveWindow: 5 * time.Second, SimilarityWindow: 3 * time.Second}),
		tuning:  tuning,
		log:     zap.NewNop(),
	})

	return &fixture{db: db, clock: clk, node: node, repo: repo, tenant: tenant, center: center}
}

func (f *fixture) insert(t *testing.T, title, link string) domain.Notification {
	t.Helper()
	n := domain.Notification{
		ID:        f.node.Generate(),
		TenantID:  f.tenant,
		Title:     title,
		Message:   "Facture F-2026-001",
		Type:      domain.SeveritySuccess,
		CreatedAt: f.clock.Now(),
	}
	if link != "" {
		n.Link = &link
	}
	require.NoError(t, f.repo.Insert(context.Background(), f.db, &n))
	return n
}

func TestAdmitSameEventTwiceYieldsOneAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alerts, stop := f.center.Watch()
	defer stop()

	event := f.insert(t, "Paiement reçu", "/invoices/7")

	first, err := f.center.Admit(ctx, event, domain.SourceLive)
	require.NoError(t, err)
	second, err := f.center.Admit(ctx, event, domain.SourceRefresh)
	require.NoError(t, err)

	assert.True(t, first.Fresh)
	assert.False(t, second.Fresh)
	assert.Len(t, alerts, 1)
	assert.Equal(t, int64(1), f.center.UnreadCount())
}

func TestTwoPaymentAlertsOneSecondApartDisplayOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.insert(t, "Paiement reçu", "/invoices/7")
	_, err := f.center.Admit(ctx, first, domain.SourceLive)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	second := f.insert(t, "Paiement reçu", "/invoices/7")
	res, err := f.center.Admit(ctx, second, domain.SourceLive)
	require.NoError(t, err)

	assert.False(t, res.Fresh)
	assert.Len(t, f.center.List(0), 1)
	// the store holds two unread rows; duplicates reconcile from it
	assert.Equal(t, int64(2), f.center.UnreadCount())
}

func TestRefreshCollapsesAlreadyStoredDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.insert(t, "Paiement reçu", "/invoices/7")
	f.clock.Advance(time.Second)
	f.insert(t, "Paiement reçu", "/invoices/7")

	items, err := f.center.Refresh(ctx)
	require.NoError(t, err)

	assert.Len(t, items, 1)
	assert.Equal(t, int64(2), f.center.UnreadCount())
}

func TestDeleteAllClearsListAndCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, "Paiement reçu", "/invoices/7")
	f.insert(t, "Abonnement activé", "/subscriptions/1")
	require.NoError(t, f.center.Load(ctx))
	require.Equal(t, int64(2), f.center.UnreadCount())

	require.NoError(t, f.center.DeleteAll(ctx))

	assert.Empty(t, f.center.List(0))
	assert.Equal(t, int64(0), f.center.UnreadCount())

	count, err := f.repo.CountUnread(ctx, f.db, f.tenant)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteAllFailureRestoresListAndCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, "Paiement reçu", "/invoices/7")
	f.insert(t, "Abonnement activé", "/subscriptions/1")
	require.NoError(t, f.center.Load(ctx))
	f.repo.failDeleteAll = true

	err := f.center.DeleteAll(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOptimisticRollback)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Len(t, f.center.List(0), 2)
	assert.Equal(t, int64(2), f.center.UnreadCount())
}

func TestMarkReadAndMarkAllRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.insert(t, "Paiement reçu", "/invoices/7")
	f.insert(t, "Abonnement activé", "/subscriptions/1")
	require.NoError(t, f.center.Load(ctx))

	require.NoError(t, f.center.MarkRead(ctx, first.ID))
	assert.Equal(t, int64(1), f.center.UnreadCount())

	require.NoError(t, f.center.MarkAllRead(ctx))
	assert.Equal(t, int64(0), f.center.UnreadCount())
	for _, item := range f.center.List(0) {
		assert.True(t, item.IsRead)
	}
}

func TestMarkReadFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.insert(t, "Paiement reçu", "/invoices/7")
	require.NoError(t, f.center.Load(ctx))
	f.repo.failMarkRead = true

	err := f.center.MarkRead(ctx, first.ID)

	assert.ErrorIs(t, err, domain.ErrOptimisticRollback)
	assert.Equal(t, int64(1), f.center.UnreadCount())
	assert.False(t, f.center.List(0)[0].IsRead)
}

func TestDeleteUnknownIsNotFound(t *testing.T) {
	f := newFixture(t)
	err := f.center.Delete(context.Background(), snowflake.ID(42))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdmitRejectsOtherTenant(t *testing.T) {
	f := newFixture(t)
	_, err := f.center.Admit(context.Background(), domain.Notification{ID: 1, TenantID: uuid.New(), Title: "x"}, domain.SourceLive)
	assert.ErrorIs(t, err, domain.ErrTenantMismatch)
}

func TestPumpAdmitsLiveEvents(t *testing.T) {
	f := newFixture(t)
	hub := liveevents.NewHub()
	alerts, stop := f.center.Watch()
	defer stop()

	sub, _, err := hub.Subscribe(f.tenant)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.center.Pump(ctx, sub)
	}()

	hub.Publish(domain.Notification{ID: 77, TenantID: f.tenant, Title: "Abonnement suspendu", CreatedAt: epoch})

	select {
	case got := <-alerts:
		assert.Equal(t, snowflake.ID(77), got.ID)
	case <-time.After(time.Second):
		t.Fatal("expected alert")
	}

	cancel()
	<-done
}
