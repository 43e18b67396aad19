package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/clock"
	"github.com/smallbiznis/portalsync/internal/config"
	"github.com/smallbiznis/portalsync/internal/notification/domain"
	"github.com/smallbiznis/portalsync/internal/notification/liveevents"
	"github.com/smallbiznis/portalsync/internal/notification/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// blockingRepo holds List for one tenant until release is closed.
type blockingRepo struct {
	domain.Repository
	slowTenant uuid.UUID
	entered    chan struct{}
	release    chan struct{}
}

func (r *blockingRepo) List(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, limit int) ([]domain.Notification, error) {
	if tenantID == r.slowTenant {
		r.entered <- struct{}{}
		<-r.release
	}
	return r.Repository.List(ctx, db, tenantID, limit)
}

func newTestRegistry(t *testing.T, repo domain.Repository) *Registry {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Notification{}))

	registry := NewRegistry(RegistryParams{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(epoch),
		Repo:   repo,
		Hub:    liveevents.NewHub(),
		Tuning: config.NewStaticSyncTuning(config.DefaultSyncTuning()),
	})
	t.Cleanup(registry.Close)
	return registry
}

func TestSlowLoadDoesNotBlockOtherTenants(t *testing.T) {
	repo := &blockingRepo{
		Repository: repository.Provide(),
		slowTenant: uuid.New(),
		entered:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	registry := newTestRegistry(t, repo)

	slowDone := make(chan error, 1)
	go func() {
		_, err := registry.For(context.Background(), repo.slowTenant)
		slowDone <- err
	}()

	select {
	case <-repo.entered:
	case <-time.After(time.Second):
		t.Fatal("slow tenant load did not start")
	}

	fastDone := make(chan error, 1)
	go func() {
		_, err := registry.For(context.Background(), uuid.New())
		fastDone <- err
	}()

	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("other tenant waited behind the slow load")
	}

	close(repo.release)
	require.NoError(t, <-slowDone)
}

func TestConcurrentFirstAccessSharesOneCenter(t *testing.T) {
	registry := newTestRegistry(t, repository.Provide())
	tenant := uuid.New()

	const callers = 8
	centers := make([]*Center, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			center, err := registry.For(context.Background(), tenant)
			assert.NoError(t, err)
			centers[i] = center
		}(i)
	}
	wg.Wait()

	for _, center := range centers[1:] {
		assert.Same(t, centers[0], center)
	}
}

func TestForAfterCloseIsUnavailable(t *testing.T) {
	registry := newTestRegistry(t, repository.Provide())
	registry.Close()

	_, err := registry.For(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrCenterUnavailable)
}
