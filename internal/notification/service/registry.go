package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/clock"
	"github.com/smallbiznis/portalsync/internal/config"
	"github.com/smallbiznis/portalsync/internal/notification/dedup"
	"github.com/smallbiznis/portalsync/internal/notification/domain"
	"github.com/smallbiznis/portalsync/internal/notification/liveevents"
	"github.com/smallbiznis/portalsync/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type RegistryParams struct {
	fx.In

	Lifecycle fx.Lifecycle `optional:"true"`
	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      domain.Repository
	Hub       *liveevents.Hub
	Tuning    *config.SyncTuningHolder
	Metrics   *metrics.PortalMetrics `optional:"true"`
}

// Registry owns one Center per tenant. A center is loaded and attached to the
// live stream the first time its tenant is resolved.
type Registry struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    domain.Repository
	hub     *liveevents.Hub
	tuning  *config.SyncTuningHolder
	metrics *metrics.PortalMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	centers map[uuid.UUID]*Center
}

func NewRegistry(p RegistryParams) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		db:      p.DB,
		log:     p.Log.Named("notification.center"),
		clock:   p.Clock,
		repo:    p.Repo,
		hub:     p.Hub,
		tuning:  p.Tuning,
		metrics: p.Metrics,
		ctx:     ctx,
		cancel:  cancel,
		centers: make(map[uuid.UUID]*Center),
	}
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				r.Close()
				return nil
			},
		})
	}
	return r
}

// For returns the center of tenantID, loading it on first use. The load runs
// outside the registry lock; when two callers race on the same tenant the
// first stored center wins and the other copy is dropped.
func (r *Registry) For(ctx context.Context, tenantID uuid.UUID) (*Center, error) {
	if tenantID == uuid.Nil {
		return nil, domain.ErrInvalidTenant
	}

	if center, err := r.lookup(tenantID); center != nil || err != nil {
		return center, err
	}

	tuning := r.tuning.Get()
	center := newCenter(tenantID, centerDeps{
		db:   r.db,
		repo: r.repo,
		deduper: dedup.New(r.clock, dedup.Config{
			LiveWindow:       tuning.LiveWindow,
			SimilarityWindow: tuning.SimilarityWindow,
			Signature:        dedup.DefaultSignature(tuning.SignaturePrefixLen),
		}),
		tuning:  r.tuning,
		metrics: r.metrics,
		log:     r.log,
	})
	// subscribe before loading so rows inserted during the load still arrive
	sub, _, err := r.hub.Subscribe(tenantID)
	if err != nil {
		return nil, err
	}
	if err := center.Load(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.centers[tenantID]; ok {
		r.mu.Unlock()
		sub.Close()
		return existing, nil
	}
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		sub.Close()
		return nil, domain.ErrCenterUnavailable
	}
	r.centers[tenantID] = center
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		center.Pump(r.ctx, sub)
	}()
	return center, nil
}

func (r *Registry) lookup(tenantID uuid.UUID) (*Center, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if center, ok := r.centers[tenantID]; ok {
		return center, nil
	}
	if r.ctx.Err() != nil {
		return nil, domain.ErrCenterUnavailable
	}
	return nil, nil
}

// Close detaches every center from the live stream.
func (r *Registry) Close() {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
}
