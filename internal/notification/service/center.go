package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/config"
	"github.com/smallbiznis/portalsync/internal/notification/dedup"
	"github.com/smallbiznis/portalsync/internal/notification/domain"
	"github.com/smallbiznis/portalsync/internal/notification/liveevents"
	"github.com/smallbiznis/portalsync/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const watcherBuffer = 16

// Center materializes the deduplicated notification stream of one tenant.
// The list and the unread counter are only mutated here, under mu.
type Center struct {
	tenantID uuid.UUID
	db       *gorm.DB
	repo     domain.Repository
	deduper  *dedup.Deduper
	tuning   *config.SyncTuningHolder
	metrics  *metrics.PortalMetrics
	log      *zap.Logger

	mu       sync.Mutex
	items    []domain.Notification // newest first
	unread   int64
	watchers map[uint64]chan domain.Notification
	nextID   uint64
}

type centerDeps struct {
	db      *gorm.DB
	repo    domain.Repository
	deduper *dedup.Deduper
	tuning  *config.SyncTuningHolder
	metrics *metrics.PortalMetrics
	log     *zap.Logger
}

func newCenter(tenantID uuid.UUID, deps centerDeps) *Center {
	return &Center{
		tenantID: tenantID,
		db:       deps.db,
		repo:     deps.repo,
		deduper:  deps.deduper,
		tuning:   deps.tuning,
		metrics:  deps.metrics,
		log:      deps.log.With(zap.String("tenant_id", tenantID.String())),
		watchers: make(map[uint64]chan domain.Notification),
	}
}

// Load replaces the list with the store contents and reconciles the counter.
func (c *Center) Load(ctx context.Context) error {
	items, err := c.repo.List(ctx, c.db, c.tenantID, c.tuning.Get().ListLimit)
	if err != nil {
		return err
	}
	unread, err := c.repo.CountUnread(ctx, c.db, c.tenantID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.items = items
	c.unread = unread
	c.mu.Unlock()
	return nil
}

// List returns the display list: collapsed and capped at limit.
func (c *Center) List(limit int) []domain.Notification {
	tuning := c.tuning.Get()
	if limit <= 0 || limit > tuning.ListLimit {
		limit = tuning.ListLimit
	}

	c.mu.Lock()
	snapshot := append([]domain.Notification(nil), c.items...)
	c.mu.Unlock()

	collapsed := dedup.Collapse(snapshot, tuning.DisplayBucket)
	if len(collapsed) > limit {
		collapsed = collapsed[:limit]
	}
	return collapsed
}

func (c *Center) UnreadCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// Admit is the single admission boundary for every producer. A duplicate
// triggers an authoritative unread count from the store and no alert.
func (c *Center) Admit(ctx context.Context, event domain.Notification, source domain.Source) (dedup.Result, error) {
	res, err := c.admit(event, source)
	if err != nil {
		return res, err
	}
	if !res.Fresh {
		c.log.Debug("duplicate suppressed",
			zap.Int64("notification_id", event.ID.Int64()),
			zap.String("source", string(source)),
			zap.String("reason", string(res.Reason)),
		)
		c.reconcile(ctx)
	}
	return res, nil
}

func (c *Center) admit(event domain.Notification, source domain.Source) (dedup.Result, error) {
	if event.TenantID != c.tenantID {
		return dedup.Result{}, domain.ErrTenantMismatch
	}

	tuning := c.tuning.Get()
	c.deduper.Reconfigure(dedup.Config{
		LiveWindow:       tuning.LiveWindow,
		SimilarityWindow: tuning.SimilarityWindow,
		Signature:        dedup.DefaultSignature(tuning.SignaturePrefixLen),
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexOf(event.ID); idx >= 0 {
		match := c.items[idx]
		c.metrics.IncAdmission(string(source), metrics.AdmissionDroppedIdentity)
		return dedup.Result{DuplicateOf: &match, Reason: dedup.ReasonIdentity}, nil
	}

	res := c.deduper.Admit(event)
	if !res.Fresh {
		result := metrics.AdmissionDroppedSimilar
		if res.Reason == dedup.ReasonIdentity {
			result = metrics.AdmissionDroppedIdentity
		}
		c.metrics.IncAdmission(string(source), result)
		return res, nil
	}

	c.items = append(c.items, event)
	sortNewestFirst(c.items)
	if len(c.items) > tuning.ListLimit {
		c.items = c.items[:tuning.ListLimit]
	}
	if !event.IsRead {
		c.unread++
	}
	c.metrics.IncAdmission(string(source), metrics.AdmissionAdmitted)

	for _, ch := range c.watchers {
		select {
		case ch <- event:
		default:
		}
	}
	return res, nil
}

// Refresh re-fetches the store and feeds unseen rows through the admission
// boundary, oldest first. Rows gone from the store leave the list and read
// flags follow the store.
func (c *Center) Refresh(ctx context.Context) ([]domain.Notification, error) {
	limit := c.tuning.Get().ListLimit
	rows, err := c.repo.List(ctx, c.db, c.tenantID, limit)
	if err != nil {
		return nil, err
	}

	byID := make(map[snowflake.ID]domain.Notification, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	c.mu.Lock()
	complete := len(rows) < limit
	kept := c.items[:0]
	for _, item := range c.items {
		row, ok := byID[item.ID]
		if !ok {
			inRange := complete || (len(rows) > 0 && !item.CreatedAt.Before(rows[len(rows)-1].CreatedAt))
			if inRange {
				continue
			}
			kept = append(kept, item)
			continue
		}
		item.IsRead = row.IsRead
		kept = append(kept, item)
	}
	c.items = kept
	c.mu.Unlock()

	for i := len(rows) - 1; i >= 0; i-- {
		if _, err := c.admit(rows[i], domain.SourceRefresh); err != nil {
			return nil, err
		}
	}

	c.reconcile(ctx)
	return c.List(limit), nil
}

// MarkRead flips the read flag optimistically and rolls back on failure.
func (c *Center) MarkRead(ctx context.Context, id snowflake.ID) error {
	c.mu.Lock()
	idx := c.indexOf(id)
	flipped := idx >= 0 && !c.items[idx].IsRead
	if flipped {
		c.items[idx].IsRead = true
		c.unread = max(c.unread-1, 0)
	}
	c.mu.Unlock()

	affected, err := c.repo.MarkRead(ctx, c.db, c.tenantID, id)
	if err == nil && affected == 0 && idx < 0 {
		return domain.ErrNotFound
	}
	if err != nil {
		if !flipped {
			return err
		}
		c.mu.Lock()
		if i := c.indexOf(id); i >= 0 {
			c.items[i].IsRead = false
		}
		c.mu.Unlock()
		c.rolledBack("mark_read", err)
		c.reconcile(ctx)
		return errors.Join(domain.ErrOptimisticRollback, err)
	}
	if !flipped {
		c.reconcile(ctx)
	}
	return nil
}

func (c *Center) MarkAllRead(ctx context.Context) error {
	c.mu.Lock()
	previous := make(map[snowflake.ID]bool, len(c.items))
	for i := range c.items {
		previous[c.items[i].ID] = c.items[i].IsRead
		c.items[i].IsRead = true
	}
	previousUnread := c.unread
	c.unread = 0
	c.mu.Unlock()

	if err := c.repo.MarkAllRead(ctx, c.db, c.tenantID); err != nil {
		c.mu.Lock()
		for i := range c.items {
			if wasRead, ok := previous[c.items[i].ID]; ok {
				c.items[i].IsRead = wasRead
			}
		}
		c.unread += previousUnread
		c.mu.Unlock()
		c.rolledBack("mark_all_read", err)
		return errors.Join(domain.ErrOptimisticRollback, err)
	}
	return nil
}

// Delete removes one notification optimistically.
func (c *Center) Delete(ctx context.Context, id snowflake.ID) error {
	c.mu.Lock()
	idx := c.indexOf(id)
	var removed domain.Notification
	if idx >= 0 {
		removed = c.items[idx]
		c.items = append(c.items[:idx], c.items[idx+1:]...)
		if !removed.IsRead {
			c.unread = max(c.unread-1, 0)
		}
	}
	c.mu.Unlock()

	affected, err := c.repo.Delete(ctx, c.db, c.tenantID, id)
	if err != nil {
		if idx < 0 {
			return err
		}
		c.mu.Lock()
		c.items = append(c.items, removed)
		sortNewestFirst(c.items)
		c.mu.Unlock()
		c.rolledBack("delete", err)
		c.reconcile(ctx)
		return errors.Join(domain.ErrOptimisticRollback, err)
	}
	if affected == 0 && idx < 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteAll clears the list and counter now. On failure the previous list and
// counter come back, merged with anything admitted meanwhile.
func (c *Center) DeleteAll(ctx context.Context) error {
	c.mu.Lock()
	previous := c.items
	previousUnread := c.unread
	c.items = nil
	c.unread = 0
	c.mu.Unlock()

	if err := c.repo.DeleteAll(ctx, c.db, c.tenantID); err != nil {
		c.mu.Lock()
		merged := append([]domain.Notification(nil), c.items...)
		for _, item := range previous {
			if c.indexOf(item.ID) < 0 {
				merged = append(merged, item)
			}
		}
		sortNewestFirst(merged)
		c.items = merged
		c.unread += previousUnread
		c.mu.Unlock()
		c.rolledBack("delete_all", err)
		return errors.Join(domain.ErrOptimisticRollback, err)
	}
	return nil
}

// Watch streams fresh admissions. Slow watchers miss alerts.
func (c *Center) Watch() (<-chan domain.Notification, func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	ch := make(chan domain.Notification, watcherBuffer)
	c.watchers[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			close(ch)
			c.mu.Unlock()
		})
	}
}

// Pump feeds the live stream of the tenant into the center until ctx ends.
// The subscription must be opened before Load so no committed row is missed;
// its backlog is superseded by the loaded list.
func (c *Center) Pump(ctx context.Context, sub *liveevents.Subscription) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if _, err := c.Admit(ctx, event, domain.SourceLive); err != nil {
				c.log.Warn("live event rejected", zap.Error(err))
			}
		}
	}
}

func (c *Center) reconcile(ctx context.Context) {
	unread, err := c.repo.CountUnread(ctx, c.db, c.tenantID)
	if err != nil {
		c.log.Warn("unread count reconcile failed", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.unread = unread
	c.mu.Unlock()
}

func (c *Center) rolledBack(operation string, err error) {
	c.metrics.IncOptimisticRollback(operation)
	c.log.Warn("optimistic update rolled back", zap.String("operation", operation), zap.Error(err))
}

// indexOf must be called with mu held.
func (c *Center) indexOf(id snowflake.ID) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

func sortNewestFirst(items []domain.Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
