package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/clock"
	"github.com/smallbiznis/portalsync/internal/notification/domain"
	"github.com/smallbiznis/portalsync/internal/notification/liveevents"
	"github.com/smallbiznis/portalsync/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Hub      *liveevents.Hub
	Registry *Registry
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	hub      *liveevents.Hub
	registry *Registry
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("notification.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		hub:      p.Hub,
		registry: p.Registry,
	}
}

// Notify inserts a notification for the tenant in scope and publishes the
// committed row on the live stream.
func (s *Service) Notify(ctx context.Context, req domain.NewNotification) (domain.Notification, error) {
	tenantID, err := tenantFromContext(ctx)
	if err != nil {
		return domain.Notification{}, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Notification{}, domain.ErrInvalidTitle
	}
	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityInfo
	}
	if !severity.Valid() {
		return domain.Notification{}, domain.ErrInvalidSeverity
	}

	var link *string
	if req.Link != nil {
		if value := strings.TrimSpace(*req.Link); value != "" {
			link = &value
		}
	}

	notification := domain.Notification{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Title:     title,
		Message:   strings.TrimSpace(req.Message),
		Type:      severity,
		Link:      link,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &notification); err != nil {
		return domain.Notification{}, err
	}

	s.hub.Publish(notification)
	return notification, nil
}

func (s *Service) ExistsSince(ctx context.Context, title, link string, since time.Time) (bool, error) {
	tenantID, err := tenantFromContext(ctx)
	if err != nil {
		return false, err
	}
	return s.repo.ExistsSince(ctx, s.db, tenantID, strings.TrimSpace(title), strings.TrimSpace(link), since)
}

// Bootstrap reloads the center from the store so the counter is authoritative.
func (s *Service) Bootstrap(ctx context.Context) ([]domain.Notification, int64, error) {
	center, err := s.center(ctx)
	if err != nil {
		return nil, 0, err
	}
	if err := center.Load(ctx); err != nil {
		return nil, 0, err
	}
	return center.List(0), center.UnreadCount(), nil
}

func (s *Service) List(ctx context.Context, limit int) ([]domain.Notification, error) {
	center, err := s.center(ctx)
	if err != nil {
		return nil, err
	}
	return center.List(limit), nil
}

func (s *Service) UnreadCount(ctx context.Context) (int64, error) {
	center, err := s.center(ctx)
	if err != nil {
		return 0, err
	}
	return center.UnreadCount(), nil
}

func (s *Service) MarkRead(ctx context.Context, id string) error {
	notificationID, err := parseID(id)
	if err != nil {
		return err
	}
	center, err := s.center(ctx)
	if err != nil {
		return err
	}
	return center.MarkRead(ctx, notificationID)
}

func (s *Service) MarkAllRead(ctx context.Context) error {
	center, err := s.center(ctx)
	if err != nil {
		return err
	}
	return center.MarkAllRead(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	notificationID, err := parseID(id)
	if err != nil {
		return err
	}
	center, err := s.center(ctx)
	if err != nil {
		return err
	}
	return center.Delete(ctx, notificationID)
}

func (s *Service) DeleteAll(ctx context.Context) error {
	center, err := s.center(ctx)
	if err != nil {
		return err
	}
	return center.DeleteAll(ctx)
}

func (s *Service) Refresh(ctx context.Context) ([]domain.Notification, error) {
	center, err := s.center(ctx)
	if err != nil {
		return nil, err
	}
	return center.Refresh(ctx)
}

func (s *Service) Watch(ctx context.Context) (<-chan domain.Notification, func(), error) {
	center, err := s.center(ctx)
	if err != nil {
		return nil, nil, err
	}
	ch, stop := center.Watch()
	return ch, stop, nil
}

func (s *Service) center(ctx context.Context) (*Center, error) {
	tenantID, err := tenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.registry.For(ctx, tenantID)
}

func tenantFromContext(ctx context.Context) (uuid.UUID, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok || tenantID == uuid.Nil {
		return uuid.Nil, domain.ErrInvalidTenant
	}
	return tenantID, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
