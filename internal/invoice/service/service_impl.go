package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/invoice/domain"
	"github.com/smallbiznis/portalsync/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("invoice.service"),
		repo: p.Repo,
	}
}

func (s *Service) ListUnpaid(ctx context.Context) ([]domain.Invoice, error) {
	return s.list(ctx, domain.InvoiceStatusPending, domain.InvoiceStatusOverdue)
}

func (s *Service) List(ctx context.Context, status string) ([]domain.Invoice, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch domain.InvoiceStatus(status) {
	case "":
		return s.list(ctx)
	case domain.InvoiceStatusPending, domain.InvoiceStatusPaid, domain.InvoiceStatusOverdue:
		return s.list(ctx, domain.InvoiceStatus(status))
	default:
		return nil, domain.ErrInvalidStatus
	}
}

func (s *Service) TenantsWithUnpaid(ctx context.Context) ([]uuid.UUID, error) {
	return s.repo.TenantsWithUnpaid(ctx, s.db)
}

func (s *Service) list(ctx context.Context, statuses ...domain.InvoiceStatus) ([]domain.Invoice, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}

	items, err := s.repo.ListByStatus(ctx, s.db, tenantID, statuses...)
	if err != nil {
		return nil, err
	}

	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		if item != nil {
			invoices = append(invoices, *item)
		}
	}
	return invoices, nil
}
