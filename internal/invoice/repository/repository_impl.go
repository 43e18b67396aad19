package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/invoice/domain"
	"github.com/smallbiznis/portalsync/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return repository.ProvideStore[domain.Invoice](db).Create(ctx, invoice)
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, statuses ...domain.InvoiceStatus) ([]*domain.Invoice, error) {
	opts := []repository.QueryOption{
		repository.WithWhere("tenant_id = ?", tenantID),
		repository.WithOrder("due_date asc, id asc"),
	}
	if len(statuses) > 0 {
		opts = append(opts, repository.WithWhere("status IN ?", statuses))
	}
	return repository.ProvideStore[domain.Invoice](db).Find(ctx, nil, opts...)
}

func (r *repo) TenantsWithUnpaid(ctx context.Context, db *gorm.DB) ([]uuid.UUID, error) {
	var tenantIDs []uuid.UUID
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Distinct("tenant_id").
		Where("status IN ?", []domain.InvoiceStatus{domain.InvoiceStatusPending, domain.InvoiceStatusOverdue}).
		Pluck("tenant_id", &tenantIDs).Error
	return tenantIDs, err
}
