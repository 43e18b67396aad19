package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/customer/domain"
	"github.com/smallbiznis/portalsync/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) store(db *gorm.DB) repository.Repository[domain.Customer] {
	return repository.ProvideStore[domain.Customer](db)
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return r.store(db).Create(ctx, customer)
}

func (r *repo) FindByTenant(ctx context.Context, db *gorm.DB, tenantID uuid.UUID) (*domain.Customer, error) {
	return r.store(db).FindOne(ctx, nil, repository.WithWhere("tenant_id = ?", tenantID))
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, customer *domain.Customer, fields map[string]any) error {
	return r.store(db).Update(ctx, int64(customer.ID), fields)
}
