package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	ListByStatus(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, statuses ...InvoiceStatus) ([]*Invoice, error)
	TenantsWithUnpaid(ctx context.Context, db *gorm.DB) ([]uuid.UUID, error)
}
