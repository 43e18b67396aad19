package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByTenant(ctx context.Context, db *gorm.DB, tenantID uuid.UUID) (*Customer, error)
	Update(ctx context.Context, db *gorm.DB, customer *Customer, fields map[string]any) error
}
