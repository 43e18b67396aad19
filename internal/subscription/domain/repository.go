package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, id snowflake.ID) (*Subscription, error)
	// FindByIDAnyTenant is reserved for callbacks that carry no tenant scope.
	FindByIDAnyTenant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	// UpdateLifecycle writes status and dates when the row still has the
	// expected status.
	UpdateLifecycle(ctx context.Context, db *gorm.DB, subscription *Subscription, expected SubscriptionStatus) (int64, error)
	// SetExternalReference sets stripe_id only when it is still null.
	SetExternalReference(ctx context.Context, db *gorm.DB, id snowflake.ID, stripeID string) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, id snowflake.ID) (int64, error)
}
