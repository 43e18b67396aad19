package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	subscriptiondomain "github.com/smallbiznis/portalsync/internal/subscription/domain"
	"github.com/smallbiznis/portalsync/pkg/rls"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, subscription.TenantID); err != nil {
			return err
		}
		return tx.Create(subscription).Error
	})
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) FindByIDAnyTenant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Where("id = ?", id).First(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) UpdateLifecycle(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription, expected subscriptiondomain.SubscriptionStatus) (int64, error) {
	var affected int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, subscription.TenantID); err != nil {
			return err
		}
		res := tx.Model(&subscriptiondomain.Subscription{}).
			Where("tenant_id = ? AND id = ? AND status = ?", subscription.TenantID, subscription.ID, expected).
			Updates(map[string]any{
				"status":            subscription.Status,
				"start_date":        subscription.StartDate,
				"next_billing_date": subscription.NextBillingDate,
				"updated_at":        subscription.UpdatedAt,
			})
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}

func (r *repo) SetExternalReference(ctx context.Context, db *gorm.DB, id snowflake.ID, stripeID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("id = ? AND stripe_id IS NULL", id).
		Update("stripe_id", stripeID)
	return res.RowsAffected, res.Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, id snowflake.ID) (int64, error) {
	var affected int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tenantID); err != nil {
			return err
		}
		res := tx.Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&subscriptiondomain.Subscription{})
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}
