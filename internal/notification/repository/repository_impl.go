package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/notification/domain"
	"github.com/smallbiznis/portalsync/pkg/rls"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, notification *domain.Notification) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, notification.TenantID); err != nil {
			return err
		}
		return tx.Create(notification).Error
	})
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, limit int) ([]domain.Notification, error) {
	var items []domain.Notification
	stmt := db.WithContext(ctx).
		Where("user_id = ?", tenantID).
		Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkRead(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, id snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND id = ?", tenantID, id).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkAllRead(ctx context.Context, db *gorm.DB, tenantID uuid.UUID) error {
	return db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", tenantID, false).
		Update("is_read", true).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, id snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).
		Where("user_id = ? AND id = ?", tenantID, id).
		Delete(&domain.Notification{})
	return res.RowsAffected, res.Error
}

func (r *repo) DeleteAll(ctx context.Context, db *gorm.DB, tenantID uuid.UUID) error {
	return db.WithContext(ctx).
		Where("user_id = ?", tenantID).
		Delete(&domain.Notification{}).Error
}

func (r *repo) CountUnread(ctx context.Context, db *gorm.DB, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", tenantID, false).
		Count(&count).Error
	return count, err
}

func (r *repo) ExistsSince(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, title, link string, since time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND created_at >= ?", tenantID, since).
		Where("title = ? AND link = ?", title, link).
		Count(&count).Error
	return count > 0, err
}
