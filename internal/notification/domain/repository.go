package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, notification *Notification) error
	List(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, id snowflake.ID) (int64, error)
	MarkAllRead(ctx context.Context, db *gorm.DB, tenantID uuid.UUID) error
	Delete(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, id snowflake.ID) (int64, error)
	DeleteAll(ctx context.Context, db *gorm.DB, tenantID uuid.UUID) error
	CountUnread(ctx context.Context, db *gorm.DB, tenantID uuid.UUID) (int64, error)
	// ExistsSince reports a row created at or after since with exactly this
	// title and link.
	ExistsSince(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, title, link string, since time.Time) (bool, error)
}
