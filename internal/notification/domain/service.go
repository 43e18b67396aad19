package domain

import (
	"context"
	"errors"
	"time"
)

// NewNotification is what producers hand to the Writer; the tenant comes
// from the scope carried by the context.
type NewNotification struct {
	Title    string
	Message  string
	Severity Severity
	Link     *string
}

// Writer persists a notification and publishes it on the live stream of its
// tenant.
type Writer interface {
	Notify(ctx context.Context, req NewNotification) (Notification, error)
	// ExistsSince checks the tenant in scope for a row already emitted with
	// the same title and link.
	ExistsSince(ctx context.Context, title, link string, since time.Time) (bool, error)
}

// Service serves the notification center of the tenant in scope.
type Service interface {
	Writer

	Bootstrap(ctx context.Context) ([]Notification, int64, error)
	List(ctx context.Context, limit int) ([]Notification, error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	Refresh(ctx context.Context) ([]Notification, error)
	// Watch streams fresh admissions until the returned stop func is called.
	Watch(ctx context.Context) (<-chan Notification, func(), error)
}

var (
	ErrInvalidTenant      = errors.New("invalid_tenant")
	ErrInvalidTitle       = errors.New("invalid_title")
	ErrInvalidSeverity    = errors.New("invalid_severity")
	ErrInvalidID          = errors.New("invalid_notification_id")
	ErrNotFound           = errors.New("notification_not_found")
	ErrTenantMismatch     = errors.New("notification_tenant_mismatch")
	ErrOptimisticRollback = errors.New("notification_update_rolled_back")
	ErrCenterUnavailable  = errors.New("notification_center_unavailable")
)
