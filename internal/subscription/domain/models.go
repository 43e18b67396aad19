// Package domain contains the subscription model and its lifecycle rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// Interval is the cycle as the billing workflow names it.
func (c BillingCycle) Interval() string {
	if c == BillingCycleYearly {
		return "year"
	}
	return "month"
}

// Next returns t advanced by one cycle.
func (c BillingCycle) Next(t time.Time) time.Time {
	if c == BillingCycleYearly {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

// Subscription is the local record of a service billed to a tenant. StripeID
// is the upstream reference; nil means the subscription was never created
// upstream. Once set it never changes.
type Subscription struct {
	ID              snowflake.ID       `gorm:"primaryKey" json:"id"`
	TenantID        uuid.UUID          `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ServiceName     string             `gorm:"type:text;not null" json:"service_name"`
	Amount          decimal.Decimal    `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency        string             `gorm:"type:text;not null;default:'EUR'" json:"currency"`
	BillingCycle    BillingCycle       `gorm:"type:text;not null" json:"billing_cycle"`
	TaxRate         decimal.Decimal    `gorm:"type:numeric(5,2);not null;default:0" json:"tax_rate"`
	StripeID        *string            `gorm:"column:stripe_id;type:text" json:"stripe_id"`
	Status          SubscriptionStatus `gorm:"type:text;not null" json:"status"`
	StartDate       *time.Time         `json:"start_date"`
	NextBillingDate *time.Time         `json:"next_billing_date"`
	Metadata        datatypes.JSONMap  `json:"metadata,omitempty"`
	CreatedAt       time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// HasExternalReference reports whether the upstream object exists.
func (s Subscription) HasExternalReference() bool {
	return s.StripeID != nil && *s.StripeID != ""
}
