package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Customer is the billing profile of one tenant.
type Customer struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID         uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex" json:"tenant_id"`
	Name             string            `gorm:"not null" json:"name"`
	Email            string            `gorm:"not null" json:"email"`
	Company          string            `gorm:"not null;default:''" json:"company"`
	StripeCustomerID *string           `gorm:"column:stripe_customer_id" json:"stripe_customer_id"`
	VATNumber        *string           `gorm:"column:vat_number" json:"vat_number"`
	Address          *string           `json:"address"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }
