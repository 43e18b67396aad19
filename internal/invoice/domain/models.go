// Package domain contains the invoice read model consumed by deadline scans.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice payment states.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// Unpaid reports whether the invoice still expects a payment.
func (s InvoiceStatus) Unpaid() bool {
	return s == InvoiceStatusPending || s == InvoiceStatusOverdue
}

// Invoice is owned by the portal's invoicing screens; this service only reads it.
type Invoice struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Number    string          `gorm:"type:text;not null" json:"number"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	Currency  string          `gorm:"type:text;not null;default:'EUR'" json:"currency"`
	Status    InvoiceStatus   `gorm:"type:text;not null;default:'pending';index" json:"status"`
	DueDate   time.Time       `gorm:"not null" json:"due_date"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }
