// Package domain contains the notification model and the contracts of its
// producers and store.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// Severity is persisted in the "type" column.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// Notification doubles as the change event delivered on the live stream:
// {id, user_id, title, message, type, link, is_read, created_at}.
type Notification struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  uuid.UUID    `gorm:"column:user_id;type:uuid;not null;index:idx_notifications_user_created,priority:1" json:"user_id"`
	Title     string       `gorm:"type:text;not null" json:"title"`
	Message   string       `gorm:"type:text;not null;default:''" json:"message"`
	Type      Severity     `gorm:"column:type;type:text;not null;default:'info'" json:"type"`
	Link      *string      `gorm:"type:text" json:"link"`
	IsRead    bool         `gorm:"not null;default:false" json:"is_read"`
	CreatedAt time.Time    `gorm:"not null;index:idx_notifications_user_created,priority:2" json:"created_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

// LinkValue returns the deep link or the empty string.
func (n Notification) LinkValue() string {
	if n.Link == nil {
		return ""
	}
	return strings.TrimSpace(*n.Link)
}

// Source names the producer that delivered an event to the admission boundary.
type Source string

const (
	SourceLive    Source = "live"
	SourceRefresh Source = "refresh"
)
