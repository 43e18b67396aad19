package rls

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WithTenant pins the session variable read by row level security policies
// for the rest of the transaction. Only postgres enforces it.
func WithTenant(tx *gorm.DB, tenantID uuid.UUID) error {
	if tx == nil || tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT set_config('app.current_tenant_id', ?, true)", tenantID.String()).Error
}
