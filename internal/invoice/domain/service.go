package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type Service interface {
	// ListUnpaid returns pending and overdue invoices of the tenant in scope,
	// earliest due first.
	ListUnpaid(ctx context.Context) ([]Invoice, error)
	// List returns the invoices of the tenant in scope, optionally by status.
	List(ctx context.Context, status string) ([]Invoice, error)
	TenantsWithUnpaid(ctx context.Context) ([]uuid.UUID, error)
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidStatus = errors.New("invalid_status")
)
