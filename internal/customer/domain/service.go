package domain

import (
	"context"
	"errors"
)

type UpsertCustomerRequest struct {
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Company   string  `json:"company"`
	VATNumber *string `json:"vat_number"`
	Address   *string `json:"address"`
}

type Service interface {
	// Upsert creates or replaces the profile of the tenant in scope.
	Upsert(context.Context, UpsertCustomerRequest) (Customer, error)
	// Get returns the profile of the tenant in scope.
	Get(context.Context) (Customer, error)
	// AttachExternalReference stores the billing provider customer id for the
	// tenant in scope when it has none yet.
	AttachExternalReference(ctx context.Context, stripeCustomerID string) error
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidEmail  = errors.New("invalid_email")
	ErrNotFound      = errors.New("customer_not_found")
)
