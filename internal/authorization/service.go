package authorization

import (
	"context"
	"errors"
)

// Service decides whether an operator may act on a tenant.
type Service interface {
	Authorize(ctx context.Context, actor string, tenantID string, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
