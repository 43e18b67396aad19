package orgcontext

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// TenantContextKey is the request context key for the effective tenant ID.
type TenantContextKey struct{}

// OperatorContextKey is the request context key for the authenticated operator.
type OperatorContextKey struct{}

// WithTenantID stores the effective tenant ID in the context.
func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, TenantContextKey{}, tenantID)
}

// TenantIDFromContext returns the effective tenant ID from context, if set.
func TenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}

	switch typed := ctx.Value(TenantContextKey{}).(type) {
	case uuid.UUID:
		return typed, typed != uuid.Nil
	case string:
		parsed, err := uuid.Parse(strings.TrimSpace(typed))
		if err == nil && parsed != uuid.Nil {
			return parsed, true
		}
	}
	return uuid.Nil, false
}

// WithOperatorID stores the authenticated operator identity in the context.
func WithOperatorID(ctx context.Context, operatorID uuid.UUID) context.Context {
	return context.WithValue(ctx, OperatorContextKey{}, operatorID)
}

// OperatorIDFromContext returns the authenticated operator, if set.
func OperatorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(OperatorContextKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// Impersonating reports whether the effective tenant differs from the operator.
func Impersonating(ctx context.Context) bool {
	tenantID, ok := TenantIDFromContext(ctx)
	if !ok {
		return false
	}
	operatorID, ok := OperatorIDFromContext(ctx)
	return ok && operatorID != tenantID
}
