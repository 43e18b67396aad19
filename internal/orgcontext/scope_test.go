package orgcontext

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeDefaultsToOperatorTenant(t *testing.T) {
	operator := uuid.New()
	scope := NewScope(operator)

	assert.Equal(t, operator, scope.EffectiveTenantID())
	assert.False(t, scope.Impersonating())
}

func TestScopeSwitchRoutesContextToNewTenant(t *testing.T) {
	operator := uuid.New()
	tenantA := uuid.New()
	tenantB := uuid.New()
	scope := NewScope(operator)

	scope.SetEffectiveTenantID(tenantA)
	ctxA := scope.Context(context.Background())
	gotA, ok := TenantIDFromContext(ctxA)
	require.True(t, ok)
	assert.Equal(t, tenantA, gotA)

	scope.SetEffectiveTenantID(tenantB)
	ctxB := scope.Context(context.Background())
	gotB, ok := TenantIDFromContext(ctxB)
	require.True(t, ok)
	assert.Equal(t, tenantB, gotB)
	assert.True(t, Impersonating(ctxB))

	gotOperator, ok := OperatorIDFromContext(ctxB)
	require.True(t, ok)
	assert.Equal(t, operator, gotOperator)
}

func TestScopeResetWithNil(t *testing.T) {
	operator := uuid.New()
	scope := NewScope(operator)
	scope.SetEffectiveTenantID(uuid.New())
	scope.SetEffectiveTenantID(uuid.Nil)

	assert.Equal(t, operator, scope.EffectiveTenantID())
}

func TestRegistryReturnsSameScopePerOperator(t *testing.T) {
	registry := NewRegistry()
	operator := uuid.New()

	first := registry.For(operator)
	first.SetEffectiveTenantID(uuid.New())
	assert.Same(t, first, registry.For(operator))
	assert.NotSame(t, first, registry.For(uuid.New()))
}

func TestTenantIDFromContextParsesString(t *testing.T) {
	id := uuid.New()
	ctx := context.WithValue(context.Background(), TenantContextKey{}, id.String())

	got, ok := TenantIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = TenantIDFromContext(context.Background())
	assert.False(t, ok)
}
