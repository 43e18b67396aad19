package orgcontext

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Scope holds the tenant an operator is currently working in. An operator
// starts scoped to their own tenant and may switch to "view as" another one.
// Switching only changes which tenant later calls resolve to.
type Scope struct {
	mu         sync.RWMutex
	operatorID uuid.UUID
	effective  uuid.UUID
}

func NewScope(operatorID uuid.UUID) *Scope {
	return &Scope{operatorID: operatorID, effective: operatorID}
}

func (s *Scope) OperatorID() uuid.UUID {
	return s.operatorID
}

func (s *Scope) EffectiveTenantID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effective
}

// SetEffectiveTenantID switches the scope. uuid.Nil resets to the operator's
// own tenant.
func (s *Scope) SetEffectiveTenantID(tenantID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tenantID == uuid.Nil {
		tenantID = s.operatorID
	}
	s.effective = tenantID
}

func (s *Scope) Impersonating() bool {
	return s.EffectiveTenantID() != s.operatorID
}

// Context stamps ctx with the operator and the current effective tenant.
func (s *Scope) Context(ctx context.Context) context.Context {
	ctx = WithOperatorID(ctx, s.operatorID)
	return WithTenantID(ctx, s.EffectiveTenantID())
}

// Registry keeps one Scope per operator session.
type Registry struct {
	mu     sync.Mutex
	scopes map[uuid.UUID]*Scope
}

func NewRegistry() *Registry {
	return &Registry{scopes: make(map[uuid.UUID]*Scope)}
}

func (r *Registry) For(operatorID uuid.UUID) *Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	scope, ok := r.scopes[operatorID]
	if !ok {
		scope = NewScope(operatorID)
		r.scopes[operatorID] = scope
	}
	return scope
}
