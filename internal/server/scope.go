package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/authorization"
	"github.com/smallbiznis/portalsync/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

type scopeRequest struct {
	// TenantID empty resets the scope to the operator's own tenant.
	TenantID string `json:"tenant_id"`
}

type scopeResponse struct {
	OperatorID    uuid.UUID `json:"operator_id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	Impersonating bool      `json:"impersonating"`
}

func (s *Server) GetScope(c *gin.Context) {
	operatorID, ok := operatorFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	scope := s.scopes.For(operatorID)
	c.JSON(http.StatusOK, gin.H{"data": scopeResponse{
		OperatorID:    operatorID,
		TenantID:      scope.EffectiveTenantID(),
		Impersonating: scope.Impersonating(),
	}})
}

// SetScope switches the tenant later requests of this operator act on. It
// never reaches the billing workflow.
func (s *Server) SetScope(c *gin.Context) {
	operatorID, ok := operatorFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req scopeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	target := operatorID
	if raw := strings.TrimSpace(req.TenantID); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil || parsed == uuid.Nil {
			AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
			return
		}
		target = parsed
	}

	if target != operatorID {
		if err := s.authorizeForTenant(c, target, authorization.ObjectScope, authorization.ActionScopeImpersonate); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	scope := s.scopes.For(operatorID)
	scope.SetEffectiveTenantID(target)
	ctxlogger.WithContext(c.Request.Context(), s.log).Info("scope switched",
		zap.String("tenant_id", target.String()),
		zap.Bool("impersonating", scope.Impersonating()),
	)

	c.JSON(http.StatusOK, gin.H{"data": scopeResponse{
		OperatorID:    operatorID,
		TenantID:      scope.EffectiveTenantID(),
		Impersonating: scope.Impersonating(),
	}})
}
