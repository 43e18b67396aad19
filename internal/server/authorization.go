package server

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/authorization"
)

// authorizeTenantAction guards a route with the operator's role on the
// tenant currently in scope.
func (s *Server) authorizeTenantAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := tenantFromRequest(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authorizeForTenant(c, tenantID, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeForTenant(c *gin.Context, tenantID uuid.UUID, object string, action string) error {
	operatorID, ok := operatorFromRequest(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(c.Request.Context(), authorization.Actor(operatorID), tenantID.String(), object, action)
}
