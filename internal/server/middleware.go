package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/orgcontext"
)

// HeaderOperator carries the operator identity asserted by the upstream
// auth proxy.
const HeaderOperator = "X-Operator-ID"

// OperatorContext resolves the operator's scope and stamps the request
// context with the operator and the tenant it currently acts on.
func (s *Server) OperatorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorID, err := uuid.Parse(strings.TrimSpace(c.GetHeader(HeaderOperator)))
		if err != nil || operatorID == uuid.Nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		scope := s.scopes.For(operatorID)
		c.Request = c.Request.WithContext(scope.Context(c.Request.Context()))
		c.Next()
	}
}

// CallbackAuth checks the bearer token of the billing workflow. An empty
// configured token leaves the route open.
func (s *Server) CallbackAuth() gin.HandlerFunc {
	expected := strings.TrimSpace(s.cfg.BillingSync.CallbackToken)
	return func(c *gin.Context) {
		if expected == "" {
			c.Next()
			return
		}
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func tenantFromRequest(c *gin.Context) (uuid.UUID, bool) {
	return orgcontext.TenantIDFromContext(c.Request.Context())
}

func operatorFromRequest(c *gin.Context) (uuid.UUID, bool) {
	return orgcontext.OperatorIDFromContext(c.Request.Context())
}
