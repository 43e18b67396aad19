package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/portalsync/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

// BootstrapSession loads the notification center of the tenant in scope,
// runs the deadline scan once and returns the list with its unread count.
// A failed scan is logged and does not fail the session.
func (s *Server) BootstrapSession(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if _, _, err := s.notificationSvc.Bootstrap(ctx); err != nil {
		AbortWithError(c, err)
		return
	}

	created := 0
	if s.scanner != nil {
		n, err := s.scanner.ScanTenant(ctx, tenantID)
		if err != nil {
			ctxlogger.WithContext(ctx, s.log).Warn("deadline scan failed on bootstrap", zap.Error(err))
		}
		created = n
	}

	// scanned rows arrive through the live stream; a refresh makes them
	// visible in this response without waiting for the pump
	items, err := s.notificationSvc.Refresh(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	unread, err := s.notificationSvc.UnreadCount(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":                   items,
		"unread_count":           unread,
		"deadline_notifications": created,
	})
}
