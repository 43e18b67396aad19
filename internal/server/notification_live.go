package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/smallbiznis/portalsync/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = 54 * time.Second
)

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// same-origin is enforced by the upstream auth proxy
		return true
	},
}

type liveNotificationMessage struct {
	Type        string `json:"type"`
	Data        any    `json:"data"`
	UnreadCount int64  `json:"unread_count"`
}

// StreamNotifications pushes every fresh admission of the tenant in scope
// over a websocket. Duplicates never reach the socket.
func (s *Server) StreamNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	events, stop, err := s.notificationSvc.Watch(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer stop()

	conn, err := liveUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already answered the client
		return
	}
	defer conn.Close()

	log := ctxlogger.WithContext(ctx, s.log)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(livePongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("notification socket read failed", zap.Error(err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case event, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			unread, err := s.notificationSvc.UnreadCount(ctx)
			if err != nil {
				log.Warn("unread count unavailable for live push", zap.Error(err))
			}
			if err := conn.WriteJSON(liveNotificationMessage{
				Type:        "notification",
				Data:        event,
				UnreadCount: unread,
			}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
