package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"frameworks/lookout/pkg/logging"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWSFeed streams a camera's frames as binary WebSocket messages. Each
// message is one JPEG; keep-alive updates resend the newest frame.
func (h *LookoutHandlers) HandleWSFeed(c *gin.Context) {
	camera := c.Param("camera")
	s, err := h.registry.Subscribe(camera)
	if err != nil {
		h.abortStreamError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.registry.Unsubscribe(s)
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	log := h.logger.WithFields(logging.Fields{
		"camera":     camera,
		"session_id": s.ID(),
	})
	log.Info("websocket viewer connected")

	done := make(chan struct{})

	// Read pump: the viewer sends nothing we care about, but reading is what
	// surfaces disconnects and answers control frames.
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		h.registry.Unsubscribe(s)
		conn.Close()
		log.WithFields(logging.Fields{
			"delivered": s.Delivered(),
			"dropped":   s.Dropped(),
		}).Info("websocket viewer disconnected")
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case u, ok := <-s.Updates():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "camera shut down"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, framePayload(u)); err != nil {
				return
			}
		}
	}
}
