package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/oshokin/silent-alarm/internal/logger"
	storage "github.com/oshokin/silent-alarm/internal/store"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 10
)

// Envelope types.
const (
	EnvelopeTrigger = "trigger"
	EnvelopeError   = "error"
)

// Envelope is one WebSocket message of a trigger watch.
type Envelope struct {
	Type  string `json:"type"`
	Data  *bool  `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

//nolint:gochecknoglobals // Shared upgrader, stateless.
var upgrader = websocket.Upgrader{
	// Devices and tools connect from anywhere on the local network.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WatchTrigger upgrades to WebSocket and pushes the trigger of one device:
// the current value first, then every change.
func (h *Handler) WatchTrigger(c *gin.Context) {
	deviceID := c.Param("device")
	ctx := logger.WithKV(h.ctx, "device_id", deviceID)

	sub, err := h.service.WatchTrigger(c.Request.Context(), deviceID)
	if err != nil {
		h.fail(c, err)

		return
	}

	defer func() {
		_ = sub.Close()
	}()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WarnKV(ctx, "WebSocket upgrade failed", "error", err)

		return
	}

	defer func() {
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The reader only handles control frames and detects disconnects.
	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	logger.Debug(ctx, "Trigger watch socket opened")

	for {
		select {
		case <-done:
			logger.Debug(ctx, "Trigger watch socket closed by client")

			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case value, ok := <-sub.Updates():
			if !ok {
				h.closeWatch(conn, sub.Err())

				return
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = conn.WriteJSON(Envelope{Type: EnvelopeTrigger, Data: &value}); err != nil {
				logger.DebugKV(ctx, "Trigger watch write failed", "error", err)

				return
			}
		}
	}
}

// closeWatch tells the client why the subscription ended.
func (h *Handler) closeWatch(conn *websocket.Conn, reason error) {
	code, text := websocket.CloseNormalClosure, "subscription ended"

	if errors.Is(reason, storage.ErrClosed) {
		code, text = websocket.CloseGoingAway, reason.Error()

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(Envelope{Type: EnvelopeError, Error: text})
	}

	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}
