package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"PolEn/pkg/logger"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16384,
	// The render layer may be served from another origin in development.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsBoard pushes a full board snapshot on every controller change. One full
// snapshot per change keeps the client trivially stateless; the payload is
// small enough that diffing is not worth the bookkeeping.
func (h *BoardHandler) wsBoard(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	updates, unsubscribe := h.controller.Subscribe()
	defer unsubscribe()

	// Reads are only drained to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	push := func() error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(h.controller.Board())
	}
	if err := push(); err != nil {
		return nil
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-updates:
			if err := push(); err != nil {
				h.log.Debug("board push failed, closing", logger.Error(err))
				return nil
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-closed:
			return nil
		case <-c.Request().Context().Done():
			return nil
		}
	}
}
