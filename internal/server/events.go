package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/loykin/nodebase/internal/event"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	eventBuffer    = 64
)

// handleEvents upgrades to a websocket and makes it the bus subscriber.
// A newer connection replaces this one, which is then closed.
func (r *Router) handleEvents(c *gin.Context) {
	conn, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.log.Warn("event stream upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan event.Event, eventBuffer)
	r.mu.Lock()
	r.seq++
	id := fmt.Sprintf("ws-%d", r.seq)
	if r.cancel != nil {
		r.cancel()
	}
	r.cancel = cancel
	r.bus.Subscribe(id, event.ChannelSubscriber(ch))
	r.mu.Unlock()
	defer r.bus.Unsubscribe(id)

	r.log.Info("event stream attached", "subscriber", id, "remote", c.ClientIP())

	go r.readPump(conn, cancel)
	r.writePump(ctx, conn, ch)

	r.log.Info("event stream detached", "subscriber", id)
}

// readPump discards inbound frames and keeps the pong deadline fresh. It
// cancels the stream once the peer goes away.
func (r *Router) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (r *Router) writePump(ctx context.Context, conn *websocket.Conn, ch <-chan event.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case e := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				r.log.Debug("event stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
