package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
)

// handleEvents streams bus events to a websocket client as JSON text
// messages until either side goes away.
func (g *Gateway) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The stream outlives the server write timeout.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("gateway: websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		// The client only listens; CloseRead handles its control frames and
		// cancels ctx once it disconnects.
		ctx := conn.CloseRead(r.Context())

		sub, unsubscribe := g.events.Subscribe(eventBuffer)
		defer unsubscribe()

		g.logger.Debug("gateway: events client connected", "remote_addr", r.RemoteAddr)
		for {
			select {
			case <-ctx.Done():
				if r.Context().Err() != nil {
					_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				}
				return
			case e, ok := <-sub:
				if !ok {
					return
				}
				wctx, cancel := context.WithTimeout(ctx, writeTimeout)
				err := wsjson.Write(wctx, conn, e)
				cancel()
				if err != nil {
					g.logger.Debug("gateway: events client gone", "error", err)
					return
				}
			}
		}
	}
}
