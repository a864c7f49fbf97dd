package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/omnitalk/signaling-service/internal/origin"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// WSHandler owns the transport boundary: upgrade, read/write pumps and the
// close/error path feeding session teardown.
type WSHandler struct {
	logger   *slog.Logger
	sessions *Sessions
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, sessions *Sessions, allow *origin.Allowlist) *WSHandler {
	return &WSHandler{
		logger:   logger,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return allow.Allows(r.Header.Get("Origin"))
			},
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	p := h.sessions.Connect(ctx)
	defer h.sessions.Teardown(ctx, p)

	// Unblock the read pump when the connection is torn down from the
	// inside (liveness eviction, shutdown).
	go func() {
		<-p.Done()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		p.SetAlive()
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			p.SetAlive()
			h.sessions.Handle(gctx, p, raw)
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-p.Probe():
				deadline := time.Now().Add(writeWait)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return err
				}
			case ev, ok := <-p.Recv():
				if !ok {
					return nil
				}
				data, err := ev.Encode()
				if err != nil {
					h.logger.Error("encode outbound frame", "error", err)
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return err
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		h.logger.Debug("ws session ended", "conn_id", p.ID(), "error", err)
	}
}
