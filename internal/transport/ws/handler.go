// Package ws streams world updates to spectators over WebSocket.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pixil98/go-realm/internal/broadcast"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Streamer delivers world update batches until ctx is done or send fails.
type Streamer interface {
	Stream(ctx context.Context, send func(broadcast.Batch) error) error
}

// Handler upgrades the request and writes every batch as a JSON text frame.
// Spectators only listen; anything they send is discarded.
type Handler struct {
	world      Streamer
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
	pongWait   time.Duration
}

type HandlerOpt func(*Handler)

// WithCheckOrigin replaces the same-origin check of the upgrader.
func WithCheckOrigin(fn func(*http.Request) bool) HandlerOpt {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = fn
	}
}

// WithPingPeriod sets how often pings are sent. The peer must answer within
// twice the period.
func WithPingPeriod(d time.Duration) HandlerOpt {
	return func(h *Handler) {
		if d > 0 {
			h.pingPeriod = d
			h.pongWait = 2 * d
		}
	}
}

func NewHandler(w Streamer, opts ...HandlerOpt) *Handler {
	h := &Handler{
		world: w,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.DebugContext(r.Context(), "websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	slog.InfoContext(ctx, "spectator connected", "remote", r.RemoteAddr)
	go h.readPump(conn, cancel)
	go h.pingPump(ctx, conn)

	err = h.world.Stream(ctx, func(b broadcast.Batch) error {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return conn.WriteJSON(b)
	})

	switch {
	case errors.Is(err, broadcast.ErrDropped):
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "fell behind")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		slog.WarnContext(ctx, "spectator dropped", "remote", r.RemoteAddr)
	case err != nil:
		slog.DebugContext(ctx, "spectator write failed", "remote", r.RemoteAddr, "error", err)
	default:
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	}
	slog.InfoContext(ctx, "spectator disconnected", "remote", r.RemoteAddr)
}

// readPump services pongs and close frames, and cancels the stream when the
// peer goes away.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Handler) pingPump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
