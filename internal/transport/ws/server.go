package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// UpdatesPath is where spectators connect.
const UpdatesPath = "/ws/updates"

const shutdownTimeout = 5 * time.Second

// Server serves the spectator endpoint.
type Server struct {
	addr string
	http *http.Server
}

func NewServer(addr string, h *Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle("GET "+UpdatesPath, h)
	return &Server{
		addr: addr,
		http: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done. Open streams end when the request
// contexts are canceled by shutdown.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.http.BaseContext = func(net.Listener) context.Context { return ctx }
	slog.InfoContext(ctx, "websocket server listening", "addr", lis.Addr().String(), "path", UpdatesPath)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.http.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			slog.WarnContext(ctx, "websocket server shutdown", "error", err)
		}
		return served(<-serveErr)
	case err := <-serveErr:
		return served(err)
	}
}

func served(err error) error {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("serve websocket: %w", err)
}
