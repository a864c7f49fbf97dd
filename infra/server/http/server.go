// Package http exposes the service's HTTP surface: the WebSocket endpoint
// and a readiness probe reporting connection counts and store reachability.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/omnitalk/signaling-service/internal/domain/registry"
	"github.com/omnitalk/signaling-service/internal/matchqueue"
)

// Pinger is implemented by the distributed queue; in local mode the health
// payload omits store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthStats struct {
	Status         string `json:"status"`
	Connections    int    `json:"connections"`
	Waiting        int    `json:"waiting"`
	StoreReachable *bool  `json:"store_reachable,omitempty"`
}

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(addr string, wsh http.Handler, reg *registry.Registry, queue matchqueue.Queue, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Handle("/ws", wsh)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		stats := HealthStats{Status: "ok", Connections: reg.Count()}
		if n, err := queue.Len(req.Context()); err == nil {
			stats.Waiting = n
		}
		if pinger, ok := queue.(Pinger); ok {
			reachable := pinger.Ping(req.Context()) == nil
			stats.StoreReachable = &reachable
			if !reachable {
				stats.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Start() error {
	ln := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ln <- err
		}
	}()

	// Surface immediate bind failures; after that the server runs detached.
	select {
	case err := <-ln:
		return err
	case <-time.After(100 * time.Millisecond):
		s.logger.Info("http server listening", "addr", s.srv.Addr)
		return nil
	}
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
