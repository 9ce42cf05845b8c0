// Package server exposes hibiki's operational HTTP endpoints: /healthz for
// liveness probes and /metrics for Prometheus scrapes. It serves no user
// traffic; the bot's only user surface is the Discord gateway.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hibiki-bot/hibiki/internal/version"
)

// Server is the operational HTTP server.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

// New constructs a Server listening on addr, serving metrics from reg.
// The registry is injected so tests stay hermetic.
func New(addr string, reg *prometheus.Registry, log *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           newMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// newMux builds the route table.
func newMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// handleHealth reports liveness plus build metadata.
func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": version.Version,
		"commit":  version.Commit,
	})
}

// Start runs the server until Shutdown is called. A clean shutdown returns
// nil.
func (s *Server) Start() error {
	s.log.Info("ops server listening", slog.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen on %s: %w", s.srv.Addr, err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
