package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketkeeper/keeper/internal/clock"
)

// ServerConfig configures the read-only dashboard HTTP server.
type ServerConfig struct {
	Addr string
}

// Server is the keeper's read-only status surface: health, current
// snapshot, and Prometheus metrics for one pair on one venue — a single
// polling mux, since there is one market to watch rather than a
// portfolio of them.
type Server struct {
	cfg       ServerConfig
	provider  Provider
	clk       clock.Clock
	priceFunc func() (price, buyAmount string)
	server    *http.Server
	logger    *slog.Logger
}

// NewServer builds a Server. priceFunc supplies the most recent feed
// reading for the snapshot endpoint; it may be called concurrently.
func NewServer(cfg ServerConfig, provider Provider, clk clock.Clock, priceFunc func() (string, string), logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		provider:  provider,
		clk:       clk,
		priceFunc: priceFunc,
		logger:    logger.With("component", "reporting-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	price, buyAmount := s.priceFunc()
	snap := BuildSnapshot(s.provider, s.clk, price, buyAmount)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Error("failed to encode snapshot", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// Start blocks serving until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("dashboard server starting", "addr", s.cfg.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("reporting: server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping dashboard server")
	return s.server.Shutdown(ctx)
}
