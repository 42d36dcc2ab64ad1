package agent

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Config configures the reference agent's HTTP server.
type Config struct {
	Bind   string
	Port   int
	Secret string // validated against X-MONITORING-SECRET when non-empty
}

// Server serves GET /metrics with a freshly sampled snapshot on every
// request; the reference agent has no polling loop of its own, since
// the hub's collector actor is what drives the interval.
type Server struct {
	cfg        Config
	logger     zerolog.Logger
	httpServer *http.Server
}

func New(cfg Config, logger zerolog.Logger) *Server {
	return &Server{cfg: cfg, logger: logger.With().Str("component", "agent").Logger()}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	addr := fmt.Sprintf("%s:%d", s.cfg.Bind, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("agent: listen on %s: %w", addr, err)
	case <-time.After(100 * time.Millisecond):
	}

	s.logger.Info().Str("addr", addr).Msg("agent server listening")
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Secret != "" {
		provided := r.Header.Get("X-MONITORING-SECRET")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.Secret)) != 1 {
			http.Error(w, "invalid or missing X-MONITORING-SECRET", http.StatusUnauthorized)
			return
		}
	}

	snapshot := collect(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot)
}
