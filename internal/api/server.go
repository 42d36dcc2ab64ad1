package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/guardia-project/guardia/internal/broadcast"
	"github.com/guardia-project/guardia/internal/config"
	"github.com/guardia-project/guardia/internal/models"
	"github.com/guardia-project/guardia/internal/storage"
)

// Server is the REST + WebSocket API described by the hub's external
// interface: a bearer-token-guarded mux, a status tracker answering
// liveness questions without touching the storage actor, and a
// broadcast hub fanning both buses out over /stream.
type Server struct {
	cfg     config.ResolvedConfig
	storage *storage.Actor
	tracker *statusTracker
	hub     *hub
	logger  zerolog.Logger

	mux        *http.ServeMux
	httpServer *http.Server

	stop chan struct{}
}

// New builds the API server. It subscribes the status tracker and the
// websocket hub to both busses immediately; Start begins serving.
func New(cfg config.ResolvedConfig, storageActor *storage.Actor, metricBus *broadcast.Bus[models.MetricEvent], checkBus *broadcast.Bus[models.ServiceCheckEvent], logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "api").Logger()
	s := &Server{
		cfg:     cfg,
		storage: storageActor,
		tracker: newStatusTracker(metricBus, checkBus),
		hub:     newHub(metricBus, checkBus, logger),
		logger:  logger,
		stop:    make(chan struct{}),
	}
	s.hub.setAllowedOrigins(cfg.API.AllowedOrigins)

	s.mux = http.NewServeMux()
	s.routes()

	return s
}

// Start begins serving on cfg.API.Bind:cfg.API.Port and starts the
// background goroutines that keep the status tracker and websocket hub
// fed from the busses. It returns once the listener is up; Shutdown
// stops everything.
func (s *Server) Start() error {
	go s.tracker.run(s.stop)
	go s.hub.run(s.stop)

	addr := fmt.Sprintf("%s:%d", s.cfg.API.Bind, s.cfg.API.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
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
		return fmt.Errorf("api: listen on %s: %w", addr, err)
	case <-time.After(100 * time.Millisecond):
	}

	s.logger.Info().Str("addr", addr).Msg("API server listening")
	return nil
}

// Shutdown stops the HTTP server, the websocket hub (closing every
// connected client so it reconnects, per the documented contract), and
// the status tracker.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stop)
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the composed mux for tests that want to drive the
// server with httptest without binding a real port.
func (s *Server) Handler() http.Handler {
	return s.mux
}
