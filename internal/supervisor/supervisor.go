// Package supervisor is the root coordinator: it builds the two
// broadcast busses, wires every actor and the API server to them, and
// owns the shutdown protocol.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/guardia-project/guardia/internal/alerts"
	"github.com/guardia-project/guardia/internal/api"
	"github.com/guardia-project/guardia/internal/broadcast"
	"github.com/guardia-project/guardia/internal/collector"
	"github.com/guardia-project/guardia/internal/config"
	"github.com/guardia-project/guardia/internal/metrics"
	"github.com/guardia-project/guardia/internal/models"
	"github.com/guardia-project/guardia/internal/servicemonitor"
	"github.com/guardia-project/guardia/internal/storage"
	"github.com/guardia-project/guardia/internal/transport"
)

// ShutdownDeadline bounds how long Run waits for every actor to drain
// after cancellation before giving up and returning anyway.
const ShutdownDeadline = 5 * time.Second

// defaultMetricsAddr is where the Prometheus exposition endpoint is
// served when Options.MetricsAddr is empty, deliberately separate from the REST API's bind address so scraping
// never competes with API auth/CORS handling.
const defaultMetricsAddr = ":9090"

// Options configures a single Run invocation. MetricsAddr and Version
// default when left empty.
type Options struct {
	Config      config.ResolvedConfig
	Logger      zerolog.Logger
	Version     string
	MetricsAddr string
}

// Run builds the full actor graph and serves until ctx is cancelled.
// Cancellation reaches every actor at once through the shared errgroup
// context while Run shuts the API server down and then waits for the
// actors; collectors, service monitors, the alert actor and storage stop
// concurrently, with no defined order among them.
// It returns once every actor has drained or ShutdownDeadline elapses,
// whichever comes first.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	logger := opts.Logger
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	metricsAddr := opts.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = defaultMetricsAddr
	}

	reg := metrics.New(version)
	if err := reg.Start(metricsAddr, logger); err != nil {
		return fmt.Errorf("supervisor: starting metrics server: %w", err)
	}
	defer reg.Shutdown(context.Background())

	metricBus := broadcast.New[models.MetricEvent](cfg.Tuning.BroadcastCapacity)
	checkBus := broadcast.New[models.ServiceCheckEvent](cfg.Tuning.BroadcastCapacity)
	metricBus.SetMetrics(reg, "metrics")
	checkBus.SetMetrics(reg, "service_checks")

	shared := transport.New(5*time.Minute, logger)
	defer shared.Close()

	var backend storage.Backend
	switch cfg.Storage.Backend {
	case "sqlite":
		sqliteBackend, err := storage.OpenSQLiteBackend(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("supervisor: opening storage: %w", err)
		}
		backend = sqliteBackend
	default:
		backend = storage.NewMemoryBackend()
	}

	serverNames := make(map[models.ServerID]string, len(cfg.Servers))
	for _, s := range cfg.Servers {
		serverNames[s.ServerID] = s.DisplayName
	}
	serviceURLs := make(map[string]string, len(cfg.Services))
	for _, s := range cfg.Services {
		serviceURLs[s.Name] = s.URL
	}

	storageActor := storage.New(backend, metricBus, checkBus, storage.Config{
		WriteBatchSize:     cfg.Tuning.WriteBatchSize,
		WriteBatchInterval: cfg.Tuning.WriteBatchInterval,
		RetentionDays:      cfg.Storage.RetentionDays,
		CleanupInterval:    time.Duration(cfg.Storage.CleanupIntervalHours) * time.Hour,
		ServerDisplayNames: serverNames,
		ServiceURLs:        serviceURLs,
	}, reg, logger)

	deliverer := alerts.NewHTTPDeliverer(shared.Client(alerts.DefaultDeliveryTimeout))
	alertActor := alerts.New(cfg, metricBus, checkBus, deliverer, reg, logger)

	collectors := make([]*collector.Actor, 0, len(cfg.Servers))
	for _, server := range cfg.Servers {
		collectors = append(collectors, collector.New(server, shared.Client(server.PollInterval), metricBus, reg, logger))
	}

	monitors := make([]*servicemonitor.Actor, 0, len(cfg.Services))
	for _, service := range cfg.Services {
		monitors = append(monitors, servicemonitor.New(service, shared.Client(service.Timeout), checkBus, reg, logger))
	}

	apiServer := api.New(cfg, storageActor, metricBus, checkBus, logger)
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("supervisor: starting API server: %w", err)
	}

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error { storageActor.Run(runCtx); return nil })
	g.Go(func() error { alertActor.Run(runCtx); return nil })
	for _, c := range collectors {
		c := c
		g.Go(func() error { c.Run(runCtx); return nil })
	}
	for _, m := range monitors {
		m := m
		g.Go(func() error { m.Run(runCtx); return nil })
	}

	logger.Info().
		Str("version", version).
		Int("servers", len(cfg.Servers)).
		Int("services", len(cfg.Services)).
		Msg("guardia-hub running")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownDeadline)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("API server shutdown did not complete cleanly")
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil && err != context.Canceled {
			return fmt.Errorf("supervisor: actor graph terminated with error: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Warn().Msg("shutdown deadline exceeded, exiting anyway")
	}

	return nil
}
