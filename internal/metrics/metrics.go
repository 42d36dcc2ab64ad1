// Package metrics holds the single Prometheus registry shared by the
// collector, service monitor, storage actor, alert actor, and broadcast
// busses, exposed on its own endpoint separate from the REST API.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry holds every metric guardia-hub exposes.
type Registry struct {
	registry *prometheus.Registry
	server   *http.Server

	PollsTotal         *prometheus.CounterVec
	PollDuration       *prometheus.HistogramVec
	ServiceChecksTotal *prometheus.CounterVec
	ServiceCheckLatency *prometheus.HistogramVec

	StorageBatchFlushed   *prometheus.CounterVec
	StorageBatchDropped   *prometheus.CounterVec
	StorageRowsPending    *prometheus.GaugeVec
	StorageCleanupDeleted *prometheus.CounterVec
	StorageQueryDuration  *prometheus.HistogramVec

	AlertsFired       *prometheus.CounterVec
	AlertsDelivered   *prometheus.CounterVec
	AlertTransitions  *prometheus.CounterVec

	BroadcastSubscribers *prometheus.GaugeVec
	BroadcastDropped     *prometheus.CounterVec

	BuildInfo *prometheus.GaugeVec
}

// New constructs and registers every metric.
func New(version string) *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		PollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardia_collector_polls_total",
				Help: "Metric collection polls by server and result.",
			},
			[]string{"server_id", "result"},
		),
		PollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guardia_collector_poll_duration_seconds",
				Help:    "Time spent polling a server's metrics endpoint.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"server_id"},
		),
		ServiceChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardia_service_checks_total",
				Help: "Service health checks by service and status.",
			},
			[]string{"service", "status"},
		),
		ServiceCheckLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guardia_service_check_latency_seconds",
				Help:    "Response time for service health checks.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service"},
		),
		StorageBatchFlushed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardia_storage_batch_flushed_total",
				Help: "Rows flushed to the storage backend by kind and trigger.",
			},
			[]string{"kind", "trigger"},
		),
		StorageBatchDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardia_storage_batch_dropped_total",
				Help: "Rows dropped after a failed flush, by kind.",
			},
			[]string{"kind"},
		),
		StorageRowsPending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "guardia_storage_rows_pending",
				Help: "Rows currently buffered awaiting flush, by kind.",
			},
			[]string{"kind"},
		),
		StorageCleanupDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardia_storage_cleanup_deleted_total",
				Help: "Rows removed by retention cleanup, by kind.",
			},
			[]string{"kind"},
		),
		StorageQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guardia_storage_query_duration_seconds",
				Help:    "Backend query latency by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		AlertsFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardia_alerts_fired_total",
				Help: "Alerts transitioned into firing state, by target and kind.",
			},
			[]string{"target", "kind"},
		),
		AlertsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardia_alerts_delivered_total",
				Help: "Alert deliveries by channel and result.",
			},
			[]string{"channel", "result"},
		),
		AlertTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardia_alert_transitions_total",
				Help: "Debounce state transitions, by dimension kind and transition type.",
			},
			[]string{"kind", "transition"},
		),
		BroadcastSubscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "guardia_broadcast_subscribers",
				Help: "Current subscriber count per bus.",
			},
			[]string{"bus"},
		),
		BroadcastDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardia_broadcast_dropped_total",
				Help: "Events dropped due to a slow subscriber, per bus.",
			},
			[]string{"bus"},
		),
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "guardia_build_info",
				Help: "Build metadata.",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.PollsTotal, r.PollDuration,
		r.ServiceChecksTotal, r.ServiceCheckLatency,
		r.StorageBatchFlushed, r.StorageBatchDropped, r.StorageRowsPending,
		r.StorageCleanupDeleted, r.StorageQueryDuration,
		r.AlertsFired, r.AlertsDelivered, r.AlertTransitions,
		r.BroadcastSubscribers, r.BroadcastDropped,
		r.BuildInfo,
	)
	r.BuildInfo.WithLabelValues(version).Set(1)

	return r
}

// Start serves /metrics on addr. An empty addr disables the server.
func (r *Registry) Start(addr string, logger zerolog.Logger) error {
	if addr == "" {
		logger.Info().Msg("metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	r.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := r.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server stopped unexpectedly")
		}
	}()

	logger.Info().Str("addr", addr).Msg("metrics server started")
	return nil
}

// Shutdown gracefully stops the metrics server, if running.
func (r *Registry) Shutdown(ctx context.Context) {
	if r == nil || r.server == nil {
		return
	}
	_ = r.server.Shutdown(ctx)
}
