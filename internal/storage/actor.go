package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/guardia-project/guardia/internal/broadcast"
	"github.com/guardia-project/guardia/internal/metrics"
	"github.com/guardia-project/guardia/internal/models"
)

// Stats is the snapshot returned by the storage actor's GetStats command.
type Stats struct {
	LastCleanupTime           time.Time
	TotalMetricsDeleted       int64
	TotalServiceChecksDeleted int64
	PendingMetrics            int
	PendingServiceChecks      int
}

// Config bundles the knobs the storage actor needs beyond the backend
// itself: how big batches may grow before a forced flush, how often a
// time-triggered flush runs, and the retention schedule.
type Config struct {
	WriteBatchSize      int
	WriteBatchInterval  time.Duration
	RetentionDays       int
	CleanupInterval     time.Duration
	ServerDisplayNames  map[models.ServerID]string
	ServiceURLs         map[string]string
}

// Actor owns a Backend and serializes every write and query onto a
// single goroutine. Retention passes run on a separate goroutine (at most
// one at a time), so the backend can see a cleanup concurrently with a
// flush or query; no other mutable state lives outside the actor goroutine.
type Actor struct {
	backend Backend
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Registry

	metricSub  *broadcast.Subscription[models.MetricEvent]
	checkSub   *broadcast.Subscription[models.ServiceCheckEvent]

	reqCh      chan actorRequest
	shutdownCh chan chan struct{}

	pendingMetrics []models.MetricRow
	pendingChecks  []models.ServiceCheckRow

	stats Stats
}

type actorRequest struct {
	fn   func(ctx context.Context) (any, error)
	resp chan actorResponse
}

type actorResponse struct {
	val any
	err error
}

// New constructs a storage actor subscribed to both busses. Call Run in a
// goroutine to start it.
func New(
	backend Backend,
	metricBus *broadcast.Bus[models.MetricEvent],
	checkBus *broadcast.Bus[models.ServiceCheckEvent],
	cfg Config,
	reg *metrics.Registry,
	logger zerolog.Logger,
) *Actor {
	if cfg.WriteBatchSize <= 0 {
		cfg.WriteBatchSize = 100
	}
	if cfg.WriteBatchInterval <= 0 {
		cfg.WriteBatchInterval = 5 * time.Second
	}
	return &Actor{
		backend:    backend,
		cfg:        cfg,
		logger:     logger.With().Str("component", "storage_actor").Logger(),
		metrics:    reg,
		metricSub:  metricBus.Subscribe(),
		checkSub:   checkBus.Subscribe(),
		reqCh:      make(chan actorRequest),
		shutdownCh: make(chan chan struct{}),
	}
}

// Run drives the actor's event loop until ctx is cancelled or Shutdown is
// called; either way the pending buffers are flushed before it returns.
// It blocks the calling goroutine.
func (a *Actor) Run(ctx context.Context) {
	flushTicker := time.NewTicker(a.cfg.WriteBatchInterval)
	defer flushTicker.Stop()

	cleanupTicker := time.NewTicker(a.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	cleanupResultCh := make(chan cleanupResult, 1)
	cleanupInFlight := false

	a.triggerCleanup(ctx, cleanupResultCh, &cleanupInFlight)

	for {
		select {
		case <-ctx.Done():
			a.flushAll(context.WithoutCancel(ctx), "shutdown")
			return

		case reply := <-a.shutdownCh:
			a.flushAll(ctx, "shutdown")
			close(reply)
			return

		case evt := <-a.metricSub.Events():
			name := a.cfg.ServerDisplayNames[evt.ServerID]
			a.pendingMetrics = append(a.pendingMetrics, evt.ToRow(name))
			a.setPendingGauge("metrics", len(a.pendingMetrics))
			if len(a.pendingMetrics) >= a.cfg.WriteBatchSize {
				a.flushMetrics(ctx, "size")
			}

		case evt := <-a.checkSub.Events():
			url := a.cfg.ServiceURLs[evt.ServiceName]
			a.pendingChecks = append(a.pendingChecks, evt.ToRow(url))
			a.setPendingGauge("service_checks", len(a.pendingChecks))
			if len(a.pendingChecks) >= a.cfg.WriteBatchSize {
				a.flushChecks(ctx, "size")
			}

		case <-a.metricSub.Lag():
			// advisory only; queries still go to the backend.

		case <-a.checkSub.Lag():

		case <-flushTicker.C:
			a.flushMetrics(ctx, "interval")
			a.flushChecks(ctx, "interval")

		case <-cleanupTicker.C:
			a.triggerCleanup(ctx, cleanupResultCh, &cleanupInFlight)

		case res := <-cleanupResultCh:
			cleanupInFlight = false
			a.stats.LastCleanupTime = res.finishedAt
			a.stats.TotalMetricsDeleted += res.metricsDeleted
			a.stats.TotalServiceChecksDeleted += res.checksDeleted
			if a.metrics != nil {
				a.metrics.StorageCleanupDeleted.WithLabelValues("metrics").Add(float64(res.metricsDeleted))
				a.metrics.StorageCleanupDeleted.WithLabelValues("service_checks").Add(float64(res.checksDeleted))
			}
			a.setPendingGauge("metrics", len(a.pendingMetrics))
			a.setPendingGauge("service_checks", len(a.pendingChecks))

		case req := <-a.reqCh:
			val, err := req.fn(ctx)
			req.resp <- actorResponse{val: val, err: err}
		}
	}
}

// Shutdown stops accepting events, runs a final flush, and returns once
// the actor goroutine has exited.
func (a *Actor) Shutdown() {
	reply := make(chan struct{})
	a.shutdownCh <- reply
	<-reply
}

func (a *Actor) flushAll(ctx context.Context, trigger string) {
	a.flushMetrics(ctx, trigger)
	a.flushChecks(ctx, trigger)
}

func (a *Actor) setPendingGauge(kind string, n int) {
	if a.metrics != nil {
		a.metrics.StorageRowsPending.WithLabelValues(kind).Set(float64(n))
	}
}

func (a *Actor) flushMetrics(ctx context.Context, trigger string) {
	if len(a.pendingMetrics) == 0 {
		return
	}
	rows := a.pendingMetrics
	a.pendingMetrics = nil
	a.setPendingGauge("metrics", 0)

	if err := a.backend.InsertMetricBatch(ctx, rows); err != nil {
		a.logger.Error().Err(err).Int("rows", len(rows)).Msg("flushing metric batch failed, rows dropped")
		if a.metrics != nil {
			a.metrics.StorageBatchDropped.WithLabelValues("metrics").Add(float64(len(rows)))
		}
		return
	}
	if a.metrics != nil {
		a.metrics.StorageBatchFlushed.WithLabelValues("metrics", trigger).Add(float64(len(rows)))
	}
}

func (a *Actor) flushChecks(ctx context.Context, trigger string) {
	if len(a.pendingChecks) == 0 {
		return
	}
	rows := a.pendingChecks
	a.pendingChecks = nil
	a.setPendingGauge("service_checks", 0)

	if err := a.backend.InsertServiceCheckBatch(ctx, rows); err != nil {
		a.logger.Error().Err(err).Int("rows", len(rows)).Msg("flushing service check batch failed, rows dropped")
		if a.metrics != nil {
			a.metrics.StorageBatchDropped.WithLabelValues("service_checks").Add(float64(len(rows)))
		}
		return
	}
	if a.metrics != nil {
		a.metrics.StorageBatchFlushed.WithLabelValues("service_checks", trigger).Add(float64(len(rows)))
	}
}

type cleanupResult struct {
	finishedAt     time.Time
	metricsDeleted int64
	checksDeleted  int64
}

func (a *Actor) triggerCleanup(ctx context.Context, resultCh chan<- cleanupResult, inFlight *bool) {
	if *inFlight {
		return
	}
	*inFlight = true

	cutoff := time.Now().AddDate(0, 0, -a.cfg.RetentionDays).UnixMilli()
	go func() {
		metricsDeleted, err := a.backend.CleanupMetricsOlderThan(ctx, cutoff)
		if err != nil {
			a.logger.Error().Err(err).Msg("metric retention cleanup failed")
		}
		checksDeleted, err := a.backend.CleanupServiceChecksOlderThan(ctx, cutoff)
		if err != nil {
			a.logger.Error().Err(err).Msg("service check retention cleanup failed")
		}
		resultCh <- cleanupResult{
			finishedAt:     time.Now(),
			metricsDeleted: metricsDeleted,
			checksDeleted:  checksDeleted,
		}
	}()
}

// do submits fn to run on the actor goroutine and waits for its result.
// Every exported query method is a thin wrapper around this so that
// queries are serialized through Run alongside the batch writes.
func (a *Actor) do(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	resp := make(chan actorResponse, 1)
	select {
	case a.reqCh <- actorRequest{fn: fn, resp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Actor) observeQueryDuration(operation string, start time.Time) {
	if a.metrics != nil {
		a.metrics.StorageQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func (a *Actor) QueryMetricRange(ctx context.Context, serverID models.ServerID, start, end int64, limit int) ([]models.MetricRow, error) {
	defer a.observeQueryDuration("metric_range", time.Now())
	val, err := a.do(ctx, func(ctx context.Context) (any, error) {
		return a.backend.QueryMetricRange(ctx, serverID, start, end, limit)
	})
	if err != nil {
		return nil, err
	}
	return val.([]models.MetricRow), nil
}

func (a *Actor) QueryLatestMetrics(ctx context.Context, serverID models.ServerID, n int) ([]models.MetricRow, error) {
	defer a.observeQueryDuration("latest_metrics", time.Now())
	val, err := a.do(ctx, func(ctx context.Context) (any, error) {
		return a.backend.QueryLatestMetrics(ctx, serverID, n)
	})
	if err != nil {
		return nil, err
	}
	return val.([]models.MetricRow), nil
}

func (a *Actor) QueryServiceChecksRange(ctx context.Context, serviceName string, start, end int64) ([]models.ServiceCheckRow, error) {
	defer a.observeQueryDuration("service_checks_range", time.Now())
	val, err := a.do(ctx, func(ctx context.Context) (any, error) {
		return a.backend.QueryServiceChecksRange(ctx, serviceName, start, end)
	})
	if err != nil {
		return nil, err
	}
	return val.([]models.ServiceCheckRow), nil
}

func (a *Actor) QueryLatestServiceChecks(ctx context.Context, serviceName string, n int) ([]models.ServiceCheckRow, error) {
	defer a.observeQueryDuration("latest_service_checks", time.Now())
	val, err := a.do(ctx, func(ctx context.Context) (any, error) {
		return a.backend.QueryLatestServiceChecks(ctx, serviceName, n)
	})
	if err != nil {
		return nil, err
	}
	return val.([]models.ServiceCheckRow), nil
}

func (a *Actor) ComputeUptime(ctx context.Context, serviceName string, since int64) (models.UptimeStats, error) {
	defer a.observeQueryDuration("uptime", time.Now())
	val, err := a.do(ctx, func(ctx context.Context) (any, error) {
		return a.backend.ComputeUptime(ctx, serviceName, since)
	})
	if err != nil {
		return models.UptimeStats{}, err
	}
	return val.(models.UptimeStats), nil
}

// GetStats returns the retention/batch counters maintained by the actor.
func (a *Actor) GetStats(ctx context.Context) (Stats, error) {
	val, err := a.do(ctx, func(_ context.Context) (any, error) {
		snap := a.stats
		snap.PendingMetrics = len(a.pendingMetrics)
		snap.PendingServiceChecks = len(a.pendingChecks)
		return snap, nil
	})
	if err != nil {
		return Stats{}, err
	}
	return val.(Stats), nil
}
