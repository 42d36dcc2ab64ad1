// Package collector implements the collector actor: one per configured
// server, polling its /metrics endpoint on a ticker and publishing a
// MetricEvent onto the shared broadcast bus for every successful,
// well-formed response.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/guardia-project/guardia/internal/broadcast"
	"github.com/guardia-project/guardia/internal/config"
	"github.com/guardia-project/guardia/internal/metrics"
	"github.com/guardia-project/guardia/internal/models"
)

const pollDeadlineMargin = 500 * time.Millisecond

// Actor polls exactly one ServerRecord on its own ticker.
type Actor struct {
	server  config.ServerRecord
	client  *http.Client
	bus     *broadcast.Bus[models.MetricEvent]
	metrics *metrics.Registry
	logger  zerolog.Logger

	cmdCh chan any
}

type pollNowCmd struct{ done chan struct{} }
type updateIntervalCmd struct{ interval time.Duration }
type shutdownCmd struct{ done chan struct{} }

// New constructs a collector actor. client is expected to share a
// transport.Shared across every collector in the process so connection
// reuse and DNS caching apply hub-wide, not per server.
func New(server config.ServerRecord, client *http.Client, bus *broadcast.Bus[models.MetricEvent], reg *metrics.Registry, logger zerolog.Logger) *Actor {
	return &Actor{
		server:  server,
		client:  client,
		bus:     bus,
		metrics: reg,
		logger:  logger.With().Str("component", "collector").Str("server_id", string(server.ServerID)).Logger(),
		cmdCh:   make(chan any),
	}
}

// Run drives the polling loop until ctx is cancelled or a Shutdown
// command is processed. It blocks the calling goroutine.
func (a *Actor) Run(ctx context.Context) {
	interval := a.server.PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			a.poll(ctx)

		case cmd := <-a.cmdCh:
			switch c := cmd.(type) {
			case pollNowCmd:
				a.poll(ctx)
				close(c.done)

			case updateIntervalCmd:
				interval = c.interval
				ticker.Reset(interval)

			case shutdownCmd:
				close(c.done)
				return
			}
		}
	}
}

// PollNow triggers an immediate poll, independent of the ticker, and
// blocks until it completes. Mainly useful from tests.
func (a *Actor) PollNow(ctx context.Context) {
	done := make(chan struct{})
	select {
	case a.cmdCh <- pollNowCmd{done: done}:
	case <-ctx.Done():
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// UpdateInterval changes the ticker interval (reserved for future use;
// accepted now so the command contract is complete).
func (a *Actor) UpdateInterval(ctx context.Context, d time.Duration) {
	select {
	case a.cmdCh <- updateIntervalCmd{interval: d}:
	case <-ctx.Done():
	}
}

// Shutdown stops the polling loop and waits for it to exit.
func (a *Actor) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	select {
	case a.cmdCh <- shutdownCmd{done: done}:
	case <-ctx.Done():
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (a *Actor) poll(ctx context.Context) {
	deadline := a.server.PollInterval - pollDeadlineMargin
	if deadline <= 0 {
		deadline = a.server.PollInterval
	}
	reqCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	result := "ok"
	defer func() {
		if a.metrics != nil {
			a.metrics.PollsTotal.WithLabelValues(string(a.server.ServerID), result).Inc()
			a.metrics.PollDuration.WithLabelValues(string(a.server.ServerID)).Observe(time.Since(start).Seconds())
		}
	}()

	url := fmt.Sprintf("http://%s:%d/metrics", a.server.IP, a.server.Port)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		result = "network_error"
		a.logger.Error().Err(err).Msg("failed to build poll request")
		return
	}
	if a.server.Token != "" {
		req.Header.Set("X-MONITORING-SECRET", a.server.Token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
		} else {
			result = "network_error"
		}
		a.logger.Warn().Err(err).Msg("poll request failed")
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result = "http_error"
		a.logger.Warn().Int("status", resp.StatusCode).Msg("poll returned non-2xx status")
		return
	}

	var snapshot models.ServerMetrics
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		result = "parse_error"
		a.logger.Warn().Err(err).Msg("poll response failed to parse")
		return
	}
	if err := snapshot.Validate(); err != nil {
		result = "parse_error"
		a.logger.Warn().Err(err).Msg("poll response failed validation")
		return
	}

	a.bus.Publish(models.MetricEvent{
		ServerID:  a.server.ServerID,
		Timestamp: time.Now(),
		Metrics:   snapshot,
	})
}
