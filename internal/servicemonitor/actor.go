// Package servicemonitor implements the service monitor actor: one per
// configured service, probing it on a ticker with retries,
// status-code/body/header validation, and publishing exactly one
// ServiceCheckEvent per tick.
package servicemonitor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/guardia-project/guardia/internal/broadcast"
	"github.com/guardia-project/guardia/internal/config"
	"github.com/guardia-project/guardia/internal/metrics"
	"github.com/guardia-project/guardia/internal/models"
)

const retryBackoff = 500 * time.Millisecond

// Actor probes exactly one ServiceRecord on its own ticker.
type Actor struct {
	service config.ServiceRecord
	client  *http.Client
	bus     *broadcast.Bus[models.ServiceCheckEvent]
	metrics *metrics.Registry
	logger  zerolog.Logger

	cmdCh chan any
}

type probeNowCmd struct{ done chan struct{} }
type shutdownCmd struct{ done chan struct{} }

// New constructs a service monitor actor.
func New(service config.ServiceRecord, client *http.Client, bus *broadcast.Bus[models.ServiceCheckEvent], reg *metrics.Registry, logger zerolog.Logger) *Actor {
	return &Actor{
		service: service,
		client:  client,
		bus:     bus,
		metrics: reg,
		logger:  logger.With().Str("component", "service_monitor").Str("service", service.Name).Logger(),
		cmdCh:   make(chan any),
	}
}

// Run drives the probe loop until ctx is canceled or Shutdown is called.
func (a *Actor) Run(ctx context.Context) {
	ticker := time.NewTicker(a.service.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			a.probe(ctx)

		case cmd := <-a.cmdCh:
			switch c := cmd.(type) {
			case probeNowCmd:
				a.probe(ctx)
				close(c.done)
			case shutdownCmd:
				close(c.done)
				return
			}
		}
	}
}

// ProbeNow triggers an immediate probe and blocks until it completes.
func (a *Actor) ProbeNow(ctx context.Context) {
	done := make(chan struct{})
	select {
	case a.cmdCh <- probeNowCmd{done: done}:
	case <-ctx.Done():
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Shutdown stops the probe loop and waits for it to exit.
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

func (a *Actor) probe(ctx context.Context) {
	start := time.Now()
	event := a.attempt(ctx, start)

	elapsed := time.Since(start).Milliseconds()
	event.ResponseTimeMs = &elapsed
	event.Timestamp = start

	a.bus.Publish(event)

	if a.metrics != nil {
		a.metrics.ServiceChecksTotal.WithLabelValues(a.service.Name, string(event.Status)).Inc()
		a.metrics.ServiceCheckLatency.WithLabelValues(a.service.Name).Observe(time.Since(start).Seconds())
	}
}

// attempt runs the probe with retries and returns the event to publish.
// response_time_ms and timestamp are filled in by the caller from the
// overall attempt span, not per-retry: retries never reset the clock.
func (a *Actor) attempt(ctx context.Context, firstAttemptStart time.Time) models.ServiceCheckEvent {
	var lastErr error
	var lastStatus *int

	for try := 0; try <= a.service.Retries; try++ {
		if try > 0 {
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				errStr := ctx.Err().Error()
				return models.ServiceCheckEvent{ServiceName: a.service.Name, Status: models.ServiceStatusDown, Error: &errStr, HTTPStatus: lastStatus}
			}
		}

		status, event, err := a.doOnce(ctx)
		if err == nil {
			return event
		}
		lastErr = err
		lastStatus = status

		a.logger.Warn().Err(err).Int("attempt", try+1).Msg("probe attempt failed")
	}

	errStr := lastErr.Error()
	return models.ServiceCheckEvent{
		ServiceName: a.service.Name,
		Status:      models.ServiceStatusDown,
		Error:       &errStr,
		HTTPStatus:  lastStatus,
	}
}

// doOnce issues a single HTTP attempt. A non-nil error means the caller
// should retry (or give up after retries); a nil error means event is
// ready to publish as-is (Up, Down-by-status, or Degraded-by-validation
// are all "successful attempts" from the retry loop's perspective —
// only transport/timeout failures retry).
func (a *Actor) doOnce(ctx context.Context) (*int, models.ServiceCheckEvent, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.service.Timeout)
	defer cancel()

	method := a.service.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(reqCtx, method, a.service.URL, nil)
	if err != nil {
		return nil, models.ServiceCheckEvent{}, err
	}
	for k, v := range a.service.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, models.ServiceCheckEvent{}, err
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if _, ok := a.service.ExpectedStatus[status]; !ok {
		return &status, models.ServiceCheckEvent{
			ServiceName: a.service.Name,
			Status:      models.ServiceStatusDown,
			HTTPStatus:  &status,
		}, nil
	}

	if !a.validates(body, resp.Header) {
		return &status, models.ServiceCheckEvent{
			ServiceName: a.service.Name,
			Status:      models.ServiceStatusDegraded,
			HTTPStatus:  &status,
		}, nil
	}

	return &status, models.ServiceCheckEvent{
		ServiceName: a.service.Name,
		Status:      models.ServiceStatusUp,
		HTTPStatus:  &status,
	}, nil
}

// validates applies the optional body-contains and header-match checks.
// Headers configured for the request are also the set asserted against
// the response (spec.md's single `headers` config key serves both
// purposes; see DESIGN.md).
func (a *Actor) validates(body []byte, respHeaders http.Header) bool {
	if a.service.BodyContains != "" && !bytes.Contains(body, []byte(a.service.BodyContains)) {
		return false
	}
	for k, want := range a.service.Headers {
		if got := respHeaders.Get(k); got != "" && got != want {
			return false
		}
	}
	return true
}
