package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/guardia-project/guardia/internal/broadcast"
	"github.com/guardia-project/guardia/internal/config"
	"github.com/guardia-project/guardia/internal/metrics"
	"github.com/guardia-project/guardia/internal/models"
)

// serverDimensionKey identifies one independently-debounced metric
// dimension for one server.
type serverDimensionKey struct {
	server models.ServerID
	kind   models.MetricKind
}

// muteCmd and shutdownCmd are the actor's command messages, sent over
// the same channel the evaluation loop already selects on so a mute
// request never races a concurrent transition.
type muteCmd struct {
	duration time.Duration
	done     chan struct{}
}

type shutdownCmd struct {
	done chan struct{}
}

// Actor owns every per-(server,metric) and per-service debounce state
// and is the only goroutine that ever reads or writes it, matching the
// "no mutable state outside the owning actor" rule the storage and
// collector actors follow.
type Actor struct {
	cfg config.ResolvedConfig

	metricSub *broadcast.Subscription[models.MetricEvent]
	checkSub  *broadcast.Subscription[models.ServiceCheckEvent]
	deliverer Deliverer
	metrics   *metrics.Registry
	logger    zerolog.Logger

	cmdCh chan any

	serverState  map[serverDimensionKey]State
	serviceState map[string]State

	mutedUntil time.Time
}

// New builds an alert actor. deliverer is almost always an
// *HTTPDeliverer; tests substitute a stub to assert on dispatched
// messages without making network calls.
func New(
	cfg config.ResolvedConfig,
	metricBus *broadcast.Bus[models.MetricEvent],
	checkBus *broadcast.Bus[models.ServiceCheckEvent],
	deliverer Deliverer,
	reg *metrics.Registry,
	logger zerolog.Logger,
) *Actor {
	return &Actor{
		cfg:          cfg,
		metricSub:    metricBus.Subscribe(),
		checkSub:     checkBus.Subscribe(),
		deliverer:    deliverer,
		metrics:      reg,
		logger:       logger.With().Str("component", "alerts").Logger(),
		cmdCh:        make(chan any),
		serverState:  make(map[serverDimensionKey]State),
		serviceState: make(map[string]State),
	}
}

// Run consumes both busses until ctx is cancelled or Shutdown is
// called, evaluating the debounce machine for every event and
// dispatching deliveries asynchronously so a slow or hung target never
// stalls evaluation of the next event.
func (a *Actor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.checkSub.Unsubscribe()
			a.metricSub.Unsubscribe()
			return

		case evt, ok := <-a.metricSub.Events():
			if !ok {
				continue
			}
			a.handleMetricEvent(ctx, evt)

		case n := <-a.metricSub.Lag():
			a.logger.Warn().Int("dropped", n).Str("bus", "metrics").Msg("subscriber fell behind")

		case evt, ok := <-a.checkSub.Events():
			if !ok {
				continue
			}
			a.handleCheckEvent(ctx, evt)

		case n := <-a.checkSub.Lag():
			a.logger.Warn().Int("dropped", n).Str("bus", "service_checks").Msg("subscriber fell behind")

		case cmd := <-a.cmdCh:
			switch c := cmd.(type) {
			case muteCmd:
				a.mutedUntil = time.Now().Add(c.duration)
				a.logger.Info().Dur("duration", c.duration).Msg("alert delivery muted")
				close(c.done)
			case shutdownCmd:
				a.checkSub.Unsubscribe()
				a.metricSub.Unsubscribe()
				close(c.done)
				return
			}
		}
	}
}

// Mute suppresses delivery (not state transitions) for the given
// duration: transitions still occur and are logged, but no Deliverer
// call is made until the mute window elapses.
func (a *Actor) Mute(ctx context.Context, duration time.Duration) {
	done := make(chan struct{})
	select {
	case a.cmdCh <- muteCmd{duration: duration, done: done}:
	case <-ctx.Done():
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Shutdown stops Run and waits for it to exit.
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

func (a *Actor) handleMetricEvent(ctx context.Context, evt models.MetricEvent) {
	server := a.lookupServer(evt.ServerID)
	if server == nil {
		return
	}

	if server.Limits.Temperature != nil {
		a.evaluateDimension(ctx, serverDimensionKey{server: evt.ServerID, kind: models.MetricKindTemperature},
			server.Limits.Temperature, temperatureValue(evt), server.DisplayName, "temperature")
	}
	if server.Limits.Usage != nil {
		usage := float64(evt.Metrics.CPUs.AverageUsage)
		a.evaluateDimension(ctx, serverDimensionKey{server: evt.ServerID, kind: models.MetricKindUsage},
			server.Limits.Usage, &usage, server.DisplayName, "usage")
	}
}

// temperatureValue extracts the average-temperature reading, or nil if
// the agent reported no sensors this poll — a nil reading never
// exceeds a limit, matching a missing sensor to "no violation" rather
// than a false trigger.
func temperatureValue(evt models.MetricEvent) *float64 {
	avg := evt.Metrics.Components.AverageTemperature
	if avg == nil {
		return nil
	}
	v := float64(*avg)
	return &v
}

func (a *Actor) evaluateDimension(ctx context.Context, key serverDimensionKey, limit *config.Limit, value *float64, displayName, kindLabel string) {
	exceeds := value != nil && *value > limit.Threshold
	prior := a.serverState[key]
	next, transition := Evaluate(prior, exceeds, limit.GraceCount)
	a.serverState[key] = next

	if transition == TransitionNone {
		return
	}
	a.metrics.AlertTransitions.WithLabelValues(kindLabel, string(transition)).Inc()

	subject := fmt.Sprintf("%s %s alert: %s", displayName, kindLabel, transitionWord(transition))
	body := dimensionBody(transition, displayName, kindLabel, value, limit.Threshold)
	a.dispatch(ctx, transition, limit.Alert, subject, body)
}

func (a *Actor) handleCheckEvent(ctx context.Context, evt models.ServiceCheckEvent) {
	service := a.lookupService(evt.ServiceName)
	if service == nil {
		return
	}

	down := evt.Status == models.ServiceStatusDown
	if service.DegradedCountsAsDown {
		down = down || evt.Status == models.ServiceStatusDegraded
	}

	prior := a.serviceState[evt.ServiceName]
	next, transition := Evaluate(prior, down, service.GraceCount)
	a.serviceState[evt.ServiceName] = next

	if transition == TransitionNone {
		return
	}
	a.metrics.AlertTransitions.WithLabelValues("service", string(transition)).Inc()

	subject := fmt.Sprintf("%s alert: %s", evt.ServiceName, transitionWord(transition))
	body := serviceBody(transition, evt)
	a.dispatch(ctx, transition, service.Alert, subject, body)
}

func (a *Actor) dispatch(ctx context.Context, transition Transition, target config.Alert, subject, body string) {
	severity := SeverityInfo
	if transition == TransitionTrigger {
		severity = SeverityCritical
	}
	msg := NewAlertMessage(severity, subject, body, target)

	if transition == TransitionTrigger {
		a.metrics.AlertsFired.WithLabelValues(target.Name, string(target.Kind)).Inc()
	}

	if !a.mutedUntil.IsZero() && time.Now().Before(a.mutedUntil) {
		a.logger.Info().Str("alert_id", msg.ID).Msg("delivery suppressed: actor is muted")
		return
	}

	go func() {
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultDeliveryTimeout)
		defer cancel()

		result := "ok"
		if err := a.deliverer.Deliver(deliverCtx, msg); err != nil {
			result = "error"
			a.logger.Error().Err(err).Str("alert_id", msg.ID).Str("target", target.Name).Msg("alert delivery failed")
		}
		a.metrics.AlertsDelivered.WithLabelValues(string(target.Kind), result).Inc()
	}()
}

func (a *Actor) lookupServer(id models.ServerID) *config.ServerRecord {
	for i := range a.cfg.Servers {
		if a.cfg.Servers[i].ServerID == id {
			return &a.cfg.Servers[i]
		}
	}
	return nil
}

func (a *Actor) lookupService(name string) *config.ServiceRecord {
	for i := range a.cfg.Services {
		if a.cfg.Services[i].Name == name {
			return &a.cfg.Services[i]
		}
	}
	return nil
}

func transitionWord(t Transition) string {
	if t == TransitionTrigger {
		return "triggered"
	}
	return "recovered"
}

func dimensionBody(transition Transition, displayName, kindLabel string, value *float64, threshold float64) string {
	if transition == TransitionRecovery {
		return fmt.Sprintf("%s %s has recovered below %.1f", displayName, kindLabel, threshold)
	}
	reading := "unknown"
	if value != nil {
		reading = fmt.Sprintf("%.1f", *value)
	}
	return fmt.Sprintf("%s %s is %s, exceeding threshold %.1f", displayName, kindLabel, reading, threshold)
}

func serviceBody(transition Transition, evt models.ServiceCheckEvent) string {
	if transition == TransitionRecovery {
		return fmt.Sprintf("%s has recovered (status=%s)", evt.ServiceName, evt.Status)
	}
	return fmt.Sprintf("%s is down (status=%s)", evt.ServiceName, evt.Status)
}
