package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"

	"github.com/guardia-project/guardia/internal/broadcast"
	"github.com/guardia-project/guardia/internal/config"
	"github.com/guardia-project/guardia/internal/metrics"
	"github.com/guardia-project/guardia/internal/models"
)

func firedCounter(t *testing.T, reg *metrics.Registry, target, kind string) float64 {
	t.Helper()
	counter, err := reg.AlertsFired.GetMetricWithLabelValues(target, kind)
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("write: %v", err)
	}
	return m.GetCounter().GetValue()
}

// stubDeliverer records every AlertMessage handed to it instead of
// making a network call.
type stubDeliverer struct {
	mu       sync.Mutex
	received []AlertMessage
}

func (s *stubDeliverer) Deliver(_ context.Context, msg AlertMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, msg)
	return nil
}

func (s *stubDeliverer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func waitForCount(t *testing.T, d *stubDeliverer, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d deliveries, got %d", n, d.count())
}

func testConfig() config.ResolvedConfig {
	alert := config.Alert{Name: "ops", Kind: config.AlertKindWebhook, URL: "http://example.invalid"}
	return config.ResolvedConfig{
		Alerts: map[string]config.Alert{"ops": alert},
		Servers: []config.ServerRecord{
			{
				ServerID:    models.ServerID("10.0.0.1:9100"),
				DisplayName: "box1",
				Limits: config.Limits{
					Temperature: &config.Limit{Threshold: 80, GraceCount: 1, AlertName: "ops", Alert: alert},
					Usage:       &config.Limit{Threshold: 90, GraceCount: 0, AlertName: "ops", Alert: alert},
				},
			},
		},
		Services: []config.ServiceRecord{
			{
				Name:                 "api",
				GraceCount:           0,
				AlertName:            "ops",
				Alert:                alert,
				DegradedCountsAsDown: true,
			},
		},
	}
}

func newTestAlertActor(t *testing.T, cfg config.ResolvedConfig) (*Actor, *broadcast.Bus[models.MetricEvent], *broadcast.Bus[models.ServiceCheckEvent], *stubDeliverer, *metrics.Registry, context.CancelFunc) {
	t.Helper()
	metricBus := broadcast.New[models.MetricEvent](16)
	checkBus := broadcast.New[models.ServiceCheckEvent](16)
	deliverer := &stubDeliverer{}
	reg := metrics.New("test")

	actor := New(cfg, metricBus, checkBus, deliverer, reg, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go actor.Run(ctx)

	return actor, metricBus, checkBus, deliverer, reg, cancel
}

func temp(v float32) models.ComponentsInfo {
	return models.ComponentsInfo{AverageTemperature: &v}
}

func TestAlertActorTriggersAfterGraceStreak(t *testing.T) {
	cfg := testConfig()
	_, metricBus, _, deliverer, _, cancel := newTestAlertActor(t, cfg)
	defer cancel()

	hot := models.MetricEvent{
		ServerID: models.ServerID("10.0.0.1:9100"),
		Metrics:  models.ServerMetrics{Components: temp(95)},
	}
	// GraceCount is 1 for temperature: the first violation only starts
	// the streak, the second should trigger.
	metricBus.Publish(hot)
	time.Sleep(20 * time.Millisecond)
	if deliverer.count() != 0 {
		t.Fatalf("expected no delivery after only one violation, got %d", deliverer.count())
	}

	metricBus.Publish(hot)
	waitForCount(t, deliverer, 1, time.Second)
}

func TestAlertActorRecoversAfterTrigger(t *testing.T) {
	cfg := testConfig()
	_, metricBus, _, deliverer, _, cancel := newTestAlertActor(t, cfg)
	defer cancel()

	// Usage has GraceCount 0: the very first violation triggers.
	usageHigh := models.MetricEvent{
		ServerID: models.ServerID("10.0.0.1:9100"),
		Metrics:  models.ServerMetrics{CPUs: models.CPUInfo{AverageUsage: 99}},
	}
	metricBus.Publish(usageHigh)
	waitForCount(t, deliverer, 1, time.Second)

	usageNormal := models.MetricEvent{
		ServerID: models.ServerID("10.0.0.1:9100"),
		Metrics:  models.ServerMetrics{CPUs: models.CPUInfo{AverageUsage: 10}},
	}
	metricBus.Publish(usageNormal)
	waitForCount(t, deliverer, 2, time.Second)
}

func TestAlertActorServiceDownWithDegradedFoldedIn(t *testing.T) {
	cfg := testConfig()
	_, _, checkBus, deliverer, _, cancel := newTestAlertActor(t, cfg)
	defer cancel()

	checkBus.Publish(models.ServiceCheckEvent{ServiceName: "api", Status: models.ServiceStatusDegraded})
	waitForCount(t, deliverer, 1, time.Second)
}

func TestAlertActorMuteSuppressesDeliveryNotTransitions(t *testing.T) {
	cfg := testConfig()
	actor, metricBus, _, deliverer, _, cancel := newTestAlertActor(t, cfg)
	defer cancel()

	actor.Mute(context.Background(), time.Hour)

	usageHigh := models.MetricEvent{
		ServerID: models.ServerID("10.0.0.1:9100"),
		Metrics:  models.ServerMetrics{CPUs: models.CPUInfo{AverageUsage: 99}},
	}
	metricBus.Publish(usageHigh)
	time.Sleep(30 * time.Millisecond)
	if deliverer.count() != 0 {
		t.Fatalf("expected delivery to be suppressed while muted, got %d", deliverer.count())
	}

	// The transition itself still happened: a recovery event now finds
	// the prior phase Pending and should still be suppressed too, since
	// the mute window has not elapsed.
	usageNormal := models.MetricEvent{
		ServerID: models.ServerID("10.0.0.1:9100"),
		Metrics:  models.ServerMetrics{CPUs: models.CPUInfo{AverageUsage: 10}},
	}
	metricBus.Publish(usageNormal)
	time.Sleep(30 * time.Millisecond)
	if deliverer.count() != 0 {
		t.Fatalf("expected recovery delivery to also be suppressed while muted, got %d", deliverer.count())
	}
}

func TestAlertActorIgnoresUnknownServer(t *testing.T) {
	cfg := testConfig()
	_, metricBus, _, deliverer, _, cancel := newTestAlertActor(t, cfg)
	defer cancel()

	metricBus.Publish(models.MetricEvent{ServerID: models.ServerID("unknown:1"), Metrics: models.ServerMetrics{}})
	time.Sleep(20 * time.Millisecond)
	if deliverer.count() != 0 {
		t.Fatalf("expected no delivery for an unconfigured server, got %d", deliverer.count())
	}
}

func TestAlertActorCountsFiredOnTriggerNotRecovery(t *testing.T) {
	cfg := testConfig()
	_, metricBus, _, deliverer, reg, cancel := newTestAlertActor(t, cfg)
	defer cancel()

	usageHigh := models.MetricEvent{
		ServerID: models.ServerID("10.0.0.1:9100"),
		Metrics:  models.ServerMetrics{CPUs: models.CPUInfo{AverageUsage: 99}},
	}
	metricBus.Publish(usageHigh)
	waitForCount(t, deliverer, 1, time.Second)

	if got := firedCounter(t, reg, "ops", string(config.AlertKindWebhook)); got != 1 {
		t.Fatalf("expected AlertsFired to be 1 after trigger, got %v", got)
	}

	usageNormal := models.MetricEvent{
		ServerID: models.ServerID("10.0.0.1:9100"),
		Metrics:  models.ServerMetrics{CPUs: models.CPUInfo{AverageUsage: 10}},
	}
	metricBus.Publish(usageNormal)
	waitForCount(t, deliverer, 2, time.Second)

	if got := firedCounter(t, reg, "ops", string(config.AlertKindWebhook)); got != 1 {
		t.Fatalf("expected AlertsFired to stay 1 after a recovery delivery, got %v", got)
	}
}
