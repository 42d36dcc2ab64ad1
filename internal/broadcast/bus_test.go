package broadcast

import (
	"context"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/guardia-project/guardia/internal/metrics"
)

func counterValue(t *testing.T, c interface {
	Write(*dto.Metric) error
}) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g interface {
	Write(*dto.Metric) error
}) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := New[int](8)
	sub1 := bus.Subscribe()
	sub2 := bus.Subscribe()

	bus.Publish(42)

	select {
	case v := <-sub1.Events():
		if v != 42 {
			t.Fatalf("sub1 got %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("sub1 did not receive event")
	}

	select {
	case v := <-sub2.Events():
		if v != 42 {
			t.Fatalf("sub2 got %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("sub2 did not receive event")
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := New[int](2)
	sub := bus.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// subscriber never drained; only the most recent `capacity` events remain.
	count := 0
	for {
		select {
		case <-sub.Events():
			count++
		default:
			if count != 2 {
				t.Fatalf("expected 2 buffered events, got %d", count)
			}
			return
		}
	}
}

func TestLagSignalOnDrop(t *testing.T) {
	bus := New[int](1)
	sub := bus.Subscribe()

	bus.Publish(1)
	bus.Publish(2) // drops 1, buffers 2

	select {
	case n := <-sub.Lag():
		if n < 1 {
			t.Fatalf("expected at least 1 dropped event, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a lag signal")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New[int](4)
	sub := bus.Subscribe()
	sub.Unsubscribe()

	bus.Publish(1)

	select {
	case v := <-sub.Events():
		t.Fatalf("unexpected delivery after unsubscribe: %d", v)
	case <-time.After(50 * time.Millisecond):
	}

	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe")
	}
}

func TestSetMetricsTracksSubscriberGauge(t *testing.T) {
	reg := metrics.New("test")
	defer reg.Shutdown(context.Background())

	bus := New[int](4)
	bus.SetMetrics(reg, "metrics")

	sub := bus.Subscribe()
	gauge, err := reg.BroadcastSubscribers.GetMetricWithLabelValues("metrics")
	if err != nil {
		t.Fatalf("get gauge: %v", err)
	}
	if got := gaugeValue(t, gauge); got != 1 {
		t.Fatalf("expected subscriber gauge 1, got %v", got)
	}

	sub.Unsubscribe()
	if got := gaugeValue(t, gauge); got != 0 {
		t.Fatalf("expected subscriber gauge 0 after unsubscribe, got %v", got)
	}
}

func TestSetMetricsCountsDrops(t *testing.T) {
	reg := metrics.New("test")
	defer reg.Shutdown(context.Background())

	bus := New[int](1)
	bus.SetMetrics(reg, "metrics")
	bus.Subscribe()

	bus.Publish(1)
	bus.Publish(2) // drops 1

	counter, err := reg.BroadcastDropped.GetMetricWithLabelValues("metrics")
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	if got := counterValue(t, counter); got != 1 {
		t.Fatalf("expected 1 dropped event recorded, got %v", got)
	}
}

func TestNoDoubleDelivery(t *testing.T) {
	bus := New[string](8)
	sub1 := bus.Subscribe()
	sub2 := bus.Subscribe()

	bus.Publish("hello")

	got1 := <-sub1.Events()
	got2 := <-sub2.Events()
	if got1 != "hello" || got2 != "hello" {
		t.Fatalf("unexpected payloads: %q %q", got1, got2)
	}

	select {
	case v := <-sub1.Events():
		t.Fatalf("sub1 received duplicate: %q", v)
	case <-time.After(50 * time.Millisecond):
	}
}
