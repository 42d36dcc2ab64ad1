package api

import (
	"sync"
	"time"

	"github.com/guardia-project/guardia/internal/broadcast"
	"github.com/guardia-project/guardia/internal/models"
)

// serverStatus is the liveness state the API reports for one server.
// It only ever observes successful polls: the collector bus carries no
// failure events, so a poll failure surfaces as simply "no new sample
// this tick" rather than a distinct last_poll_error — the staleness
// window is what actually exposes an unhealthy server to API clients.
type serverStatus struct {
	lastSeen         time.Time
	lastPollSuccess  bool
	latestMetrics    models.ServerMetrics
	haveLatestMetrics bool
}

// serviceStatus is the liveness state the API reports for one service.
type serviceStatus struct {
	lastCheck      time.Time
	status         models.ServiceStatus
	responseTimeMs *int64
}

// statusTracker maintains the most recent observation for every server
// and service by subscribing to both broadcast busses, independent of
// the storage actor's persisted history — this is what lets the API
// answer "is this server up right now" in O(1) without a query against
// the backend on every /servers request.
type statusTracker struct {
	mu       sync.RWMutex
	servers  map[models.ServerID]*serverStatus
	services map[string]*serviceStatus

	metricSub *broadcast.Subscription[models.MetricEvent]
	checkSub  *broadcast.Subscription[models.ServiceCheckEvent]
}

func newStatusTracker(metricBus *broadcast.Bus[models.MetricEvent], checkBus *broadcast.Bus[models.ServiceCheckEvent]) *statusTracker {
	return &statusTracker{
		servers:   make(map[models.ServerID]*serverStatus),
		services:  make(map[string]*serviceStatus),
		metricSub: metricBus.Subscribe(),
		checkSub:  checkBus.Subscribe(),
	}
}

// run consumes both busses until stop is closed. It is started as its
// own goroutine by the Server, independent of the websocket hub's own
// subscriptions, since the hub only needs to fan events out while the
// tracker needs to remember the latest one.
func (t *statusTracker) run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			t.metricSub.Unsubscribe()
			t.checkSub.Unsubscribe()
			return
		case evt, ok := <-t.metricSub.Events():
			if !ok {
				continue
			}
			t.recordMetric(evt)
		case <-t.metricSub.Lag():
		case evt, ok := <-t.checkSub.Events():
			if !ok {
				continue
			}
			t.recordCheck(evt)
		case <-t.checkSub.Lag():
		}
	}
}

func (t *statusTracker) recordMetric(evt models.MetricEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.servers[evt.ServerID]
	if !ok {
		s = &serverStatus{}
		t.servers[evt.ServerID] = s
	}
	s.lastSeen = evt.Timestamp
	s.lastPollSuccess = true
	s.latestMetrics = evt.Metrics
	s.haveLatestMetrics = true
}

func (t *statusTracker) recordCheck(evt models.ServiceCheckEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.services[evt.ServiceName]
	if !ok {
		s = &serviceStatus{}
		t.services[evt.ServiceName] = s
	}
	s.lastCheck = evt.Timestamp
	s.status = evt.Status
	s.responseTimeMs = evt.ResponseTimeMs
}

func (t *statusTracker) server(id models.ServerID) (serverStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.servers[id]
	if !ok {
		return serverStatus{}, false
	}
	return *s, true
}

func (t *statusTracker) service(name string) (serviceStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.services[name]
	if !ok {
		return serviceStatus{}, false
	}
	return *s, true
}

// healthStatusForServer classifies a server's liveness given the
// configured staleness threshold.
func healthStatusForServer(st serverStatus, seen bool, staleness time.Duration, now time.Time) string {
	if !seen {
		return "unknown"
	}
	if now.Sub(st.lastSeen) > staleness {
		return "stale"
	}
	return "up"
}

// healthStatusForService classifies a service's liveness, folding its
// last observed Status in when fresh and falling back to "stale" or
// "unknown" the same way a server does.
func healthStatusForService(st serviceStatus, seen bool, staleness time.Duration, now time.Time) string {
	if !seen {
		return "unknown"
	}
	if now.Sub(st.lastCheck) > staleness {
		return "stale"
	}
	switch st.status {
	case models.ServiceStatusUp:
		return "up"
	case models.ServiceStatusDegraded:
		return "degraded"
	default:
		return "down"
	}
}
