package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	wildcard "github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/guardia-project/guardia/internal/broadcast"
	"github.com/guardia-project/guardia/internal/models"
)

// wildcardMatch reports whether origin matches pattern, which may
// contain '*' wildcards (e.g. "https://*.example.com").
func wildcardMatch(pattern, origin string) bool {
	return wildcard.Match(pattern, origin)
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// wsMetricFrame and wsCheckFrame are the JSON shapes written to every
// connected /stream client; the "type" discriminator lets one socket
// multiplex both event kinds.
type wsMetricFrame struct {
	Type      string               `json:"type"`
	ServerID  models.ServerID      `json:"server_id"`
	Timestamp time.Time            `json:"timestamp"`
	Metrics   models.ServerMetrics `json:"metrics"`
}

type wsCheckFrame struct {
	Type           string              `json:"type"`
	ServiceName    string              `json:"service_name"`
	Timestamp      time.Time           `json:"timestamp"`
	Status         models.ServiceStatus `json:"status"`
	ResponseTimeMs *int64              `json:"response_time_ms,omitempty"`
}

// hub fans metric and service-check events out to every connected
// WebSocket client, matching the Origin-checking, allow-listed,
// run/stop lifecycle shape the hub's own broadcast hub follows.
type hub struct {
	upgrader websocket.Upgrader

	mu             sync.RWMutex
	allowedOrigins []string
	clients        map[*wsClient]struct{}

	metricSub *broadcast.Subscription[models.MetricEvent]
	checkSub  *broadcast.Subscription[models.ServiceCheckEvent]

	logger zerolog.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub(metricBus *broadcast.Bus[models.MetricEvent], checkBus *broadcast.Bus[models.ServiceCheckEvent], logger zerolog.Logger) *hub {
	h := &hub{
		clients:   make(map[*wsClient]struct{}),
		metricSub: metricBus.Subscribe(),
		checkSub:  checkBus.Subscribe(),
		logger:    logger.With().Str("component", "websocket").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// setAllowedOrigins configures the Origin allow-list; an empty list
// means every origin is accepted (the default, matching a hub with no
// browser-facing CORS restriction configured).
func (h *hub) setAllowedOrigins(origins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allowedOrigins = origins
}

func (h *hub) checkOrigin(r *http.Request) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.allowedOrigins {
		if wildcardMatch(allowed, origin) {
			return true
		}
	}
	return false
}

// run fans bus events out to every connected client until stop closes.
func (h *hub) run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			h.metricSub.Unsubscribe()
			h.checkSub.Unsubscribe()
			h.closeAll()
			return
		case evt, ok := <-h.metricSub.Events():
			if !ok {
				continue
			}
			h.broadcast(wsMetricFrame{
				Type:      "metric",
				ServerID:  evt.ServerID,
				Timestamp: evt.Timestamp,
				Metrics:   evt.Metrics,
			})
		case n := <-h.metricSub.Lag():
			h.logger.Warn().Int("dropped", n).Msg("websocket hub fell behind on metric bus")
		case evt, ok := <-h.checkSub.Events():
			if !ok {
				continue
			}
			h.broadcast(wsCheckFrame{
				Type:           "service_check",
				ServiceName:    evt.ServiceName,
				Timestamp:      evt.Timestamp,
				Status:         evt.Status,
				ResponseTimeMs: evt.ResponseTimeMs,
			})
		case n := <-h.checkSub.Lag():
			h.logger.Warn().Int("dropped", n).Msg("websocket hub fell behind on service-check bus")
		}
	}
}

func (h *hub) broadcast(frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal websocket frame")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn().Msg("dropping frame for a slow websocket client")
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
	}
	h.clients = make(map[*wsClient]struct{})
}

// serveWS upgrades the request and registers the connection until it
// disconnects or the hub shuts down. Writes go through a per-client
// buffered channel so one slow reader never blocks broadcast to the
// others.
func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 32)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	h.readPump(client)
}

// readPump discards inbound messages (clients never send commands over
// /stream) and exists only to detect disconnects and enforce pings.
func (h *hub) readPump(client *wsClient) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
		}
		h.mu.Unlock()
		_ = client.conn.Close()
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
