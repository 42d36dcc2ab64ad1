package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/guardia-project/guardia/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) hasServer(id models.ServerID) bool {
	for _, server := range s.cfg.Servers {
		if server.ServerID == id {
			return true
		}
	}
	return false
}

func (s *Server) hasService(name string) bool {
	for _, svc := range s.cfg.Services {
		if svc.Name == name {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

type storageStats struct {
	LastCleanupTime           *time.Time `json:"last_cleanup_time,omitempty"`
	TotalMetricsDeleted       int64      `json:"total_metrics_deleted"`
	TotalServiceChecksDeleted int64      `json:"total_service_checks_deleted"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.storage.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	st := storageStats{
		TotalMetricsDeleted:       stats.TotalMetricsDeleted,
		TotalServiceChecksDeleted: stats.TotalServiceChecksDeleted,
	}
	if !stats.LastCleanupTime.IsZero() {
		t := stats.LastCleanupTime
		st.LastCleanupTime = &t
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"servers_monitored":  len(s.cfg.Servers),
		"services_monitored": len(s.cfg.Services),
		"storage":            st,
	})
}

type serverSummary struct {
	ServerID         models.ServerID       `json:"server_id"`
	DisplayName      string                `json:"display_name"`
	MonitoringStatus string                `json:"monitoring_status"`
	HealthStatus     string                `json:"health_status"`
	LastSeen         *time.Time            `json:"last_seen,omitempty"`
	LastPollSuccess  *bool                 `json:"last_poll_success,omitempty"`
	LatestMetrics    *models.ServerMetrics `json:"latest_metrics,omitempty"`
}

// handleListServers reports every configured server's liveness.
// monitoring_status is always "active": Guardia has no runtime
// enable/disable toggle for a configured server, so this field exists
// only to match the documented response shape.
func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	out := make([]serverSummary, 0, len(s.cfg.Servers))

	for _, server := range s.cfg.Servers {
		st, seen := s.tracker.server(server.ServerID)
		summary := serverSummary{
			ServerID:         server.ServerID,
			DisplayName:      server.DisplayName,
			MonitoringStatus: "active",
			HealthStatus:     healthStatusForServer(st, seen, s.cfg.Tuning.StalenessThreshold, now),
		}
		if seen {
			lastSeen := st.lastSeen
			summary.LastSeen = &lastSeen
			success := st.lastPollSuccess
			summary.LastPollSuccess = &success
			if st.haveLatestMetrics {
				m := st.latestMetrics
				summary.LatestMetrics = &m
			}
		}
		out = append(out, summary)
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleServerMetricRange(w http.ResponseWriter, r *http.Request) {
	id := models.ServerID(r.PathValue("id"))
	if !s.hasServer(id) {
		writeError(w, http.StatusNotFound, "unknown server")
		return
	}

	start, err := parseInt64Query(r, "start", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	end, err := parseInt64Query(r, "end", time.Now().UnixMilli())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end")
		return
	}
	limit, err := parseIntQuery(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	rows, err := s.storage.QueryMetricRange(r.Context(), id, start, end, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleServerMetricLatest(w http.ResponseWriter, r *http.Request) {
	id := models.ServerID(r.PathValue("id"))
	if !s.hasServer(id) {
		writeError(w, http.StatusNotFound, "unknown server")
		return
	}

	limit, err := parseIntQuery(r, "limit", 1)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	rows, err := s.storage.QueryLatestMetrics(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type serviceSummary struct {
	Name           string     `json:"name"`
	HealthStatus   string     `json:"health_status"`
	LastCheck      *time.Time `json:"last_check,omitempty"`
	ResponseTimeMs *int64     `json:"response_time_ms,omitempty"`
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	out := make([]serviceSummary, 0, len(s.cfg.Services))

	for _, svc := range s.cfg.Services {
		st, seen := s.tracker.service(svc.Name)
		summary := serviceSummary{
			Name:         svc.Name,
			HealthStatus: healthStatusForService(st, seen, s.cfg.Tuning.StalenessThreshold, now),
		}
		if seen {
			lastCheck := st.lastCheck
			summary.LastCheck = &lastCheck
			summary.ResponseTimeMs = st.responseTimeMs
		}
		out = append(out, summary)
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleServiceChecksRange(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.hasService(name) {
		writeError(w, http.StatusNotFound, "unknown service")
		return
	}

	start, err := parseInt64Query(r, "start", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	end, err := parseInt64Query(r, "end", time.Now().UnixMilli())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end")
		return
	}

	rows, err := s.storage.QueryServiceChecksRange(r.Context(), name, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleServiceUptime(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.hasService(name) {
		writeError(w, http.StatusNotFound, "unknown service")
		return
	}

	since, err := parseInt64Query(r, "since", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid since")
		return
	}

	stats, err := s.storage.ComputeUptime(r.Context(), name, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseInt64Query(r *http.Request, key string, def int64) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func parseIntQuery(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
