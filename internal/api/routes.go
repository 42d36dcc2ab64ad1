package api

import "net/http"

// routes registers every endpoint the API exposes. /health is
// reachable without a token even when one is configured; everything
// else goes through withAuth.
func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/health", s.withCORS(s.handleHealth))

	s.handle("GET /api/v1/stats", s.handleStats)
	s.handle("GET /api/v1/servers", s.handleListServers)
	s.handle("GET /api/v1/servers/{id}/metrics", s.handleServerMetricRange)
	s.handle("GET /api/v1/servers/{id}/metrics/latest", s.handleServerMetricLatest)
	s.handle("GET /api/v1/services", s.handleListServices)
	s.handle("GET /api/v1/services/{name}/checks", s.handleServiceChecksRange)
	s.handle("GET /api/v1/services/{name}/uptime", s.handleServiceUptime)

	s.handle("GET /api/v1/stream", s.hub.serveWS)
}
