package api

import "net/http"

// withAuth enforces the bearer-token contract: when no token is
// configured every request is allowed; when one is configured every
// path except /health requires it, missing -> 401, wrong -> 403.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.API.AuthToken
		if token == "" {
			next(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if header == "" {
			http.Error(w, "missing Authorization header", http.StatusUnauthorized)
			return
		}
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			http.Error(w, "malformed Authorization header", http.StatusForbidden)
			return
		}
		if header[len(prefix):] != token {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// withCORS adds CORS headers when enabled, matching the request Origin
// against the allow-list via the same wildcard matcher the websocket
// hub uses.
func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	if !s.cfg.API.EnableCORS {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.cfg.API.AllowedOrigins) == 0 {
		return true
	}
	for _, pattern := range s.cfg.API.AllowedOrigins {
		if wildcardMatch(pattern, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, s.withCORS(s.withAuth(h)))
}
