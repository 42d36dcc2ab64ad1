package agent

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/guardia-project/guardia/internal/models"
)

func TestHandleMetricsWithoutSecretConfigured(t *testing.T) {
	s := New(Config{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.handleMetrics(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot models.ServerMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
}

func TestHandleMetricsRejectsMissingSecret(t *testing.T) {
	s := New(Config{Secret: "hunter2"}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.handleMetrics(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleMetricsAcceptsCorrectSecret(t *testing.T) {
	s := New(Config{Secret: "hunter2"}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-MONITORING-SECRET", "hunter2")
	rec := httptest.NewRecorder()
	s.handleMetrics(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMetricsRejectsWrongSecret(t *testing.T) {
	s := New(Config{Secret: "hunter2"}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-MONITORING-SECRET", "wrong")
	rec := httptest.NewRecorder()
	s.handleMetrics(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
