package supervisor

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/guardia-project/guardia/internal/config"
	"github.com/guardia-project/guardia/internal/models"
)

func testConfig(apiPort, metricsPort int) config.ResolvedConfig {
	return config.ResolvedConfig{
		Servers: []config.ServerRecord{
			{
				ServerID:     models.ServerID("127.0.0.1:19999"),
				IP:           "127.0.0.1",
				Port:         19999,
				DisplayName:  "unreachable",
				PollInterval: time.Hour,
			},
		},
		Storage: config.StorageConfig{Backend: "none"},
		API: config.APIConfig{
			Bind: "127.0.0.1",
			Port: apiPort,
		},
		Tuning: config.DefaultTuning(),
	}
}

// TestRunStartsAndStopsCleanly exercises the full actor graph end to
// end against an unreachable server (so no real network traffic is
// needed) and asserts Run returns without error once its context is
// cancelled, within the shutdown deadline plus a two-second margin.
func TestRunStartsAndStopsCleanly(t *testing.T) {
	cfg := testConfig(18231, 19231)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, Options{Config: cfg, Logger: zerolog.Nop(), MetricsAddr: "127.0.0.1:19231"})
	}()

	deadline := time.Now().Add(2 * time.Second)
	var reachable bool
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://127.0.0.1:18231/api/v1/health")
		if err == nil {
			resp.Body.Close()
			reachable = true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !reachable {
		t.Fatalf("expected API server to become reachable")
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(ShutdownDeadline + 2*time.Second):
		t.Fatalf("Run did not return within the shutdown deadline")
	}
}
