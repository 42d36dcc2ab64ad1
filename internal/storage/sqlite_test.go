package storage

import (
	"context"
	"testing"

	"github.com/guardia-project/guardia/internal/models"
)

func openTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := OpenSQLiteBackend(":memory:")
	if err != nil {
		t.Fatalf("open sqlite backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLiteBackendInsertAndQueryLatest(t *testing.T) {
	b := openTestSQLite(t)
	ctx := context.Background()

	rows := []models.MetricRow{
		metricRow("s1", 100, 10),
		metricRow("s1", 200, 20),
		metricRow("s1", 300, 30),
	}
	if err := b.InsertMetricBatch(ctx, rows); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := b.QueryLatestMetrics(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("query latest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].TimestampMs != 200 || got[1].TimestampMs != 300 {
		t.Fatalf("expected ascending [200, 300], got [%d, %d]", got[0].TimestampMs, got[1].TimestampMs)
	}
}

func TestSQLiteBackendUpsertOnConflict(t *testing.T) {
	b := openTestSQLite(t)
	ctx := context.Background()

	if err := b.InsertMetricBatch(ctx, []models.MetricRow{metricRow("s1", 100, 10)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := b.InsertMetricBatch(ctx, []models.MetricRow{metricRow("s1", 100, 99)}); err != nil {
		t.Fatalf("re-insert: %v", err)
	}

	got, err := b.QueryLatestMetrics(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected upsert to keep a single row for the primary key, got %d", len(got))
	}
	if *got[0].CPUAvg != 99 {
		t.Fatalf("expected cpu 99 after upsert, got %v", *got[0].CPUAvg)
	}
}

func TestSQLiteBackendComputeUptime(t *testing.T) {
	b := openTestSQLite(t)
	ctx := context.Background()

	checks := []models.ServiceCheckRow{
		serviceCheckRow("api", 100, models.ServiceStatusUp, 50),
		serviceCheckRow("api", 200, models.ServiceStatusUp, 60),
		serviceCheckRow("api", 300, models.ServiceStatusUp, 70),
		serviceCheckRow("api", 400, models.ServiceStatusDown, 0),
	}
	if err := b.InsertServiceCheckBatch(ctx, checks); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stats, err := b.ComputeUptime(ctx, "api", 0)
	if err != nil {
		t.Fatalf("compute uptime: %v", err)
	}
	if stats.TotalChecks != 4 || stats.SuccessfulChecks != 3 {
		t.Fatalf("expected 4/3, got %+v", stats)
	}
	if stats.UptimePercentage != 75.0 {
		t.Fatalf("expected 75%%, got %v", stats.UptimePercentage)
	}
}

func TestSQLiteBackendServiceCheckRoundTripsURL(t *testing.T) {
	b := openTestSQLite(t)
	ctx := context.Background()

	check := serviceCheckRow("api", 100, models.ServiceStatusUp, 50)
	if err := b.InsertServiceCheckBatch(ctx, []models.ServiceCheckRow{check}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := b.QueryLatestServiceChecks(ctx, "api", 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0].URL != check.URL {
		t.Fatalf("expected url %q to round-trip, got %q", check.URL, got[0].URL)
	}
}

func TestSQLiteBackendCleanupRemovesOnlyOld(t *testing.T) {
	b := openTestSQLite(t)
	ctx := context.Background()

	rows := []models.MetricRow{
		metricRow("s1", 100, 10),
		metricRow("s1", 200, 20),
		metricRow("s1", 300, 30),
	}
	if err := b.InsertMetricBatch(ctx, rows); err != nil {
		t.Fatalf("insert: %v", err)
	}

	deleted, err := b.CleanupMetricsOlderThan(ctx, 250)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 rows deleted, got %d", deleted)
	}
}

func TestSQLiteBackendHealthCheck(t *testing.T) {
	b := openTestSQLite(t)
	if err := b.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check: %v", err)
	}
}
