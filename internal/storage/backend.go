// Package storage implements the two storage backends (durable SQLite,
// ephemeral in-memory) and the storage actor that batches writes,
// serves queries, and runs background retention against whichever
// backend is selected.
package storage

import (
	"context"

	"github.com/guardia-project/guardia/internal/models"
)

// Backend is the capability set required of a storage implementation.
// Both the durable and ephemeral implementations share this
// interface; the storage actor holds exactly one, selected once at
// startup — there is no runtime swapping.
type Backend interface {
	InsertMetricBatch(ctx context.Context, rows []models.MetricRow) error
	InsertServiceCheckBatch(ctx context.Context, rows []models.ServiceCheckRow) error

	QueryMetricRange(ctx context.Context, serverID models.ServerID, start, end int64, limit int) ([]models.MetricRow, error)
	QueryLatestMetrics(ctx context.Context, serverID models.ServerID, n int) ([]models.MetricRow, error)

	QueryServiceChecksRange(ctx context.Context, serviceName string, start, end int64) ([]models.ServiceCheckRow, error)
	QueryLatestServiceChecks(ctx context.Context, serviceName string, n int) ([]models.ServiceCheckRow, error)

	ComputeUptime(ctx context.Context, serviceName string, since int64) (models.UptimeStats, error)

	CleanupMetricsOlderThan(ctx context.Context, cutoff int64) (int64, error)
	CleanupServiceChecksOlderThan(ctx context.Context, cutoff int64) (int64, error)

	HealthCheck(ctx context.Context) error

	Close() error
}
