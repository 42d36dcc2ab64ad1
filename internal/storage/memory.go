package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/guardia-project/guardia/internal/models"
)

// MemoryBackend is the ephemeral storage implementation. Rows are held
// in per-key slices kept sorted ascending by timestamp so
// range/latest queries and retention are simple slice operations.
type MemoryBackend struct {
	mu            sync.RWMutex
	metrics       map[models.ServerID][]models.MetricRow
	serviceChecks map[string][]models.ServiceCheckRow
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		metrics:       make(map[models.ServerID][]models.MetricRow),
		serviceChecks: make(map[string][]models.ServiceCheckRow),
	}
}

func (b *MemoryBackend) InsertMetricBatch(_ context.Context, rows []models.MetricRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, row := range rows {
		insertMetricRow(b.metrics, row)
	}
	return nil
}

func insertMetricRow(store map[models.ServerID][]models.MetricRow, row models.MetricRow) {
	slice := store[row.ServerID]
	idx := sort.Search(len(slice), func(i int) bool { return slice[i].TimestampMs >= row.TimestampMs })
	if idx < len(slice) && slice[idx].TimestampMs == row.TimestampMs {
		slice[idx] = row // primary key (server_id, timestamp_ms): last write wins
	} else {
		slice = append(slice, models.MetricRow{})
		copy(slice[idx+1:], slice[idx:])
		slice[idx] = row
	}
	store[row.ServerID] = slice
}

func (b *MemoryBackend) InsertServiceCheckBatch(_ context.Context, rows []models.ServiceCheckRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, row := range rows {
		insertServiceCheckRow(b.serviceChecks, row)
	}
	return nil
}

func insertServiceCheckRow(store map[string][]models.ServiceCheckRow, row models.ServiceCheckRow) {
	slice := store[row.ServiceName]
	idx := sort.Search(len(slice), func(i int) bool { return slice[i].TimestampMs >= row.TimestampMs })
	if idx < len(slice) && slice[idx].TimestampMs == row.TimestampMs {
		slice[idx] = row
	} else {
		slice = append(slice, models.ServiceCheckRow{})
		copy(slice[idx+1:], slice[idx:])
		slice[idx] = row
	}
	store[row.ServiceName] = slice
}

func (b *MemoryBackend) QueryMetricRange(_ context.Context, serverID models.ServerID, start, end int64, limit int) ([]models.MetricRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []models.MetricRow
	for _, row := range b.metrics[serverID] {
		if row.TimestampMs >= start && row.TimestampMs <= end {
			out = append(out, row)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return cloneMetricRows(out), nil
}

func (b *MemoryBackend) QueryLatestMetrics(_ context.Context, serverID models.ServerID, n int) ([]models.MetricRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	slice := b.metrics[serverID]
	if n <= 0 || n > len(slice) {
		n = len(slice)
	}
	return cloneMetricRows(slice[len(slice)-n:]), nil
}

func (b *MemoryBackend) QueryServiceChecksRange(_ context.Context, serviceName string, start, end int64) ([]models.ServiceCheckRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []models.ServiceCheckRow
	for _, row := range b.serviceChecks[serviceName] {
		if row.TimestampMs >= start && row.TimestampMs <= end {
			out = append(out, row)
		}
	}
	return cloneServiceCheckRows(out), nil
}

func (b *MemoryBackend) QueryLatestServiceChecks(_ context.Context, serviceName string, n int) ([]models.ServiceCheckRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	slice := b.serviceChecks[serviceName]
	if n <= 0 || n > len(slice) {
		n = len(slice)
	}
	return cloneServiceCheckRows(slice[len(slice)-n:]), nil
}

func (b *MemoryBackend) ComputeUptime(_ context.Context, serviceName string, since int64) (models.UptimeStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total, successful int
	var responseSum int64
	var responseCount int64

	for _, row := range b.serviceChecks[serviceName] {
		if row.TimestampMs < since {
			continue
		}
		total++
		if row.Status == models.ServiceStatusUp {
			successful++
		}
		if row.ResponseTimeMs != nil {
			responseSum += *row.ResponseTimeMs
			responseCount++
		}
	}

	if total == 0 {
		return models.UptimeStats{UptimePercentage: 100.0, TotalChecks: 0, SuccessfulChecks: 0}, nil
	}

	stats := models.UptimeStats{
		UptimePercentage: float64(successful) / float64(total) * 100,
		TotalChecks:      total,
		SuccessfulChecks: successful,
	}
	if responseCount > 0 {
		avg := float64(responseSum) / float64(responseCount)
		stats.AvgResponseTimeMs = &avg
	}
	return stats, nil
}

func (b *MemoryBackend) CleanupMetricsOlderThan(_ context.Context, cutoff int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var deleted int64
	for id, rows := range b.metrics {
		kept := rows[:0:0]
		for _, row := range rows {
			if row.TimestampMs < cutoff {
				deleted++
				continue
			}
			kept = append(kept, row)
		}
		b.metrics[id] = kept
	}
	return deleted, nil
}

func (b *MemoryBackend) CleanupServiceChecksOlderThan(_ context.Context, cutoff int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var deleted int64
	for name, rows := range b.serviceChecks {
		kept := rows[:0:0]
		for _, row := range rows {
			if row.TimestampMs < cutoff {
				deleted++
				continue
			}
			kept = append(kept, row)
		}
		b.serviceChecks[name] = kept
	}
	return deleted, nil
}

func (b *MemoryBackend) HealthCheck(_ context.Context) error { return nil }

func (b *MemoryBackend) Close() error { return nil }

func cloneMetricRows(rows []models.MetricRow) []models.MetricRow {
	out := make([]models.MetricRow, len(rows))
	copy(out, rows)
	return out
}

func cloneServiceCheckRows(rows []models.ServiceCheckRow) []models.ServiceCheckRow {
	out := make([]models.ServiceCheckRow, len(rows))
	copy(out, rows)
	return out
}
