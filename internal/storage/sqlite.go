package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/guardia-project/guardia/internal/models"
	_ "modernc.org/sqlite" // register "sqlite" driver with database/sql
)

// SQLiteBackend is the durable Backend implementation. It stores
// denormalized rows in two tables, one per event kind, indexed for
// the range/latest/uptime query shapes the API needs.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLiteBackend opens (or creates) the database at path, enables WAL
// journal mode, and applies the schema. Use ":memory:" for an ephemeral
// database under the same code path as production, e.g. in tests.
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", path, err)
	}

	// A single writer connection serializes INSERT batches and retention
	// sweeps from the storage actor, avoiding "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: set synchronous = NORMAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS metrics (
    server_id     TEXT    NOT NULL,
    timestamp_ms  INTEGER NOT NULL,
    display_name  TEXT    NOT NULL,
    metric_type   TEXT    NOT NULL,
    cpu_avg       REAL,
    memory_used   INTEGER,
    memory_total  INTEGER,
    temp_avg      REAL,
    metadata_json TEXT    NOT NULL DEFAULT '{}',
    PRIMARY KEY (server_id, timestamp_ms)
);
CREATE INDEX IF NOT EXISTS idx_metrics_server_ts ON metrics (server_id, timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_metrics_type ON metrics (metric_type);

CREATE TABLE IF NOT EXISTS service_checks (
    service_name    TEXT    NOT NULL,
    timestamp_ms    INTEGER NOT NULL,
    url             TEXT    NOT NULL DEFAULT '',
    status          TEXT    NOT NULL,
    response_time_ms INTEGER,
    http_status     INTEGER,
    error           TEXT,
    PRIMARY KEY (service_name, timestamp_ms)
);
CREATE INDEX IF NOT EXISTS idx_service_checks_name_ts ON service_checks (service_name, timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_service_checks_status ON service_checks (status);
CREATE INDEX IF NOT EXISTS idx_service_checks_name_ts_status ON service_checks (service_name, timestamp_ms, status);
`

func (b *SQLiteBackend) InsertMetricBatch(ctx context.Context, rows []models.MetricRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin metric batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO metrics (server_id, timestamp_ms, display_name, metric_type, cpu_avg, memory_used, memory_total, temp_avg, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (server_id, timestamp_ms) DO UPDATE SET
			display_name = excluded.display_name,
			metric_type = excluded.metric_type,
			cpu_avg = excluded.cpu_avg,
			memory_used = excluded.memory_used,
			memory_total = excluded.memory_total,
			temp_avg = excluded.temp_avg,
			metadata_json = excluded.metadata_json`)
	if err != nil {
		return fmt.Errorf("storage: prepare metric insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			string(row.ServerID), row.TimestampMs, row.DisplayName, row.MetricType,
			row.CPUAvg, row.MemoryUsed, row.MemoryTotal, row.TempAvg, row.MetadataJSON,
		); err != nil {
			return fmt.Errorf("storage: insert metric row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit metric batch: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) InsertServiceCheckBatch(ctx context.Context, rows []models.ServiceCheckRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin service check batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO service_checks (service_name, timestamp_ms, url, status, response_time_ms, http_status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (service_name, timestamp_ms) DO UPDATE SET
			url = excluded.url,
			status = excluded.status,
			response_time_ms = excluded.response_time_ms,
			http_status = excluded.http_status,
			error = excluded.error`)
	if err != nil {
		return fmt.Errorf("storage: prepare service check insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.ServiceName, row.TimestampMs, row.URL, string(row.Status), row.ResponseTimeMs, row.HTTPStatus, row.Error,
		); err != nil {
			return fmt.Errorf("storage: insert service check row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit service check batch: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) QueryMetricRange(ctx context.Context, serverID models.ServerID, start, end int64, limit int) ([]models.MetricRow, error) {
	query := `
		SELECT server_id, timestamp_ms, display_name, metric_type, cpu_avg, memory_used, memory_total, temp_avg, metadata_json
		FROM metrics WHERE server_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC`
	args := []any{string(serverID), start, end}
	if limit > 0 {
		// keep the most recent `limit` rows within the range, re-sorted ascending
		query = `
			SELECT server_id, timestamp_ms, display_name, metric_type, cpu_avg, memory_used, memory_total, temp_avg, metadata_json FROM (
				SELECT server_id, timestamp_ms, display_name, metric_type, cpu_avg, memory_used, memory_total, temp_avg, metadata_json
				FROM metrics WHERE server_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
				ORDER BY timestamp_ms DESC LIMIT ?
			) ORDER BY timestamp_ms ASC`
		args = append(args, limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query metric range: %w", err)
	}
	defer rows.Close()
	return scanMetricRows(rows)
}

func (b *SQLiteBackend) QueryLatestMetrics(ctx context.Context, serverID models.ServerID, n int) ([]models.MetricRow, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT server_id, timestamp_ms, display_name, metric_type, cpu_avg, memory_used, memory_total, temp_avg, metadata_json FROM (
			SELECT server_id, timestamp_ms, display_name, metric_type, cpu_avg, memory_used, memory_total, temp_avg, metadata_json
			FROM metrics WHERE server_id = ?
			ORDER BY timestamp_ms DESC LIMIT ?
		) ORDER BY timestamp_ms ASC`, string(serverID), n)
	if err != nil {
		return nil, fmt.Errorf("storage: query latest metrics: %w", err)
	}
	defer rows.Close()
	return scanMetricRows(rows)
}

func scanMetricRows(rows *sql.Rows) ([]models.MetricRow, error) {
	var out []models.MetricRow
	for rows.Next() {
		var row models.MetricRow
		var serverID string
		if err := rows.Scan(
			&serverID, &row.TimestampMs, &row.DisplayName, &row.MetricType,
			&row.CPUAvg, &row.MemoryUsed, &row.MemoryTotal, &row.TempAvg, &row.MetadataJSON,
		); err != nil {
			return nil, fmt.Errorf("storage: scan metric row: %w", err)
		}
		row.ServerID = models.ServerID(serverID)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: metric rows: %w", err)
	}
	return out, nil
}

func (b *SQLiteBackend) QueryServiceChecksRange(ctx context.Context, serviceName string, start, end int64) ([]models.ServiceCheckRow, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT service_name, timestamp_ms, url, status, response_time_ms, http_status, error
		FROM service_checks WHERE service_name = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC`, serviceName, start, end)
	if err != nil {
		return nil, fmt.Errorf("storage: query service checks range: %w", err)
	}
	defer rows.Close()
	return scanServiceCheckRows(rows)
}

func (b *SQLiteBackend) QueryLatestServiceChecks(ctx context.Context, serviceName string, n int) ([]models.ServiceCheckRow, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT service_name, timestamp_ms, url, status, response_time_ms, http_status, error FROM (
			SELECT service_name, timestamp_ms, url, status, response_time_ms, http_status, error
			FROM service_checks WHERE service_name = ?
			ORDER BY timestamp_ms DESC LIMIT ?
		) ORDER BY timestamp_ms ASC`, serviceName, n)
	if err != nil {
		return nil, fmt.Errorf("storage: query latest service checks: %w", err)
	}
	defer rows.Close()
	return scanServiceCheckRows(rows)
}

func scanServiceCheckRows(rows *sql.Rows) ([]models.ServiceCheckRow, error) {
	var out []models.ServiceCheckRow
	for rows.Next() {
		var row models.ServiceCheckRow
		var status string
		if err := rows.Scan(&row.ServiceName, &row.TimestampMs, &row.URL, &status, &row.ResponseTimeMs, &row.HTTPStatus, &row.Error); err != nil {
			return nil, fmt.Errorf("storage: scan service check row: %w", err)
		}
		row.Status = models.ServiceStatus(status)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: service check rows: %w", err)
	}
	return out, nil
}

func (b *SQLiteBackend) ComputeUptime(ctx context.Context, serviceName string, since int64) (models.UptimeStats, error) {
	var total, successful sql.NullInt64
	var avgResponse sql.NullFloat64

	err := b.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN status = 'up' THEN 1 ELSE 0 END),
			AVG(CASE WHEN response_time_ms IS NOT NULL THEN response_time_ms END)
		FROM service_checks WHERE service_name = ? AND timestamp_ms >= ?`,
		serviceName, since,
	).Scan(&total, &successful, &avgResponse)
	if err != nil {
		return models.UptimeStats{}, fmt.Errorf("storage: compute uptime: %w", err)
	}

	if !total.Valid || total.Int64 == 0 {
		return models.UptimeStats{UptimePercentage: 100.0}, nil
	}

	stats := models.UptimeStats{
		UptimePercentage: float64(successful.Int64) / float64(total.Int64) * 100,
		TotalChecks:      int(total.Int64),
		SuccessfulChecks: int(successful.Int64),
	}
	if avgResponse.Valid {
		v := avgResponse.Float64
		stats.AvgResponseTimeMs = &v
	}
	return stats, nil
}

func (b *SQLiteBackend) CleanupMetricsOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM metrics WHERE timestamp_ms < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("storage: cleanup metrics: %w", err)
	}
	return res.RowsAffected()
}

func (b *SQLiteBackend) CleanupServiceChecksOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM service_checks WHERE timestamp_ms < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("storage: cleanup service checks: %w", err)
	}
	return res.RowsAffected()
}

func (b *SQLiteBackend) HealthCheck(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
