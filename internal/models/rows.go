package models

// MetricRow is the persisted form of a MetricEvent. The full snapshot
// survives verbatim in MetadataJSON; the other fields are denormalized
// for indexed range/latest queries.
type MetricRow struct {
	ServerID    ServerID `json:"server_id"`
	TimestampMs int64    `json:"timestamp_ms"`
	DisplayName string   `json:"display_name"`
	MetricType  string   `json:"metric_type"` // always "resource"
	CPUAvg      *float32 `json:"cpu_avg,omitempty"`
	MemoryUsed  *uint64  `json:"memory_used,omitempty"`
	MemoryTotal *uint64  `json:"memory_total,omitempty"`
	TempAvg     *float32 `json:"temp_avg,omitempty"`
	MetadataJSON string  `json:"metadata_json"`
}

// ServiceCheckRow is the persisted form of a ServiceCheckEvent.
type ServiceCheckRow struct {
	ServiceName    string        `json:"service_name"`
	TimestampMs    int64         `json:"timestamp_ms"`
	URL            string        `json:"url"`
	Status         ServiceStatus `json:"status"`
	ResponseTimeMs *int64        `json:"response_time_ms,omitempty"`
	HTTPStatus     *int          `json:"http_status,omitempty"`
	Error          *string       `json:"error,omitempty"`
}

// UptimeStats is the result of Backend.ComputeUptime.
type UptimeStats struct {
	UptimePercentage   float64  `json:"uptime_percentage"`
	TotalChecks        int      `json:"total_checks"`
	SuccessfulChecks   int      `json:"successful_checks"`
	AvgResponseTimeMs  *float64 `json:"avg_response_time_ms,omitempty"`
}
