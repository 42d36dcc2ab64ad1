package models

import "encoding/json"

// ToRow denormalizes a MetricEvent into its persisted row shape. The
// original snapshot is preserved verbatim in MetadataJSON. The marshal
// error is ignored: a failure would leave MetadataJSON empty, and would
// indicate a programmer error in ServerMetrics, not bad input.
func (e MetricEvent) ToRow(displayName string) MetricRow {
	raw, _ := json.Marshal(e.Metrics)

	row := MetricRow{
		ServerID:     e.ServerID,
		TimestampMs:  e.Timestamp.UnixMilli(),
		DisplayName:  displayName,
		MetricType:   "resource",
		MetadataJSON: string(raw),
	}

	avg := e.Metrics.CPUs.AverageUsage
	row.CPUAvg = &avg

	used := e.Metrics.Memory.Used
	total := e.Metrics.Memory.Total
	row.MemoryUsed = &used
	row.MemoryTotal = &total

	if e.Metrics.Components.AverageTemperature != nil {
		temp := *e.Metrics.Components.AverageTemperature
		row.TempAvg = &temp
	}

	return row
}

// ToRow converts a ServiceCheckEvent into its persisted row shape.
func (e ServiceCheckEvent) ToRow(url string) ServiceCheckRow {
	return ServiceCheckRow{
		ServiceName:    e.ServiceName,
		TimestampMs:    e.Timestamp.UnixMilli(),
		URL:            url,
		Status:         e.Status,
		ResponseTimeMs: e.ResponseTimeMs,
		HTTPStatus:     e.HTTPStatus,
		Error:          e.Error,
	}
}
