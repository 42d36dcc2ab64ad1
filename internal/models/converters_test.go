package models

import (
	"testing"
	"time"
)

func TestMetricEventToRow(t *testing.T) {
	temp := float32(42.5)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	event := MetricEvent{
		ServerID:  "10.0.0.1:3000",
		Timestamp: ts,
		Metrics: ServerMetrics{
			Memory: MemoryInfo{Total: 100, Used: 40},
			CPUs:   CPUInfo{AverageUsage: 33.3},
			Components: ComponentsInfo{
				AverageTemperature: &temp,
			},
		},
	}

	row := event.ToRow("box-1")

	if row.ServerID != event.ServerID {
		t.Fatalf("server id mismatch")
	}
	if row.TimestampMs != ts.UnixMilli() {
		t.Fatalf("timestamp mismatch")
	}
	if row.DisplayName != "box-1" {
		t.Fatalf("display name mismatch")
	}
	if row.MetricType != "resource" {
		t.Fatalf("metric type mismatch")
	}
	if row.CPUAvg == nil || *row.CPUAvg != 33.3 {
		t.Fatalf("cpu avg mismatch: %v", row.CPUAvg)
	}
	if row.MemoryUsed == nil || *row.MemoryUsed != 40 {
		t.Fatalf("memory used mismatch")
	}
	if row.TempAvg == nil || *row.TempAvg != temp {
		t.Fatalf("temp avg mismatch")
	}
	if row.MetadataJSON == "" {
		t.Fatalf("expected metadata json to be populated")
	}
}

func TestServiceCheckEventToRow(t *testing.T) {
	rt := int64(120)
	status := 200
	event := ServiceCheckEvent{
		ServiceName:    "api",
		Timestamp:      time.Unix(0, 0),
		Status:         ServiceStatusUp,
		ResponseTimeMs: &rt,
		HTTPStatus:     &status,
	}

	row := event.ToRow("https://api.example.com")
	if row.URL != "https://api.example.com" {
		t.Fatalf("url mismatch")
	}
	if row.Status != ServiceStatusUp {
		t.Fatalf("status mismatch")
	}
	if row.ResponseTimeMs == nil || *row.ResponseTimeMs != 120 {
		t.Fatalf("response time mismatch")
	}
}
