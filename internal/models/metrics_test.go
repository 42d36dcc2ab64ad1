package models

import "testing"

func TestServerMetricsValidate(t *testing.T) {
	valid := func() float32 { v := float32(50); return v }()

	tests := []struct {
		name    string
		metrics ServerMetrics
		wantErr bool
	}{
		{
			name: "valid snapshot",
			metrics: ServerMetrics{
				Memory: MemoryInfo{Total: 100, Used: 50, TotalSwap: 10, UsedSwap: 0},
				CPUs: CPUInfo{
					Total:        1,
					AverageUsage: valid,
					List:         []CPUCore{{Name: "cpu0", Usage: valid}},
				},
			},
			wantErr: false,
		},
		{
			name: "used exceeds total",
			metrics: ServerMetrics{
				Memory: MemoryInfo{Total: 50, Used: 100},
			},
			wantErr: true,
		},
		{
			name: "swap used exceeds total",
			metrics: ServerMetrics{
				Memory: MemoryInfo{Total: 100, Used: 10, TotalSwap: 5, UsedSwap: 10},
			},
			wantErr: true,
		},
		{
			name: "core usage out of range",
			metrics: ServerMetrics{
				Memory: MemoryInfo{Total: 100, Used: 10},
				CPUs:   CPUInfo{List: []CPUCore{{Name: "cpu0", Usage: 101}}},
			},
			wantErr: true,
		},
		{
			name: "average usage out of range",
			metrics: ServerMetrics{
				Memory: MemoryInfo{Total: 100, Used: 10},
				CPUs:   CPUInfo{AverageUsage: -1},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.metrics.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
