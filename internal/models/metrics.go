// Package models holds the data shapes shared across the hub: the raw
// snapshot published by an agent, the events derived from it, and the
// rows persisted by the storage layer.
package models

// CPUCore is the usage/frequency reading for a single logical core.
type CPUCore struct {
	Name      string  `json:"name"`
	Frequency uint64  `json:"frequency"`
	Usage     float32 `json:"usage"`
}

// CPUInfo is the CPU section of a ServerMetrics snapshot.
type CPUInfo struct {
	Total        int       `json:"total"`
	Arch         string    `json:"arch"`
	AverageUsage float32   `json:"average_usage"`
	List         []CPUCore `json:"list"`
}

// Component is a single named sensor reading (e.g. "cpu_package").
type Component struct {
	Name        string   `json:"name"`
	Temperature *float32 `json:"temperature,omitempty"`
}

// ComponentsInfo is the temperature-sensor section of a snapshot.
type ComponentsInfo struct {
	AverageTemperature *float32    `json:"average_temperature,omitempty"`
	List               []Component `json:"list"`
}

// MemoryInfo reports memory and swap usage in bytes.
type MemoryInfo struct {
	Total      uint64 `json:"total"`
	Used       uint64 `json:"used"`
	TotalSwap  uint64 `json:"total_swap"`
	UsedSwap   uint64 `json:"used_swap"`
}

// ServerMetrics is the immutable snapshot an agent publishes at
// GET /metrics.
type ServerMetrics struct {
	Hostname   *string        `json:"hostname,omitempty"`
	Kernel     *string        `json:"kernel,omitempty"`
	OSVersion  *string        `json:"os_version,omitempty"`
	Memory     MemoryInfo     `json:"memory"`
	CPUs       CPUInfo        `json:"cpus"`
	Components ComponentsInfo `json:"components"`
}

// Validate checks the invariants a snapshot must satisfy. It never
// mutates the receiver; callers treat a ServerMetrics as immutable once
// constructed.
func (m ServerMetrics) Validate() error {
	if m.Memory.Used > m.Memory.Total {
		return errInvalidMetrics("memory used exceeds total")
	}
	if m.Memory.UsedSwap > m.Memory.TotalSwap {
		return errInvalidMetrics("swap used exceeds total")
	}
	for _, core := range m.CPUs.List {
		if core.Usage < 0 || core.Usage > 100 {
			return errInvalidMetrics("cpu core usage out of range")
		}
	}
	if m.CPUs.AverageUsage < 0 || m.CPUs.AverageUsage > 100 {
		return errInvalidMetrics("cpu average usage out of range")
	}
	return nil
}

type validationError string

func (e validationError) Error() string { return string(e) }

func errInvalidMetrics(msg string) error { return validationError("invalid server metrics: " + msg) }
