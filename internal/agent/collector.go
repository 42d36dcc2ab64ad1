// Package agent implements the reference monitoring agent: a small
// gopsutil-backed HTTP server exposing GET /metrics in the
// ServerMetrics shape the hub's collector actor polls. It exists so
// the repository runs end-to-end; the hub core never imports it.
package agent

import (
	"context"
	"runtime"
	"strconv"

	gocpu "github.com/shirou/gopsutil/v4/cpu"
	gohost "github.com/shirou/gopsutil/v4/host"
	gomem "github.com/shirou/gopsutil/v4/mem"
	gosensors "github.com/shirou/gopsutil/v4/sensors"

	"github.com/guardia-project/guardia/internal/models"
)

// collect samples the local machine into a ServerMetrics snapshot.
// Every gopsutil call is best-effort: a sampler that errors (e.g. no
// sensors on this kernel) leaves its section at its zero value rather
// than failing the whole snapshot.
func collect(ctx context.Context) models.ServerMetrics {
	var m models.ServerMetrics

	if info, err := gohost.InfoWithContext(ctx); err == nil {
		hostname := info.Hostname
		m.Hostname = &hostname
		kernel := info.KernelVersion
		m.Kernel = &kernel
		osVersion := info.PlatformVersion
		m.OSVersion = &osVersion
	}

	m.Memory = collectMemory(ctx)
	m.CPUs = collectCPU(ctx)
	m.Components = collectTemperatures(ctx)

	return m
}

func collectMemory(ctx context.Context) models.MemoryInfo {
	vm, err := gomem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return models.MemoryInfo{}
	}
	return models.MemoryInfo{
		Total:     vm.Total,
		Used:      vm.Used,
		TotalSwap: vm.SwapTotal,
		UsedSwap:  vm.SwapTotal - vm.SwapFree,
	}
}

func collectCPU(ctx context.Context) models.CPUInfo {
	info := models.CPUInfo{
		Total: runtime.NumCPU(),
		Arch:  runtime.GOARCH,
	}

	perCore, err := gocpu.PercentWithContext(ctx, 0, true)
	if err == nil {
		info.List = make([]models.CPUCore, 0, len(perCore))
		var sum float64
		for i, usage := range perCore {
			info.List = append(info.List, models.CPUCore{
				Name:  cpuCoreName(i),
				Usage: float32(usage),
			})
			sum += usage
		}
		if len(perCore) > 0 {
			info.AverageUsage = float32(sum / float64(len(perCore)))
		}
	}

	return info
}

func cpuCoreName(i int) string {
	return "cpu" + strconv.Itoa(i)
}

func collectTemperatures(ctx context.Context) models.ComponentsInfo {
	readings, err := gosensors.TemperaturesWithContext(ctx)
	if err != nil || len(readings) == 0 {
		return models.ComponentsInfo{}
	}

	var info models.ComponentsInfo
	var sum float32
	info.List = make([]models.Component, 0, len(readings))
	for _, r := range readings {
		temp := float32(r.Temperature)
		info.List = append(info.List, models.Component{Name: r.SensorKey, Temperature: &temp})
		sum += temp
	}
	avg := sum / float32(len(readings))
	info.AverageTemperature = &avg

	return info
}
