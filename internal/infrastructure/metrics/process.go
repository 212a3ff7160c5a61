package metrics

import (
	"runtime"
	"time"
)

var processStart = time.Now()

// ProcessSnapshot is the coarse process health block reused by the
// heartbeat payload, /health and /metrics JSON.
type ProcessSnapshot struct {
	CPUPercent      float64 `json:"cpuPercent"`
	HeapUsedPercent float64 `json:"heapUsedPercent"`
	HeapAllocBytes  uint64  `json:"heapAllocBytes"`
	UptimeSeconds   int64   `json:"uptimeSeconds"`
	Goroutines      int     `json:"goroutines"`
}

// Process samples the runtime. The CPU figure is the GC CPU fraction
// scaled to percent - an approximation, not a scheduler measurement.
func Process() ProcessSnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	heapPercent := 0.0
	if ms.HeapSys > 0 {
		heapPercent = float64(ms.HeapAlloc) / float64(ms.HeapSys) * 100
	}

	return ProcessSnapshot{
		CPUPercent:      ms.GCCPUFraction * 100,
		HeapUsedPercent: heapPercent,
		HeapAllocBytes:  ms.HeapAlloc,
		UptimeSeconds:   int64(time.Since(processStart).Seconds()),
		Goroutines:      runtime.NumGoroutine(),
	}
}
