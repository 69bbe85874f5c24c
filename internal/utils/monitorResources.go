package utils

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// ResourceSample is one reading of the process's resource usage.
type ResourceSample struct {
	Goroutines  int
	HeapAllocKB float64
	HeapObjects uint64
}

func ReadResources() ResourceSample {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return ResourceSample{
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocKB: float64(memStats.HeapAlloc) / 1024,
		HeapObjects: memStats.HeapObjects,
	}
}

// MonitorResources logs resource usage (goroutines and memory) every
// interval until ctx is cancelled.
func MonitorResources(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := ReadResources()
			logger.Debug("[Resource Monitor]",
				"goroutines", s.Goroutines,
				"heap_alloc_kb", s.HeapAllocKB,
				"heap_objects", s.HeapObjects,
			)
		}
	}
}
