package service

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
)

const bytesPerMB = 1024 * 1024

// ResourceSampler captures host and runtime resource usage.
type ResourceSampler struct {
	logger *zap.Logger
}

// NewResourceSampler constructs a sampler.
func NewResourceSampler(logger *zap.Logger) *ResourceSampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourceSampler{logger: logger}
}

// Snapshot reads CPU, memory and Go runtime stats. Host readings that fail
// are left at zero.
func (s *ResourceSampler) Snapshot(ctx context.Context) models.ResourceSnapshot {
	var snapshot models.ResourceSnapshot

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		s.logger.Debug("cpu sample failed", zap.Error(err))
	} else if len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.logger.Debug("memory sample failed", zap.Error(err))
	} else {
		snapshot.MemoryUsedPercent = vm.UsedPercent
		snapshot.MemoryUsedMB = vm.Used / bytesPerMB
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	snapshot.HeapAllocMB = stats.HeapAlloc / bytesPerMB
	snapshot.Goroutines = runtime.NumGoroutine()

	return snapshot
}
