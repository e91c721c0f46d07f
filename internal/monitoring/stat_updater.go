package monitoring

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/isdelr/telemed-portal/internal/metrics"
	"github.com/isdelr/telemed-portal/internal/services"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is a snapshot of the machine serving the site.
type HostStats struct {
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryPercent float64   `json:"memoryPercent"`
	UptimeSeconds uint64    `json:"uptimeSeconds"`
	UploadsBytes  int64     `json:"uploadsBytes"`
	SampledAt     time.Time `json:"sampledAt"`
}

const (
	highCPUThreshold = 90.0
	alertCooldown    = 15 * time.Minute
)

// StatUpdater periodically samples host usage for /health and /metrics.
type StatUpdater struct {
	uploadDir string
	eventSvc  services.EventServiceProvider

	mu           sync.RWMutex
	latest       HostStats
	lastCPUAlert time.Time
}

// NewStatUpdater creates a new StatUpdater. eventSvc may be nil.
func NewStatUpdater(uploadDir string, eventSvc services.EventServiceProvider) *StatUpdater {
	return &StatUpdater{uploadDir: uploadDir, eventSvc: eventSvc}
}

// Update takes a new sample and publishes it.
func (su *StatUpdater) Update(ctx context.Context) error {
	stats, err := Sample(ctx, su.uploadDir)
	if err != nil {
		return err
	}

	metrics.HostCPUPercent.Set(stats.CPUPercent)
	metrics.HostMemoryPercent.Set(stats.MemoryPercent)
	metrics.UploadsBytes.Set(float64(stats.UploadsBytes))

	su.mu.Lock()
	su.latest = stats
	su.mu.Unlock()

	su.checkAndAlertForHighCPU(ctx, stats)
	return nil
}

// Latest returns the most recent sample, taking one if none exists yet.
func (su *StatUpdater) Latest(ctx context.Context) (HostStats, error) {
	su.mu.RLock()
	stats := su.latest
	su.mu.RUnlock()
	if !stats.SampledAt.IsZero() {
		return stats, nil
	}
	if err := su.Update(ctx); err != nil {
		return HostStats{}, err
	}
	su.mu.RLock()
	defer su.mu.RUnlock()
	return su.latest, nil
}

func (su *StatUpdater) checkAndAlertForHighCPU(ctx context.Context, stats HostStats) {
	if stats.CPUPercent <= highCPUThreshold || su.eventSvc == nil {
		return
	}
	su.mu.Lock()
	if time.Since(su.lastCPUAlert) < alertCooldown {
		su.mu.Unlock()
		return
	}
	su.lastCPUAlert = time.Now()
	su.mu.Unlock()

	msg := fmt.Sprintf("High CPU usage (%.1f%%) detected on the host.", stats.CPUPercent)
	if err := su.eventSvc.CreateEvent(ctx, "system.alert.cpu", "warn", msg, nil); err != nil {
		log.Warn().Err(err).Msg("StatUpdater: Failed to record CPU alert")
	}
}

// Sample reads host usage and the size of uploadDir.
func Sample(ctx context.Context, uploadDir string) (HostStats, error) {
	stats := HostStats{SampledAt: time.Now().UTC()}

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return HostStats{}, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	if len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostStats{}, fmt.Errorf("failed to read memory usage: %w", err)
	}
	stats.MemoryPercent = vm.UsedPercent

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		stats.UptimeSeconds = uptime
	}

	stats.UploadsBytes = directorySize(uploadDir)
	return stats, nil
}

func directorySize(path string) int64 {
	if path == "" {
		return 0
	}
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("StatUpdater: Could not calculate directory size")
		return 0
	}
	return size
}
