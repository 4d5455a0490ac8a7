// Package sysmonitor runs a background sampler that publishes host
// resource gauges independently of request traffic.
package sysmonitor

import (
	"context"
	"time"
)

// Gauges is the subset of metrics.Registry the monitor writes to.
type Gauges interface {
	SetSystemMemory(usedBytes, totalBytes float64)
	SetSystemCPU(percent float64)
	SetSystemDisk(freeBytes, totalBytes float64)
}

// Sampler reads current host resource usage. Implementations are platform
// specific; sample_linux.go backs this with golang.org/x/sys/unix.
type Sampler interface {
	Sample(diskPath string) (Sample, error)
}

// Sample is one point-in-time reading.
type Sample struct {
	MemUsedBytes   float64
	MemTotalBytes  float64
	CPUPercent     float64
	DiskFreeBytes  float64
	DiskTotalBytes float64
}

// Monitor periodically samples host resources and publishes them to Gauges.
type Monitor struct {
	sampler  Sampler
	gauges   Gauges
	diskPath string
	interval time.Duration
}

// New constructs a Monitor. diskPath is the filesystem the disk gauges
// report on — the workspace base directory, since that is the volume the
// service actually consumes.
func New(sampler Sampler, gauges Gauges, diskPath string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{sampler: sampler, gauges: gauges, diskPath: diskPath, interval: interval}
}

// Run samples on a fixed interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sampleOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleOnce()
		}
	}
}

func (m *Monitor) sampleOnce() {
	sample, err := m.sampler.Sample(m.diskPath)
	if err != nil {
		return
	}
	m.gauges.SetSystemMemory(sample.MemUsedBytes, sample.MemTotalBytes)
	m.gauges.SetSystemCPU(sample.CPUPercent)
	m.gauges.SetSystemDisk(sample.DiskFreeBytes, sample.DiskTotalBytes)
}
