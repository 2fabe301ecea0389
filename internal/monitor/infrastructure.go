// Package monitor implements the three-tier monitors (C13): Infrastructure,
// Application, and Business.
package monitor

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/itskum47/aidos-core/internal/clock"
	"github.com/itskum47/aidos-core/internal/metrics"
)

// Thresholds are spec.md §4.13's default CPU/memory/disk limits.
type Thresholds struct {
	CPUWarn, CPUCritical       float64
	MemoryWarn, MemoryCritical float64
	DiskWarn, DiskCritical     float64
}

// DefaultThresholds matches spec.md: warn {80,85,90}, critical {90,95,95}.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUWarn: 80, CPUCritical: 90,
		MemoryWarn: 85, MemoryCritical: 95,
		DiskWarn: 90, DiskCritical: 95,
	}
}

// Sample is one infrastructure reading.
type Sample struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
}

// ThresholdEvent fires when a sample crosses a warning/critical threshold.
type ThresholdEvent struct {
	Resource string // cpu, memory, disk
	Value    float64
	Severity string // warning, critical
}

// ThresholdHandler receives ThresholdEvents.
type ThresholdHandler func(ThresholdEvent)

// InfrastructureMonitor samples CPU/memory/disk on each Sample call, grounded on
// the general infra-sampling shape of
// other_examples/529176dd_fumiya-kume-cca__pkg-agents-health.go.go and
// other_examples/066ec933_..._scheduler-core.go.go, both of which derive
// health from periodic infra samples. Disk stats use
// golang.org/x/sys/unix.Statfs — a REDESIGN FLAG fix replacing the
// spec's literal `df -k /` shell-out, reporting 0 whenever Statfs fails
// (the error kind is not inspected), matching the teacher's own transitive
// golang.org/x/sys dependency.
type InfrastructureMonitor struct {
	clock      clock.Clock
	metrics    *metrics.Registry
	thresholds Thresholds
	interval   time.Duration
	diskPath   string

	lastIdle, lastTotal uint64

	onThreshold ThresholdHandler
}

// NewInfrastructureMonitor creates a monitor for diskPath ("/" by default).
// interval (default 10s) is stored but not acted on: the monitor runs no
// loop of its own and takes a reading only when Sample is called.
func NewInfrastructureMonitor(c clock.Clock, m *metrics.Registry, thresholds Thresholds, interval time.Duration, diskPath string) *InfrastructureMonitor {
	if interval == 0 {
		interval = 10 * time.Second
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &InfrastructureMonitor{clock: c, metrics: m, thresholds: thresholds, interval: interval, diskPath: diskPath}
}

// OnThreshold registers the handler invoked when a sample crosses a
// threshold.
func (m *InfrastructureMonitor) OnThreshold(h ThresholdHandler) { m.onThreshold = h }

// Sample collects one reading and records it into the metrics registry,
// emitting threshold events as needed.
func (m *InfrastructureMonitor) Sample() Sample {
	s := Sample{
		CPUPercent:    m.sampleCPU(),
		MemoryPercent: m.sampleMemory(),
		DiskPercent:   m.sampleDisk(),
	}

	m.metrics.SetSystemUsage(s.CPUPercent, s.MemoryPercent)
	m.checkThreshold("cpu", s.CPUPercent, m.thresholds.CPUWarn, m.thresholds.CPUCritical)
	m.checkThreshold("memory", s.MemoryPercent, m.thresholds.MemoryWarn, m.thresholds.MemoryCritical)
	m.checkThreshold("disk", s.DiskPercent, m.thresholds.DiskWarn, m.thresholds.DiskCritical)

	return s
}

func (m *InfrastructureMonitor) checkThreshold(resource string, value, warn, critical float64) {
	if m.onThreshold == nil {
		return
	}
	if value >= critical {
		m.onThreshold(ThresholdEvent{Resource: resource, Value: value, Severity: "critical"})
	} else if value >= warn {
		m.onThreshold(ThresholdEvent{Resource: resource, Value: value, Severity: "warning"})
	}
}

// sampleDisk reports disk usage percent for diskPath via Statfs. It returns
// 0 on any Statfs error; permission errors are not told apart from others.
func (m *InfrastructureMonitor) sampleDisk() float64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(m.diskPath, &stat); err != nil {
		return 0
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	if total == 0 {
		return 0
	}
	used := total - free
	return (float64(used) / float64(total)) * 100
}

// sampleMemory reads /proc/meminfo-style totals where available; falls
// back to 0 on platforms without it (matching the disk fallback contract).
func (m *InfrastructureMonitor) sampleMemory() float64 {
	total, free, err := readMeminfo()
	if err != nil || total == 0 {
		return 0
	}
	used := total - free
	return (float64(used) / float64(total)) * 100
}

// sampleCPU computes delta idle/total-across-cores utilization between
// consecutive samples, matching the teacher's own delta-based CPU
// sampling approach (no single teacher file; this is the general
// technique every /proc/stat-reading Go monitor uses).
func (m *InfrastructureMonitor) sampleCPU() float64 {
	idle, total, err := readCPUStat()
	if err != nil || total == 0 {
		return 0
	}
	if m.lastTotal == 0 {
		m.lastIdle, m.lastTotal = idle, total
		return 0
	}

	deltaIdle := float64(idle - m.lastIdle)
	deltaTotal := float64(total - m.lastTotal)
	m.lastIdle, m.lastTotal = idle, total

	if deltaTotal <= 0 {
		return 0
	}
	return (1.0 - deltaIdle/deltaTotal) * 100
}

// readMeminfo and readCPUStat are platform-dependent helpers; Linux
// implementations live in linux.go, with a portable fallback in
// fallback.go for other GOOS values.
var _ = os.Getpid // keep os imported for platform-specific files sharing this package
