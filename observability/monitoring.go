package observability

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// MonitoringStats is the snapshot served by the health endpoint.
type MonitoringStats struct {
	// --- MESSAGING ---
	MessagesSent      uint64  `json:"messages_sent"`
	MessagesPerSecond float64 `json:"messages_per_second"`
	BroadcastFailures uint64  `json:"broadcast_failures"`
	DroppedEvents     uint64  `json:"dropped_events"`
	ActiveConnections int64   `json:"active_connections"`

	// --- PROCESS ---
	RssMb      uint64  `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	NumThreads int32   `json:"num_threads"`

	// --- GO RUNTIME ---
	AllocMemMb    uint64 `json:"alloc_mem_mb"`
	NumGC         uint32 `json:"num_gc"`
	NumGoroutines int    `json:"num_goroutines"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// MonitoringManager aggregates live counters into periodic snapshots.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats
	interval    time.Duration
	startedAt   time.Time

	MessagesSent      uint64
	BroadcastFailures uint64
	DroppedEvents     uint64
	ActiveConnections int64
	sentAtLastCheck   uint64
	LastCheck         time.Time
}

func NewMonitoringManager(log *slog.Logger, interval time.Duration) *MonitoringManager {
	now := time.Now()
	return &MonitoringManager{log: log, interval: interval, startedAt: now, LastCheck: now}
}

func (mm *MonitoringManager) IncrMessagesSent() {
	atomic.AddUint64(&mm.MessagesSent, 1)
}

func (mm *MonitoringManager) IncrBroadcastFailures() {
	atomic.AddUint64(&mm.BroadcastFailures, 1)
}

func (mm *MonitoringManager) IncrDroppedEvents() {
	atomic.AddUint64(&mm.DroppedEvents, 1)
}

func (mm *MonitoringManager) ConnectionOpened() {
	atomic.AddInt64(&mm.ActiveConnections, 1)
}

func (mm *MonitoringManager) ConnectionClosed() {
	atomic.AddInt64(&mm.ActiveConnections, -1)
}

// UpdateProcess records the latest OS level sample of this process.
func (mm *MonitoringManager) UpdateProcess(rssBytes uint64, cpuPercent float64, threads int32) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.RssMb = rssBytes / 1024 / 1024
	mm.latestStats.CPUPercent = cpuPercent
	mm.latestStats.NumThreads = threads
}

// Run refreshes the snapshot until ctx is done.
func (mm *MonitoringManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(mm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.log.Debug("Monitoring manager stopped")
			return nil
		case <-ticker.C:
			mm.updateStats()
		}
	}
}

func (mm *MonitoringManager) updateStats() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	now := time.Now()
	sent := atomic.LoadUint64(&mm.MessagesSent)
	if duration := now.Sub(mm.LastCheck).Seconds(); duration > 0 {
		mm.latestStats.MessagesPerSecond = float64(sent-mm.sentAtLastCheck) / duration
	}
	mm.sentAtLastCheck = sent
	mm.LastCheck = now

	mm.fillCounters()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC
	mm.latestStats.NumGoroutines = runtime.NumGoroutine()

	mm.log.Debug("Stats updated",
		"messages_sent", mm.latestStats.MessagesSent,
		"active_connections", mm.latestStats.ActiveConnections,
		"mem_mb", mm.latestStats.AllocMemMb,
	)
}

// GetLatest returns the last snapshot with live counters.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.fillCounters()
	return mm.latestStats
}

func (mm *MonitoringManager) fillCounters() {
	mm.latestStats.MessagesSent = atomic.LoadUint64(&mm.MessagesSent)
	mm.latestStats.BroadcastFailures = atomic.LoadUint64(&mm.BroadcastFailures)
	mm.latestStats.DroppedEvents = atomic.LoadUint64(&mm.DroppedEvents)
	mm.latestStats.ActiveConnections = atomic.LoadInt64(&mm.ActiveConnections)
	mm.latestStats.UptimeSeconds = int64(time.Since(mm.startedAt).Seconds())
}
