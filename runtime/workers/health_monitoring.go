package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessRecorder receives OS level samples of the server process.
type ProcessRecorder interface {
	UpdateProcess(rssBytes uint64, cpuPercent float64, threads int32)
}

// HealthMonitoringWorker samples this process with gopsutil on every tick.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	recorder       ProcessRecorder
	metricInterval time.Duration
	pid            int32
}

func NewHealthMonitoringWorker(log *slog.Logger, recorder ProcessRecorder, metricInterval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		recorder:       recorder,
		metricInterval: metricInterval,
		pid:            int32(os.Getpid()),
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping process sampling")
			return nil
		case <-ticker.C:
			w.sample(p)
		}
	}
}

func (w *HealthMonitoringWorker) sample(p *process.Process) {
	mem, err := p.MemoryInfo()
	if err != nil {
		w.log.Error("Error while finding process memory", "err", err)
		return
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		w.log.Error("Error while finding process cpu usage", "err", err)
		return
	}
	threads, err := p.NumThreads()
	if err != nil {
		w.log.Debug("Error while finding process threads", "err", err)
	}
	w.recorder.UpdateProcess(mem.RSS, cpu, threads)
}
