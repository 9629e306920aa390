package workers

import (
	"chat-delivery/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessStats is a snapshot of the resources used by this process.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	Status     string  `json:"status"`
	CPUPercent float64 `json:"cpuPercent"`
	RSSBytes   uint64  `json:"rssBytes"`
}

// ProcessStatsWorker refreshes the process gauges every interval.
type ProcessStatsWorker struct {
	log      *slog.Logger
	metrics  *observability.Metrics
	interval time.Duration
}

func NewProcessStatsWorker(log *slog.Logger, metrics *observability.Metrics, interval time.Duration) *ProcessStatsWorker {
	return &ProcessStatsWorker{log: log, metrics: metrics, interval: interval}
}

func (w *ProcessStatsWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats, err := collectStats(p)
			if err != nil {
				w.log.Warn("Failed to collect process stats", "error", err)
				continue
			}
			w.metrics.ProcessCPU.Set(stats.CPUPercent)
			w.metrics.ProcessRSS.Set(float64(stats.RSSBytes))
		}
	}
}

// SelfStats reads the stats of the current process, used by the health endpoint.
func SelfStats() (ProcessStats, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ProcessStats{}, err
	}
	return collectStats(p)
}

func collectStats(p *process.Process) (ProcessStats, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return ProcessStats{}, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return ProcessStats{}, err
	}
	status, err := p.Status()
	if err != nil {
		return ProcessStats{}, err
	}
	return ProcessStats{PID: p.Pid, Status: status, CPUPercent: cpuPercent, RSSBytes: memInfo.RSS}, nil
}
