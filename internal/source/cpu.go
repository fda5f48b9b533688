package source

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
)

// CPUSampler measures overall CPU utilization over a sampling window.
type CPUSampler interface {
	Percent(ctx context.Context, window time.Duration) (float64, error)
}

// HostCPU samples /proc/stat through gopsutil. The call blocks for window.
type HostCPU struct{}

func (HostCPU) Percent(ctx context.Context, window time.Duration) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, errors.New("no cpu samples")
	}
	return percents[0], nil
}

// CPUUsage reports total CPU utilization as an integer percentage.
type CPUUsage struct {
	sampler CPUSampler
	window  time.Duration
}

// NewCPUUsage returns the cpu_usage source. window is part of every cycle's
// duration.
func NewCPUUsage(sampler CPUSampler, window time.Duration) *CPUUsage {
	if window <= 0 {
		window = time.Second
	}
	return &CPUUsage{sampler: sampler, window: window}
}

func (c *CPUUsage) Name() string     { return "cpu_usage" }
func (c *CPUUsage) Sentinel() string { return SentinelNumber }

func (c *CPUUsage) Acquire(ctx context.Context) Field {
	pct, err := c.sampler.Percent(ctx, c.window)
	if err != nil {
		return Unavailable(c, err)
	}
	if math.IsNaN(pct) {
		return Unavailable(c, errors.New("sampler returned NaN"))
	}
	pct = max(0, min(pct, 100))
	return okField(c.Name(), pct, itoa(pct))
}
