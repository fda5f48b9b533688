package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// amdgpuTopReport is the subset of `amdgpu_top -J` output we read.
type amdgpuTopReport struct {
	Devices []struct {
		GPUActivity map[string]struct {
			Unit  string   `json:"unit"`
			Value *float64 `json:"value"`
		} `json:"gpu_activity"`
	} `json:"devices"`
}

// errNoGFXActivity marks a well-formed report that lacks the graphics
// engine reading.
var errNoGFXActivity = errors.New("no GFX activity in report")

// GPUUsage reports the graphics-engine utilization of the first GPU listed
// by amdgpu_top.
type GPUUsage struct {
	runner  Runner
	command string
}

// NewGPUUsage returns the gpu_usage source backed by command (amdgpu_top).
func NewGPUUsage(runner Runner, command string) *GPUUsage {
	if command == "" {
		command = "amdgpu_top"
	}
	return &GPUUsage{runner: runner, command: command}
}

func (g *GPUUsage) Name() string     { return "gpu_usage" }
func (g *GPUUsage) Sentinel() string { return SentinelNumber }

// Acquire runs a single JSON iteration. A report without GFX activity yields
// a degraded "0" rather than the sentinel.
func (g *GPUUsage) Acquire(ctx context.Context) Field {
	out, runErr := g.runner.Run(ctx, g.command, "-J", "-n", "1")
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Unavailable(g, ctxErr)
	}
	if len(out) == 0 && runErr != nil {
		return Unavailable(g, runErr)
	}

	pct, err := parseGFXActivity(out)
	switch {
	case errors.Is(err, errNoGFXActivity):
		return degradedField(g.Name(), "0", err)
	case err != nil:
		return Unavailable(g, errors.Join(err, runErr))
	}
	pct = max(0, min(pct, 100))
	return okField(g.Name(), pct, itoa(pct))
}

func parseGFXActivity(out []byte) (float64, error) {
	var report amdgpuTopReport
	if err := json.Unmarshal(out, &report); err != nil {
		return 0, fmt.Errorf("decode amdgpu_top output: %w", err)
	}
	if len(report.Devices) == 0 {
		return 0, errNoGFXActivity
	}
	gfx, ok := report.Devices[0].GPUActivity["GFX"]
	if !ok || gfx.Value == nil {
		return 0, errNoGFXActivity
	}
	return *gfx.Value, nil
}
