package source

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

type fakeCPU struct {
	pct    float64
	err    error
	window time.Duration
}

func (f *fakeCPU) Percent(_ context.Context, window time.Duration) (float64, error) {
	f.window = window
	return f.pct, f.err
}

func TestCPUUsage_Acquire(t *testing.T) {
	tests := []struct {
		name       string
		sampler    *fakeCPU
		wantValue  string
		wantStatus Status
	}{
		{"truncates", &fakeCPU{pct: 12.97}, "12", StatusOK},
		{"idle", &fakeCPU{pct: 0}, "0", StatusOK},
		{"clamped high", &fakeCPU{pct: 100.4}, "100", StatusOK},
		{"nan sample", &fakeCPU{pct: math.NaN()}, SentinelNumber, StatusUnavailable},
		{"sampling error", &fakeCPU{err: errors.New("open /proc/stat: permission denied")}, SentinelNumber, StatusUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewCPUUsage(tt.sampler, time.Second).Acquire(context.Background())
			if f.Value != tt.wantValue || f.Status != tt.wantStatus {
				t.Errorf("got %q/%q, want %q/%q", f.Value, f.Status, tt.wantValue, tt.wantStatus)
			}
			if tt.sampler.window != time.Second {
				t.Errorf("sampling window = %v, want 1s", tt.sampler.window)
			}
		})
	}
}

func TestCPUUsage_ErrorNotRendered(t *testing.T) {
	f := NewCPUUsage(&fakeCPU{err: errors.New("boom")}, 0).Acquire(context.Background())
	if f.Value != SentinelNumber {
		t.Errorf("Value = %q, want sentinel %q", f.Value, SentinelNumber)
	}
	if f.Err == nil {
		t.Error("Err = nil, want the sampling error kept for logging")
	}
}
