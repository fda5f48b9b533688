package source

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shirou/gopsutil/v4/sensors"
)

// Valid sensor range in Celsius. Readings outside it are treated as a broken
// sensor; negative values would also collide with the frame delimiter.
const (
	minCelsius = 0
	maxCelsius = 150
)

// SensorReader returns the host's hardware temperature sensors.
type SensorReader interface {
	Temperatures(ctx context.Context) ([]sensors.TemperatureStat, error)
}

// HostSensors reads hwmon sensors through gopsutil.
type HostSensors struct{}

func (HostSensors) Temperatures(ctx context.Context) ([]sensors.TemperatureStat, error) {
	return sensors.TemperaturesWithContext(ctx)
}

// Temperature reports the first sensor belonging to a driver label
// (e.g. "k10temp" for AMD CPUs, "amdgpu" for AMD GPUs) in whole degrees.
type Temperature struct {
	name   string
	label  string
	reader SensorReader
}

// NewCPUTemperature returns the cpu_temp source.
func NewCPUTemperature(reader SensorReader, label string) *Temperature {
	return &Temperature{name: "cpu_temp", label: label, reader: reader}
}

// NewGPUTemperature returns the gpu_temp source.
func NewGPUTemperature(reader SensorReader, label string) *Temperature {
	return &Temperature{name: "gpu_temp", label: label, reader: reader}
}

func (t *Temperature) Name() string     { return t.name }
func (t *Temperature) Sentinel() string { return SentinelNumber }

func (t *Temperature) Acquire(ctx context.Context) Field {
	stats, err := t.reader.Temperatures(ctx)
	// gopsutil reports unreadable individual sensors as warnings alongside
	// the readable ones.
	if len(stats) == 0 {
		if err == nil {
			err = fmt.Errorf("no sensors reported")
		}
		return Unavailable(t, err)
	}

	stat, ok := findSensor(stats, t.label)
	if !ok {
		return Unavailable(t, fmt.Errorf("no sensor with label %q", t.label))
	}
	if math.IsNaN(stat.Temperature) || stat.Temperature < minCelsius || stat.Temperature > maxCelsius {
		return Unavailable(t, fmt.Errorf("sensor %s reading %.1f out of range", stat.SensorKey, stat.Temperature))
	}
	return okField(t.name, stat.Temperature, itoa(stat.Temperature))
}

// findSensor returns the first sensor whose key is label or label_<input>.
func findSensor(stats []sensors.TemperatureStat, label string) (sensors.TemperatureStat, bool) {
	for _, s := range stats {
		if s.SensorKey == label || strings.HasPrefix(s.SensorKey, label+"_") {
			return s, true
		}
	}
	return sensors.TemperatureStat{}, false
}
