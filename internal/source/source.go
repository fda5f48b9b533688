// Package source implements the metric sources polled on every cycle. Each
// source acquires exactly one value and renders it as a short canonical
// string. Acquire never fails: an unreachable tool, sensor or service yields
// StatusUnavailable and the source's documented sentinel instead.
package source

import (
	"context"
	"fmt"
	"strconv"
)

// Status describes how a field value was obtained.
type Status string

const (
	StatusOK          Status = "ok"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

// Sentinel values rendered when a metric cannot be acquired. None of them
// contains the frame delimiter.
const (
	SentinelDisk   = "FAIL"
	SentinelNumber = "NA"
	SentinelIP     = "0.0.0.0"
)

// Field is one named, rendered metric value. Value is never empty. Err is
// kept for logging only and is never rendered.
type Field struct {
	Name   string
	Raw    any
	Value  string
	Status Status
	Err    error
}

// Source acquires one metric.
type Source interface {
	// Name returns the field identifier, e.g. "cpu_temp".
	Name() string
	// Sentinel returns the value rendered when the metric is unavailable.
	Sentinel() string
	// Acquire reads the metric. It must honor ctx and must not panic.
	Acquire(ctx context.Context) Field
}

func okField(name string, raw any, value string) Field {
	return Field{Name: name, Raw: raw, Value: value, Status: StatusOK}
}

func degradedField(name string, value string, err error) Field {
	return Field{Name: name, Value: value, Status: StatusDegraded, Err: err}
}

// Unavailable returns the UNAVAILABLE field for s, wrapping err with the
// source name.
func Unavailable(s Source, err error) Field {
	if err != nil {
		err = fmt.Errorf("%s: %w", s.Name(), err)
	}
	return Field{Name: s.Name(), Value: s.Sentinel(), Status: StatusUnavailable, Err: err}
}

// itoa renders a non-negative measurement truncated toward zero.
func itoa(v float64) string {
	return strconv.FormatInt(int64(v), 10)
}
