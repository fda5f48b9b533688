package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MemoryUsage reports used memory as a percentage of total, as accounted by
// `free -b`.
type MemoryUsage struct {
	runner  Runner
	command string
}

// NewMemoryUsage returns the mem_usage source backed by command (free).
func NewMemoryUsage(runner Runner, command string) *MemoryUsage {
	if command == "" {
		command = "free"
	}
	return &MemoryUsage{runner: runner, command: command}
}

func (m *MemoryUsage) Name() string     { return "mem_usage" }
func (m *MemoryUsage) Sentinel() string { return SentinelNumber }

func (m *MemoryUsage) Acquire(ctx context.Context) Field {
	out, err := m.runner.Run(ctx, m.command, "-b")
	if err != nil {
		return Unavailable(m, err)
	}
	used, total, err := parseFree(out)
	if err != nil {
		return Unavailable(m, err)
	}
	pct := used * 100 / total
	return okField(m.Name(), pct, strconv.FormatUint(pct, 10))
}

// parseFree extracts used and total bytes from the "Mem:" row.
func parseFree(out []byte) (used, total uint64, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Mem:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return 0, 0, fmt.Errorf("short Mem row: %q", line)
		}
		total, err = strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse total: %w", err)
		}
		used, err = strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse used: %w", err)
		}
		if total == 0 {
			return 0, 0, errors.New("total memory is zero")
		}
		if used > total {
			return 0, 0, fmt.Errorf("used %d exceeds total %d", used, total)
		}
		return used, total, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	return 0, 0, errors.New("no Mem row in output")
}
