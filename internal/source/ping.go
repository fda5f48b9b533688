package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Prober measures the average round-trip time to a destination.
type Prober interface {
	Probe(ctx context.Context, destination string, count int) (time.Duration, error)
}

// ICMPProber pings destinations using ICMP via pro-bing.
type ICMPProber struct {
	timeout    time.Duration
	privileged bool
}

// NewICMPProber creates an ICMP prober. timeout bounds one Probe call;
// privileged selects raw sockets over unprivileged UDP pings.
func NewICMPProber(timeout time.Duration, privileged bool) *ICMPProber {
	return &ICMPProber{
		timeout:    timeout,
		privileged: privileged || runtime.GOOS == "windows",
	}
}

func (p *ICMPProber) Probe(ctx context.Context, destination string, count int) (time.Duration, error) {
	pinger, err := probing.NewPinger(destination)
	if err != nil {
		return 0, fmt.Errorf("create pinger: %w", err)
	}

	pinger.Count = count
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(p.privileged)

	// Run pinger in a goroutine for context cancellation.
	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case runErr := <-done:
		if runErr != nil {
			return 0, runErr
		}
		stats := pinger.Statistics()
		if stats.PacketsRecv == 0 {
			return 0, errors.New("all packets lost")
		}
		return stats.AvgRtt, nil

	case <-ctx.Done():
		pinger.Stop()
		return 0, ctx.Err()
	}
}

// CommandProber runs the system ping binary and parses its summary line.
type CommandProber struct {
	runner Runner
	binary string
}

// NewCommandProber returns a prober that shells out to binary (ping).
func NewCommandProber(runner Runner, binary string) *CommandProber {
	if binary == "" {
		binary = "ping"
	}
	return &CommandProber{runner: runner, binary: binary}
}

func (p *CommandProber) Probe(ctx context.Context, destination string, count int) (time.Duration, error) {
	out, err := p.runner.Run(ctx, p.binary, "-c", strconv.Itoa(count), destination)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", p.binary, err)
	}
	return parsePingSummary(out)
}

// parsePingSummary reads the average from the statistics line, e.g.
//
//	rtt min/avg/max/mdev = 9.120/14.281/20.307/3.954 ms
//	round-trip min/avg/max = 9.120/14.281/20.307 ms
func parsePingSummary(out []byte) (time.Duration, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "min/avg/max") {
			continue
		}
		_, values, ok := strings.Cut(line, "=")
		if !ok {
			return 0, fmt.Errorf("malformed summary: %q", line)
		}
		parts := strings.Split(strings.TrimSpace(values), "/")
		if len(parts) < 3 {
			return 0, fmt.Errorf("malformed summary: %q", line)
		}
		avg, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return 0, fmt.Errorf("parse average: %w", err)
		}
		return time.Duration(avg * float64(time.Millisecond)), nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, errors.New("no rtt summary in ping output")
}

// PingLatency reports the average round-trip time in whole milliseconds.
type PingLatency struct {
	prober      Prober
	destination string
	count       int
}

// NewPingLatency returns the ping_avg source.
func NewPingLatency(prober Prober, destination string, count int) *PingLatency {
	if count < 1 {
		count = 1
	}
	return &PingLatency{prober: prober, destination: destination, count: count}
}

func (p *PingLatency) Name() string     { return "ping_avg" }
func (p *PingLatency) Sentinel() string { return SentinelNumber }

func (p *PingLatency) Acquire(ctx context.Context) Field {
	avg, err := p.prober.Probe(ctx, p.destination, p.count)
	if err != nil {
		return Unavailable(p, err)
	}
	if avg < 0 {
		return Unavailable(p, fmt.Errorf("negative average %s", avg))
	}
	ms := avg / time.Millisecond
	return okField(p.Name(), avg, strconv.FormatInt(int64(ms), 10))
}
