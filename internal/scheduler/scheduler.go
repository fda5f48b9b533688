// Package scheduler drives the collect → assemble → send cycle on a fixed
// interval. Each cycle is isolated: a failed or panicking cycle is logged
// and the next tick runs as usual.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/hostpanel/internal/collector"
	"github.com/HerbHall/hostpanel/internal/frame"
	"github.com/HerbHall/hostpanel/internal/source"
	"github.com/HerbHall/hostpanel/internal/telemetry"
	"github.com/HerbHall/hostpanel/internal/transport"
)

// Collector produces the ordered fields of one cycle.
type Collector interface {
	Collect(ctx context.Context) collector.Result
}

// Connectivity flag modes.
const (
	FlagStatic = "static"
	FlagPing   = "ping"
)

// Options configures the scheduler.
type Options struct {
	Interval     time.Duration
	Retries      int
	RetryBackoff time.Duration
	// FlagMode is FlagStatic (render FlagValue) or FlagPing (YES when the
	// ping_avg field was acquired, NO otherwise).
	FlagMode  string
	FlagValue string
}

// Cycle summarizes one finished cycle.
type Cycle struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Frame     string
	Statuses  map[string]source.Status
	Attempts  []transport.Attempt
	Err       error
}

// OK reports whether the frame was delivered.
func (c Cycle) OK() bool { return c.Err == nil }

// Outcome classifies the cycle for logs and metrics.
func (c Cycle) Outcome() string {
	switch {
	case c.Err == nil:
		return "ok"
	case errors.Is(c.Err, frame.ErrFormat):
		return "format_error"
	case errors.Is(c.Err, transport.ErrTransport):
		return "transport_error"
	case errors.Is(c.Err, context.Canceled), errors.Is(c.Err, context.DeadlineExceeded):
		return "aborted"
	case errors.Is(c.Err, errPanic):
		return "panic"
	default:
		return "error"
	}
}

var errPanic = errors.New("cycle panicked")

// Scheduler runs cycles until stopped.
type Scheduler struct {
	collector Collector
	assembler *frame.Assembler
	sink      transport.Sink
	opts      Options
	logger    *zap.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time

	state atomic.Int32

	mu     sync.RWMutex
	last   *Cycle
	cancel context.CancelFunc
}

// New creates a scheduler. metrics may be nil.
func New(c Collector, a *frame.Assembler, sink transport.Sink, opts Options, logger *zap.Logger, metrics *telemetry.Metrics) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.FlagMode == "" {
		opts.FlagMode = FlagStatic
	}
	if opts.FlagValue == "" {
		opts.FlagValue = "YES"
	}
	return &Scheduler{
		collector: c,
		assembler: a,
		sink:      sink,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// WithClock replaces the time source used for frame timestamps.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run runs a cycle immediately, then one per interval, and blocks until ctx
// is cancelled or Stop is called. A cycle in flight when the stop arrives is
// finished before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	s.logger.Info("scheduler starting",
		zap.Duration("interval", s.opts.Interval),
		zap.String("endpoint", s.sink.Endpoint()),
	)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Stop signals Run to return after the current cycle.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// State returns the current stage of the cycle state machine.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// LastCycle returns the most recent finished cycle.
func (s *Scheduler) LastCycle() (Cycle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Cycle{}, false
	}
	c := *s.last
	c.Statuses = maps.Clone(c.Statuses)
	c.Attempts = append([]transport.Attempt(nil), c.Attempts...)
	return c, true
}

// RunOnce executes a single cycle. It never panics; the outcome is in the
// returned Cycle.
func (s *Scheduler) RunOnce(ctx context.Context) (cyc Cycle) {
	began := time.Now()
	cyc.StartedAt = s.now()
	defer func() {
		if r := recover(); r != nil {
			cyc.Err = fmt.Errorf("%w: %v", errPanic, r)
		}
		cyc.Duration = time.Since(began)
		s.setState(StateIdle)
		s.finish(cyc)
	}()

	s.setState(StateCollecting)
	res := s.collector.Collect(ctx)
	cyc.ID = res.CycleID
	cyc.Statuses = res.Statuses()
	s.metrics.ObserveFields(res.Fields)

	s.setState(StateAssembling)
	f, err := s.assembler.Assemble(res.Values(), s.flag(res), s.now())
	if err != nil {
		cyc.Err = err
		return cyc
	}
	cyc.Frame = f.String()

	if err := ctx.Err(); err != nil {
		cyc.Err = err
		return cyc
	}

	s.setState(StateSending)
	cyc.Attempts, cyc.Err = s.send(ctx, f)
	return cyc
}

// send delivers f, retrying up to opts.Retries times. Sends run on a context
// detached from ctx so a stop request cannot cut a frame short; ctx only
// prevents further retries.
func (s *Scheduler) send(ctx context.Context, f frame.Frame) ([]transport.Attempt, error) {
	sendCtx := context.WithoutCancel(ctx)
	size := len(f.Bytes())

	var attempts []transport.Attempt
	var err error
	for retry := 0; retry <= s.opts.Retries; retry++ {
		if retry > 0 && !sleepCtx(ctx, s.opts.RetryBackoff) {
			break
		}
		began := time.Now()
		err = s.sink.Send(sendCtx, f)
		a := transport.Attempt{
			Endpoint: s.sink.Endpoint(),
			Bytes:    size,
			Retry:    retry,
			Duration: time.Since(began),
			Err:      err,
		}
		attempts = append(attempts, a)
		s.metrics.ObserveAttempt(a)
		if err == nil {
			return attempts, nil
		}
		s.logger.Warn("frame delivery attempt failed",
			zap.String("endpoint", a.Endpoint),
			zap.Int("retry", a.Retry),
			zap.Error(err),
		)
	}
	return attempts, err
}

func (s *Scheduler) flag(res collector.Result) string {
	if s.opts.FlagMode != FlagPing {
		return s.opts.FlagValue
	}
	if f, ok := res.Field("ping_avg"); ok && f.Status == source.StatusOK {
		return "YES"
	}
	return "NO"
}

func (s *Scheduler) finish(cyc Cycle) {
	outcome := cyc.Outcome()
	s.metrics.ObserveCycle(outcome, cyc.Duration, cyc.StartedAt)

	s.mu.Lock()
	s.last = &cyc
	s.mu.Unlock()

	fields := []zap.Field{
		zap.String("cycle_id", cyc.ID),
		zap.String("outcome", outcome),
		zap.Duration("duration", cyc.Duration),
		zap.Int("attempts", len(cyc.Attempts)),
	}
	switch outcome {
	case "ok":
		s.logger.Info("cycle complete", append(fields, zap.String("frame", cyc.Frame))...)
	case "format_error":
		s.logger.Error("frame invariant violated", append(fields, zap.Error(cyc.Err))...)
	case "aborted":
		s.logger.Info("cycle aborted", append(fields, zap.Error(cyc.Err))...)
	default:
		s.logger.Error("cycle failed", append(fields, zap.Error(cyc.Err))...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
