// Package collector runs the ordered set of metric sources for one cycle.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/hostpanel/internal/source"
)

// Options bounds one collection cycle.
type Options struct {
	// CycleTimeout caps the whole collection.
	CycleTimeout time.Duration
	// SourceTimeout caps each individual source.
	SourceTimeout time.Duration
	// MaxParallel limits how many sources run at once. Zero means all.
	MaxParallel int
}

// Result is the outcome of one collection cycle. Fields are in source order.
type Result struct {
	CycleID   string
	StartedAt time.Time
	Fields    []source.Field
	Duration  time.Duration
}

// Values returns the rendered values in source order.
func (r Result) Values() []string {
	out := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = f.Value
	}
	return out
}

// Statuses maps each field name to its acquisition status.
func (r Result) Statuses() map[string]source.Status {
	out := make(map[string]source.Status, len(r.Fields))
	for _, f := range r.Fields {
		out[f.Name] = f.Status
	}
	return out
}

// Field returns the field with the given name.
func (r Result) Field(name string) (source.Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return source.Field{}, false
}

// Collector acquires every source concurrently and reassembles the fields
// in source order.
type Collector struct {
	sources []source.Source
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a collector over sources. The order of sources is the order
// of the resulting fields.
func New(sources []source.Source, opts Options, logger *zap.Logger) *Collector {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = len(sources)
	}
	return &Collector{
		sources: sources,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Collect runs all sources and always returns one field per source. A
// source still running when its budget or the cycle budget expires is
// recorded as unavailable; it is not retried.
func (c *Collector) Collect(ctx context.Context) Result {
	start := c.now()
	if c.opts.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CycleTimeout)
		defer cancel()
	}

	fields := make([]source.Field, len(c.sources))
	var g errgroup.Group
	g.SetLimit(max(c.opts.MaxParallel, 1))

	for i, src := range c.sources {
		g.Go(func() error {
			fields[i] = c.acquire(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{
		CycleID:   uuid.NewString(),
		StartedAt: start,
		Fields:    fields,
		Duration:  c.now().Sub(start),
	}
	c.logFields(res)
	return res
}

// acquire runs one source under its own deadline. The source goroutine is
// abandoned on timeout; its buffered channel lets it exit on its own.
func (c *Collector) acquire(ctx context.Context, src source.Source) source.Field {
	if c.opts.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SourceTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return source.Unavailable(src, err)
	}

	done := make(chan source.Field, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- source.Unavailable(src, fmt.Errorf("panic: %v", r))
			}
		}()
		done <- c.normalize(src, src.Acquire(ctx))
	}()

	select {
	case f := <-done:
		return f
	case <-ctx.Done():
		return source.Unavailable(src, fmt.Errorf("timed out: %w", ctx.Err()))
	}
}

// normalize enforces the field contract on whatever a source returned.
func (c *Collector) normalize(src source.Source, f source.Field) source.Field {
	f.Name = src.Name()
	if f.Value == "" {
		return source.Unavailable(src, errors.New("empty value"))
	}
	if f.Status == "" {
		f.Status = source.StatusOK
	}
	return f
}

func (c *Collector) logFields(res Result) {
	for _, f := range res.Fields {
		switch f.Status {
		case source.StatusOK:
			c.logger.Debug("metric acquired",
				zap.String("cycle_id", res.CycleID),
				zap.String("metric", f.Name),
				zap.String("value", f.Value),
			)
		default:
			c.logger.Warn("metric not fully acquired",
				zap.String("cycle_id", res.CycleID),
				zap.String("metric", f.Name),
				zap.String("status", string(f.Status)),
				zap.String("value", f.Value),
				zap.Error(f.Err),
			)
		}
	}
}
