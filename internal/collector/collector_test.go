package collector

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/hostpanel/internal/source"
	"github.com/HerbHall/hostpanel/internal/testutil"
)

// stubSource returns a fixed value after an optional delay.
type stubSource struct {
	name      string
	value     string
	status    source.Status
	delay     time.Duration
	ignoreCtx bool
	panics    bool
	calls     atomic.Int32
}

func (s *stubSource) Name() string     { return s.name }
func (s *stubSource) Sentinel() string { return "NA" }

func (s *stubSource) Acquire(ctx context.Context) source.Field {
	s.calls.Add(1)
	if s.panics {
		panic("sensor driver exploded")
	}
	if s.delay > 0 {
		if s.ignoreCtx {
			time.Sleep(s.delay)
		} else {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return source.Unavailable(s, ctx.Err())
			}
		}
	}
	status := s.status
	if status == "" {
		status = source.StatusOK
	}
	return source.Field{Name: s.name, Value: s.value, Status: status}
}

func sourcesOf(stubs ...*stubSource) []source.Source {
	out := make([]source.Source, len(stubs))
	for i, s := range stubs {
		out[i] = s
	}
	return out
}

func TestCollect_PreservesOrderUnderReversedCompletion(t *testing.T) {
	stubs := []*stubSource{
		{name: "a", value: "1", delay: 60 * time.Millisecond},
		{name: "b", value: "2", delay: 40 * time.Millisecond},
		{name: "c", value: "3", delay: 20 * time.Millisecond},
		{name: "d", value: "4"},
	}
	c := New(sourcesOf(stubs...), Options{CycleTimeout: time.Second, SourceTimeout: time.Second}, zap.NewNop())

	res := c.Collect(context.Background())

	assert.Equal(t, []string{"1", "2", "3", "4"}, res.Values())
	for i, f := range res.Fields {
		assert.Equal(t, stubs[i].name, f.Name)
	}
}

func TestCollect_RunsConcurrently(t *testing.T) {
	stubs := []*stubSource{
		{name: "a", value: "1", delay: 150 * time.Millisecond},
		{name: "b", value: "2", delay: 150 * time.Millisecond},
		{name: "c", value: "3", delay: 150 * time.Millisecond},
	}
	c := New(sourcesOf(stubs...), Options{CycleTimeout: 2 * time.Second, SourceTimeout: time.Second}, zap.NewNop())

	start := time.Now()
	c.Collect(context.Background())
	elapsed := time.Since(start)

	// Sequential would be 450ms.
	assert.Less(t, elapsed, 400*time.Millisecond)
}

func TestCollect_SourceTimeout(t *testing.T) {
	slow := &stubSource{name: "ping_avg", value: "14", delay: 5 * time.Second, ignoreCtx: true}
	fast := &stubSource{name: "cpu_temp", value: "55"}
	c := New(sourcesOf(fast, slow), Options{CycleTimeout: time.Second, SourceTimeout: 100 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	res := c.Collect(context.Background())
	elapsed := time.Since(start)

	require.Len(t, res.Fields, 2)
	assert.Equal(t, "55", res.Fields[0].Value)
	assert.Equal(t, source.StatusOK, res.Fields[0].Status)
	assert.Equal(t, "NA", res.Fields[1].Value)
	assert.Equal(t, source.StatusUnavailable, res.Fields[1].Status)
	assert.Error(t, res.Fields[1].Err)
	assert.Less(t, elapsed, time.Second, "cycle must finish within its timeout")
}

func TestCollect_CycleTimeout(t *testing.T) {
	stubs := []*stubSource{
		{name: "a", value: "1", delay: 5 * time.Second, ignoreCtx: true},
		{name: "b", value: "2", delay: 5 * time.Second},
	}
	c := New(sourcesOf(stubs...), Options{CycleTimeout: 100 * time.Millisecond, SourceTimeout: time.Minute}, zap.NewNop())

	start := time.Now()
	res := c.Collect(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	for _, f := range res.Fields {
		assert.Equal(t, source.StatusUnavailable, f.Status)
		assert.Equal(t, "NA", f.Value)
	}
}

func TestCollect_RecoversPanics(t *testing.T) {
	stubs := []*stubSource{
		{name: "gpu_usage", panics: true},
		{name: "mem_usage", value: "41"},
	}
	c := New(sourcesOf(stubs...), Options{CycleTimeout: time.Second, SourceTimeout: time.Second}, testutil.Logger())

	res := c.Collect(context.Background())

	assert.Equal(t, []string{"NA", "41"}, res.Values())
	assert.Equal(t, source.StatusUnavailable, res.Fields[0].Status)
	assert.ErrorContains(t, res.Fields[0].Err, "panic")
}

func TestCollect_EmptyValueBecomesSentinel(t *testing.T) {
	c := New(sourcesOf(&stubSource{name: "x", value: ""}), Options{}, zap.NewNop())

	res := c.Collect(context.Background())

	assert.Equal(t, "NA", res.Fields[0].Value)
	assert.Equal(t, source.StatusUnavailable, res.Fields[0].Status)
}

func TestCollect_NoRetries(t *testing.T) {
	s := &stubSource{name: "a", value: "1", status: source.StatusUnavailable}
	c := New(sourcesOf(s), Options{}, zap.NewNop())

	c.Collect(context.Background())

	assert.Equal(t, int32(1), s.calls.Load())
}

func TestCollect_SerialLimit(t *testing.T) {
	stubs := []*stubSource{
		{name: "a", value: "1", delay: 10 * time.Millisecond},
		{name: "b", value: "2", delay: 10 * time.Millisecond},
		{name: "c", value: "3"},
	}
	c := New(sourcesOf(stubs...), Options{MaxParallel: 1, CycleTimeout: time.Second, SourceTimeout: time.Second}, zap.NewNop())

	assert.Equal(t, []string{"1", "2", "3"}, c.Collect(context.Background()).Values())
}

func TestCollect_CancelledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(sourcesOf(&stubSource{name: "a", value: "1"}), Options{CycleTimeout: time.Second}, zap.NewNop())

	res := c.Collect(ctx)

	assert.Equal(t, source.StatusUnavailable, res.Fields[0].Status)
}

func TestResult_Accessors(t *testing.T) {
	c := New(sourcesOf(
		&stubSource{name: "cpu_temp", value: "55"},
		&stubSource{name: "gpu_usage", value: "0", status: source.StatusDegraded},
	), Options{}, zap.NewNop())

	res := c.Collect(context.Background())

	_, err := uuid.Parse(res.CycleID)
	assert.NoError(t, err)
	assert.Equal(t, map[string]source.Status{
		"cpu_temp":  source.StatusOK,
		"gpu_usage": source.StatusDegraded,
	}, res.Statuses())

	f, ok := res.Field("gpu_usage")
	require.True(t, ok)
	assert.Equal(t, "0", f.Value)
	_, ok = res.Field("missing")
	assert.False(t, ok)
	assert.GreaterOrEqual(t, res.Duration, time.Duration(0))
}
