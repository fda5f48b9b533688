package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Response is a canned result for one command.
type Response struct {
	Output []byte
	Err    error
	Delay  time.Duration
}

// Runner is a scripted command runner. Responses are keyed by the command
// name; unknown commands fail like a missing binary.
type Runner struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []string
}

// NewRunner returns an empty Runner.
func NewRunner() *Runner {
	return &Runner{responses: make(map[string]Response)}
}

// On registers the response for name and returns the runner for chaining.
func (r *Runner) On(name string, resp Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[name] = resp
	return r
}

// Run records the call and replays the registered response. A Delay is
// interrupted by ctx.
func (r *Runner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	resp, ok := r.responses[name]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp.Output, resp.Err
}

// Calls returns the command lines run so far.
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}
