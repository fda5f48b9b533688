// Package transport delivers assembled frames to the display endpoint.
// Every Send opens the endpoint, writes one whole frame and releases the
// endpoint again; nothing is held between cycles and nothing is retried here.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/hostpanel/internal/frame"
)

var (
	// ErrTransport is matched by every *Error.
	ErrTransport = errors.New("transport failure")
	// ErrTimeout reports an endpoint that did not complete in time.
	ErrTimeout = errors.New("timed out")
)

// Sink delivers one frame per call.
type Sink interface {
	Send(ctx context.Context, f frame.Frame) error
	// Endpoint identifies the destination for logs, e.g. "serial:/dev/ttyACM0".
	Endpoint() string
}

// Error reports an endpoint that could not be opened, written or closed.
// A frame is either fully delivered or reported as an Error.
type Error struct {
	Endpoint string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTransport }

// Attempt records one delivery try.
type Attempt struct {
	Endpoint string
	Bytes    int
	Retry    int
	Duration time.Duration
	Err      error
}

// OK reports whether the attempt delivered the frame.
func (a Attempt) OK() bool { return a.Err == nil }
