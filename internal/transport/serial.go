package transport

import (
	"context"
	"io"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/HerbHall/hostpanel/internal/frame"
)

// OpenFunc opens a serial device at the given baud rate.
type OpenFunc func(device string, baudRate int) (io.WriteCloser, error)

func openSerial(device string, baudRate int) (io.WriteCloser, error) {
	return serial.Open(device, &serial.Mode{BaudRate: baudRate})
}

// SerialConfig identifies the serial endpoint.
type SerialConfig struct {
	Device       string
	BaudRate     int
	WriteTimeout time.Duration
}

// SerialSink writes frames to a serial device, one open-write-close per frame.
type SerialSink struct {
	cfg    SerialConfig
	open   OpenFunc
	logger *zap.Logger
}

// Compile-time guard.
var _ Sink = (*SerialSink)(nil)

// NewSerialSink creates a sink for cfg.Device.
func NewSerialSink(cfg SerialConfig, logger *zap.Logger) *SerialSink {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 115200
	}
	return &SerialSink{cfg: cfg, open: openSerial, logger: logger}
}

// WithOpener replaces how the device is opened.
func (s *SerialSink) WithOpener(open OpenFunc) *SerialSink {
	s.open = open
	return s
}

func (s *SerialSink) Endpoint() string { return "serial:" + s.cfg.Device }

// Send writes the frame and its terminator. ctx is only consulted before the
// device is opened: once writing starts it runs to completion or to the
// write timeout, so a stop request never leaves a half-written line.
func (s *SerialSink) Send(ctx context.Context, f frame.Frame) error {
	if err := ctx.Err(); err != nil {
		return &Error{Endpoint: s.Endpoint(), Op: "open", Err: err}
	}

	port, err := s.open(s.cfg.Device, s.cfg.BaudRate)
	if err != nil {
		return &Error{Endpoint: s.Endpoint(), Op: "open", Err: err}
	}

	payload := f.Bytes()
	done := make(chan error, 1)
	go func() {
		done <- writeFull(port, payload)
	}()

	var timeout <-chan time.Time
	if s.cfg.WriteTimeout > 0 {
		timer := time.NewTimer(s.cfg.WriteTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case writeErr := <-done:
		closeErr := port.Close()
		if writeErr != nil {
			return &Error{Endpoint: s.Endpoint(), Op: "write", Err: writeErr}
		}
		if closeErr != nil {
			return &Error{Endpoint: s.Endpoint(), Op: "close", Err: closeErr}
		}
		s.logger.Debug("frame written",
			zap.String("endpoint", s.Endpoint()),
			zap.Int("bytes", len(payload)),
		)
		return nil

	case <-timeout:
		// Closing the port unblocks the pending write.
		_ = port.Close()
		return &Error{Endpoint: s.Endpoint(), Op: "write", Err: ErrTimeout}
	}
}

// writeFull writes all of p, looping over short writes.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
