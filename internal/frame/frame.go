// Package frame composes metric values into the single delimited status line
// understood by the display device:
//
//	OK-FAIL-55-62-12-30-41-198.51.X.X-14-YES-09:05 03 JAN
package frame

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// Delimiter separates fields on the wire.
	Delimiter = "-"
	// Terminator ends every frame on the wire.
	Terminator = "\n"
	// TimestampLayout renders as HH:MM DD MON once upper-cased.
	TimestampLayout = "15:04 02 Jan"
	// MetricFields is the number of metric values in the reference layout:
	// two disks, cpu/gpu temperature, cpu/gpu/memory usage, masked IP, ping.
	MetricFields = 9
	// TrailingFields are the connectivity flag and the timestamp.
	TrailingFields = 2
)

// ErrFormat is matched by every FormatError.
var ErrFormat = errors.New("frame format violation")

// FormatError reports a frame invariant violation. It signals a bug (a
// sentinel or source value colliding with the wire format), not a runtime
// condition.
type FormatError struct {
	Index  int
	Value  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("frame: %s", e.Reason)
	}
	return fmt.Sprintf("frame: field %d (%q): %s", e.Index, e.Value, e.Reason)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// Frame is one assembled status line.
type Frame struct {
	fields []string
}

// Fields returns a copy of the fields in wire order.
func (f Frame) Fields() []string {
	out := make([]string, len(f.fields))
	copy(out, f.fields)
	return out
}

// String returns the joined line without terminator.
func (f Frame) String() string {
	return strings.Join(f.fields, Delimiter)
}

// Bytes returns the wire encoding: the line plus terminator.
func (f Frame) Bytes() []byte {
	return []byte(f.String() + Terminator)
}

// Assembler validates and joins metric values.
type Assembler struct {
	expected int
	loc      *time.Location
}

// NewAssembler returns an assembler expecting exactly expected metric
// values, rendering timestamps in loc (time.Local when nil).
func NewAssembler(expected int, loc *time.Location) *Assembler {
	if loc == nil {
		loc = time.Local
	}
	return &Assembler{expected: expected, loc: loc}
}

// FormatTimestamp renders now as "HH:MM DD MON" in the assembler's location.
func (a *Assembler) FormatTimestamp(now time.Time) string {
	return strings.ToUpper(now.In(a.loc).Format(TimestampLayout))
}

// Assemble builds the frame from ordered metric values, the connectivity
// flag and the timestamp. Identical inputs always produce identical frames.
func (a *Assembler) Assemble(values []string, flag string, now time.Time) (Frame, error) {
	if len(values) != a.expected {
		return Frame{}, &FormatError{
			Index:  -1,
			Reason: fmt.Sprintf("got %d metric values, want %d", len(values), a.expected),
		}
	}

	fields := make([]string, 0, len(values)+TrailingFields)
	fields = append(fields, values...)
	fields = append(fields, flag, a.FormatTimestamp(now))

	for i, v := range fields {
		if err := checkField(i, v); err != nil {
			return Frame{}, err
		}
	}
	return Frame{fields: fields}, nil
}

func checkField(i int, v string) error {
	switch {
	case v == "":
		return &FormatError{Index: i, Value: v, Reason: "empty field"}
	case strings.Contains(v, Delimiter):
		return &FormatError{Index: i, Value: v, Reason: "contains delimiter " + Delimiter}
	case strings.ContainsAny(v, "\r\n"):
		return &FormatError{Index: i, Value: v, Reason: "contains line break"}
	}
	for _, r := range v {
		if r > 0x7e || r < 0x20 {
			return &FormatError{Index: i, Value: v, Reason: "non-printable or non-ASCII character"}
		}
	}
	return nil
}
