package frame

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, time.January, 3, 9, 5, 42, 0, time.UTC)

func referenceValues() []string {
	return []string{"OK", "FAIL", "55", "62", "12", "30", "41", "198.51.X.X", "14"}
}

func TestAssemble_ReferenceScenario(t *testing.T) {
	a := NewAssembler(MetricFields, time.UTC)

	f, err := a.Assemble(referenceValues(), "YES", fixedNow)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	want := "OK-FAIL-55-62-12-30-41-198.51.X.X-14-YES-09:05 03 JAN"
	if got := f.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := string(f.Bytes()); got != want+"\n" {
		t.Errorf("Bytes() = %q, want %q", got, want+"\n")
	}
}

func TestAssemble_FieldCount(t *testing.T) {
	a := NewAssembler(MetricFields, time.UTC)
	inputs := [][]string{
		referenceValues(),
		{"FAIL", "FAIL", "NA", "NA", "NA", "NA", "NA", "0.0.0.0", "NA"},
		{"OK", "OK", "99", "100", "100", "0", "100", "10.0.X.X", "999"},
	}

	for _, in := range inputs {
		f, err := a.Assemble(in, "NO", fixedNow)
		if err != nil {
			t.Fatalf("Assemble(%v) error = %v", in, err)
		}
		got := len(strings.Split(f.String(), Delimiter))
		if got != MetricFields+TrailingFields {
			t.Errorf("frame %q has %d fields, want %d", f, got, MetricFields+TrailingFields)
		}
		if strings.HasSuffix(f.String(), Delimiter) {
			t.Errorf("frame %q has trailing delimiter", f)
		}
	}
}

func TestAssemble_Idempotent(t *testing.T) {
	a := NewAssembler(MetricFields, time.UTC)
	f1, err1 := a.Assemble(referenceValues(), "YES", fixedNow)
	f2, err2 := a.Assemble(referenceValues(), "YES", fixedNow)
	if err1 != nil || err2 != nil {
		t.Fatalf("Assemble() errors = %v, %v", err1, err2)
	}
	if string(f1.Bytes()) != string(f2.Bytes()) {
		t.Errorf("frames differ: %q vs %q", f1.Bytes(), f2.Bytes())
	}
}

func TestAssemble_FormatErrors(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		flag   string
	}{
		{"too few", referenceValues()[:8], "YES"},
		{"too many", append(referenceValues(), "7"), "YES"},
		{"delimiter in value", []string{"OK", "FAIL", "-5", "62", "12", "30", "41", "198.51.X.X", "14"}, "YES"},
		{"empty value", []string{"OK", "", "55", "62", "12", "30", "41", "198.51.X.X", "14"}, "YES"},
		{"delimiter in flag", referenceValues(), "Y-S"},
		{"empty flag", referenceValues(), ""},
		{"newline", []string{"OK", "FAIL", "55\n", "62", "12", "30", "41", "198.51.X.X", "14"}, "YES"},
		{"non-ascii flag", referenceValues(), "YES°"},
	}

	a := NewAssembler(MetricFields, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Assemble(tt.values, tt.flag, fixedNow)
			if err == nil {
				t.Fatal("Assemble() error = nil, want FormatError")
			}
			if !errors.Is(err, ErrFormat) {
				t.Errorf("errors.Is(err, ErrFormat) = false for %v", err)
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Errorf("errors.As(*FormatError) = false for %v", err)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	tests := []struct {
		name string
		loc  *time.Location
		now  time.Time
		want string
	}{
		{"morning", time.UTC, fixedNow, "09:05 03 JAN"},
		{"24 hour", time.UTC, time.Date(2026, time.October, 18, 23, 59, 0, 0, time.UTC), "23:59 18 OCT"},
		{"midnight", time.UTC, time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC), "00:00 01 DEC"},
		{"converted to location", tokyo, time.Date(2026, time.May, 31, 20, 30, 0, 0, time.UTC), "05:30 01 JUN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewAssembler(MetricFields, tt.loc).FormatTimestamp(tt.now); got != tt.want {
				t.Errorf("FormatTimestamp() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFrame_FieldsCopy(t *testing.T) {
	f, err := NewAssembler(MetricFields, time.UTC).Assemble(referenceValues(), "YES", fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	fields := f.Fields()
	fields[0] = "tampered"
	if f.Fields()[0] != "OK" {
		t.Error("Fields() exposed internal slice")
	}
}
