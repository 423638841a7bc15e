package measure

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"lcrbench/internal/instrument"
)

type fakeMeter struct {
	modeOK      bool
	modeCalls   int
	reading     instrument.Reading
	measureErr  error
	measureMode instrument.Mode
}

func (f *fakeMeter) SetMode(ctx context.Context, mode instrument.Mode) bool {
	f.modeCalls++
	return f.modeOK
}

func (f *fakeMeter) Measure(ctx context.Context, mode instrument.Mode, maxRetries int) (instrument.Reading, error) {
	f.measureMode = mode
	return f.reading, f.measureErr
}

func fixedClock(seq *Sequencer) {
	seq.now = func() time.Time {
		return time.Date(2026, 8, 25, 14, 30, 0, 0, time.Local)
	}
}

func TestRunHappyPath(t *testing.T) {
	meter := &fakeMeter{modeOK: true, reading: instrument.Reading{Primary: 0.000123, Secondary: 15.2}}
	seq := NewSequencer(3, "", zap.NewNop())
	fixedClock(seq)

	records, err := seq.Run(context.Background(), meter, "SampleA", "Tester1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	want := Record{
		Timestamp:  "2026-08-25 14:30:00",
		SampleName: "SampleA",
		TestType:   TestTypeLsRs,
		Primary:    "1.230e-04",
		Secondary:  "1.520e+01",
		Tester:     "Tester1",
	}
	if rec != want {
		t.Fatalf("record mismatch:\n got %+v\nwant %+v", rec, want)
	}
	if meter.measureMode != instrument.ModeSeriesLR {
		t.Fatalf("measured in mode %s, want Ls-Rs", meter.measureMode)
	}
	if meter.modeCalls == 0 {
		t.Fatal("mode not asserted before measurement")
	}

	report := Validate(Rows(records))
	if !report.Valid {
		t.Fatalf("happy-path batch flagged invalid: %v", report.Issues)
	}
}

func TestRunTerminalFailureYieldsZeroRecord(t *testing.T) {
	meter := &fakeMeter{
		modeOK:     true,
		measureErr: fmt.Errorf("%w: malformed reply", instrument.ErrMeasurementFailed),
	}
	seq := NewSequencer(3, "", zap.NewNop())
	fixedClock(seq)

	records, err := seq.Run(context.Background(), meter, "SampleB", "Tester2")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Primary != "0.000e+00" || records[0].Secondary != "0.000e+00" {
		t.Fatalf("expected zero-valued record, got %+v", records[0])
	}

	report := Validate(Rows(records))
	if report.Valid {
		t.Fatal("zero-valued batch must be flagged invalid")
	}
	if len(report.Issues) != 2 {
		t.Fatalf("expected 2 issues (inductance and resistance), got %v", report.Issues)
	}
}

func TestRunPropagatesUnexpectedErrors(t *testing.T) {
	boom := errors.New("transport exploded")
	meter := &fakeMeter{modeOK: true, measureErr: boom}
	seq := NewSequencer(3, "", zap.NewNop())

	if _, err := seq.Run(context.Background(), meter, "SampleC", "Tester3"); !errors.Is(err, boom) {
		t.Fatalf("expected propagated error, got %v", err)
	}
}

func TestRunAppendsVersionTag(t *testing.T) {
	meter := &fakeMeter{modeOK: true, reading: instrument.Reading{Primary: 1e-5, Secondary: 3.3}}
	seq := NewSequencer(3, "1.0.0", zap.NewNop())
	fixedClock(seq)

	records, err := seq.Run(context.Background(), meter, "SampleD", "Tester4")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	row := records[0].Row()
	if len(row) != 7 {
		t.Fatalf("expected 7 positional fields with version tag, got %d: %v", len(row), row)
	}
	if row[6] != "1.0.0" {
		t.Fatalf("expected version tag in last field, got %q", row[6])
	}
}

func TestFormatValueRoundTrip(t *testing.T) {
	cases := []struct {
		value float64
		want  string
	}{
		{0.0001234, "1.234e-04"},
		{56.789, "5.679e+01"},
		{0, "0.000e+00"},
		{1.5e-4, "1.500e-04"},
	}

	for _, tc := range cases {
		got := FormatValue(tc.value)
		if got != tc.want {
			t.Errorf("FormatValue(%g) = %q, want %q", tc.value, got, tc.want)
			continue
		}
		parsed, err := strconv.ParseFloat(got, 64)
		if err != nil {
			t.Errorf("formatted value %q does not parse back: %v", got, err)
			continue
		}
		if tc.value != 0 {
			ratio := parsed / tc.value
			if ratio < 0.9995 || ratio > 1.0005 {
				t.Errorf("round-trip of %g lost precision: got %g", tc.value, parsed)
			}
		}
	}
}
