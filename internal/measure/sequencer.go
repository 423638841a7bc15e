package measure

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"lcrbench/internal/instrument"
)

// TestTypeLsRs tags series inductance/resistance records.
const TestTypeLsRs = "Ls-Rs"

// timestampLayout matches the persisted text form: local time, second precision.
const timestampLayout = "2006-01-02 15:04:05"

// Record is one measurement result as it is persisted and mirrored.
// Values are fixed 3-significant-digit scientific notation strings so
// precision loss and formatting are decided at the source, once.
type Record struct {
	Timestamp  string `json:"timestamp"`
	SampleName string `json:"sample_name"`
	TestType   string `json:"test_type"`
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Tester     string `json:"tester"`
	Version    string `json:"version,omitempty"`
}

// Row returns the positional tuple form consumed by sinks and the validator.
func (r Record) Row() []string {
	row := []string{r.Timestamp, r.SampleName, r.TestType, r.Primary, r.Secondary, r.Tester}
	if r.Version != "" {
		row = append(row, r.Version)
	}
	return row
}

// Rows converts a batch of records to its sink tuple form.
func Rows(records []Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.Row())
	}
	return rows
}

// FormatValue renders a measured quantity in the persisted notation,
// e.g. 0.0001234 -> "1.234e-04".
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'e', 3, 64)
}

// Meter is the driver surface the sequencer needs.
type Meter interface {
	SetMode(ctx context.Context, mode instrument.Mode) bool
	Measure(ctx context.Context, mode instrument.Mode, maxRetries int) (instrument.Reading, error)
}

// Sequencer runs one Ls-Rs sampling pass against an already-connected,
// already-configured meter and turns it into result records.
type Sequencer struct {
	retries int
	version string
	logger  *zap.Logger
	now     func() time.Time
}

// NewSequencer returns a sequencer with the given retry budget and an
// optional version tag appended to every record.
func NewSequencer(retries int, version string, logger *zap.Logger) *Sequencer {
	if retries < 0 {
		retries = instrument.DefaultRetries
	}
	return &Sequencer{
		retries: retries,
		version: version,
		logger:  logger,
		now:     time.Now,
	}
}

// Run performs one Ls-Rs measurement for the sample/tester pair. A
// single timestamp covers the whole pass. Terminal measurement failure
// (retry budget spent) still yields the zero-valued record so the
// operator sees a batch the validator will block; any other driver
// error propagates to the caller, which remains responsible for
// closing the meter.
func (s *Sequencer) Run(ctx context.Context, meter Meter, sampleName, testerName string) ([]Record, error) {
	timestamp := s.now().Format(timestampLayout)
	s.logger.Info("starting Ls-Rs measurement",
		zap.String("sample", sampleName),
		zap.String("tester", testerName))

	// The instrument may have been left in another mode since the last run.
	if !meter.SetMode(ctx, instrument.ModeSeriesLR) {
		s.logger.Warn("series L/R mode unconfirmed before measurement",
			zap.String("sample", sampleName))
	}

	reading, err := meter.Measure(ctx, instrument.ModeSeriesLR, s.retries)
	if err != nil {
		if !errors.Is(err, instrument.ErrMeasurementFailed) {
			return nil, err
		}
		s.logger.Warn("measurement terminally failed, recording zero values",
			zap.String("sample", sampleName),
			zap.Error(err))
	}

	record := Record{
		Timestamp:  timestamp,
		SampleName: sampleName,
		TestType:   TestTypeLsRs,
		Primary:    FormatValue(reading.Primary),
		Secondary:  FormatValue(reading.Secondary),
		Tester:     testerName,
		Version:    s.version,
	}

	s.logger.Debug("measurement recorded",
		zap.String("sample", sampleName),
		zap.String("inductance", record.Primary),
		zap.String("resistance", record.Secondary))
	return []Record{record}, nil
}
