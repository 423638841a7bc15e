package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"lcrbench/internal/config"
	"lcrbench/internal/instrument"
	"lcrbench/internal/measure"
	"lcrbench/internal/models"
	"lcrbench/internal/ws"
)

const (
	defaultRecentDays  = 7
	defaultRecentLimit = 100
	exportLimit        = 100000
	timestampLayout    = "2006-01-02 15:04:05"
)

var (
	// ErrRunInProgress guards the single stateful instrument: at most one
	// command sequence may be in flight per handle.
	ErrRunInProgress = errors.New("service: a measurement run is already in progress")
	// ErrInstrumentUnavailable wraps connection/configuration failures.
	ErrInstrumentUnavailable = errors.New("service: instrument unavailable")
)

// SampleStore is the persistence contract for samples.
type SampleStore interface {
	GetOrCreate(ctx context.Context, sampleName string) (int64, error)
	Names(ctx context.Context) ([]string, error)
}

// MeasurementStore is the persistence contract for results.
type MeasurementStore interface {
	Insert(ctx context.Context, m *models.Measurement) error
	Recent(ctx context.Context, days, limit int) ([]models.RecentResult, error)
}

// RecentCache caches the default recent-results view.
type RecentCache interface {
	Get(ctx context.Context) ([]models.RecentResult, error)
	Set(ctx context.Context, results []models.RecentResult) error
	Invalidate(ctx context.Context) error
}

// WorkspaceMirror mirrors per-sample resistance into a document workspace.
type WorkspaceMirror interface {
	Enabled() bool
	UpsertSampleResistance(ctx context.Context, sampleName string, resistance float64) error
}

// SheetMirror appends result rows to a spreadsheet.
type SheetMirror interface {
	Enabled() bool
	AppendRows(ctx context.Context, rows [][]string) error
}

// EventPublisher pushes run progress events to listening clients.
type EventPublisher interface {
	Publish(event ws.RunEvent)
}

// RunInput carries operator-supplied parameters for one measurement
// run. Zero-valued instrument fields fall back to configured defaults.
type RunInput struct {
	Resource    string  `json:"resource"`
	FrequencyHz float64 `json:"frequency_hz"`
	VoltageV    float64 `json:"voltage_v"`
	TimeoutMS   int     `json:"timeout_ms"`
	SampleName  string  `json:"sample_name"`
	TesterName  string  `json:"tester_name"`
}

// RunResult is the outcome handed back to the presentation layer.
// Records are present even when the report is invalid so the operator
// can see exactly what was measured and why it was blocked.
type RunResult struct {
	Records []measure.Record `json:"records"`
	Report  measure.Report   `json:"report"`
}

// BenchServiceDeps wires the service collaborators. Cache, mirrors and
// events are optional.
type BenchServiceDeps struct {
	Open      instrument.Opener
	Defaults  config.InstrumentConfig
	Version   string
	Samples   SampleStore
	Store     MeasurementStore
	Recent    RecentCache
	Workspace WorkspaceMirror
	Sheets    SheetMirror
	Events    EventPublisher
	Logger    *zap.Logger
}

// BenchService orchestrates measurement runs end to end: scoped
// instrument acquisition, sequencing, validation, persistence, mirrors.
type BenchService struct {
	open      instrument.Opener
	defaults  config.InstrumentConfig
	timing    instrument.Timing
	sequencer *measure.Sequencer
	samples   SampleStore
	store     MeasurementStore
	recent    RecentCache
	workspace WorkspaceMirror
	sheets    SheetMirror
	events    EventPublisher
	logger    *zap.Logger

	runMu sync.Mutex
}

// NewBenchService builds the service.
func NewBenchService(deps BenchServiceDeps) *BenchService {
	timing := instrument.Timing{
		ModeSettle:      deps.Defaults.ModeSettle,
		ConfigureSettle: deps.Defaults.ConfigureSettle,
		Acquisition:     deps.Defaults.Acquisition,
		RetryBackoff:    deps.Defaults.RetryBackoff,
	}
	return &BenchService{
		open:      deps.Open,
		defaults:  deps.Defaults,
		timing:    timing,
		sequencer: measure.NewSequencer(deps.Defaults.Retries, deps.Version, deps.Logger),
		samples:   deps.Samples,
		store:     deps.Store,
		recent:    deps.Recent,
		workspace: deps.Workspace,
		sheets:    deps.Sheets,
		events:    deps.Events,
		logger:    deps.Logger,
	}
}

// RunMeasurement performs one Ls-Rs run for a sample/tester pair. The
// instrument handle is opened and closed inside this call on every
// path. Validation failure is not an error: the records and report come
// back and the caller decides how to surface them; nothing is persisted.
func (s *BenchService) RunMeasurement(ctx context.Context, input RunInput) (*RunResult, error) {
	input.SampleName = strings.TrimSpace(input.SampleName)
	input.TesterName = strings.TrimSpace(input.TesterName)
	if input.SampleName == "" {
		return nil, errors.New("service: sample name is required")
	}
	if input.TesterName == "" {
		return nil, errors.New("service: tester name is required")
	}

	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	s.applyDefaults(&input)
	s.publish(ws.StageStarted, input.SampleName, "measurement run started")

	meter := instrument.NewMeter(s.open, input.Resource,
		time.Duration(input.TimeoutMS)*time.Millisecond, s.timing, s.logger)

	s.publish(ws.StageConnecting, input.SampleName, "connecting to "+input.Resource)
	if err := meter.Connect(ctx); err != nil {
		s.publish(ws.StageFailed, input.SampleName, "instrument connection failed")
		return nil, fmt.Errorf("%w: %v", ErrInstrumentUnavailable, err)
	}
	defer func() {
		if err := meter.Close(); err != nil {
			s.logger.Warn("failed to close instrument", zap.Error(err))
		}
	}()

	if err := meter.Configure(ctx, input.FrequencyHz, input.VoltageV); err != nil {
		s.publish(ws.StageFailed, input.SampleName, "instrument configuration failed")
		return nil, fmt.Errorf("%w: configure: %v", ErrInstrumentUnavailable, err)
	}

	s.publish(ws.StageMeasuring, input.SampleName,
		fmt.Sprintf("measuring at %g Hz, %g V", input.FrequencyHz, input.VoltageV))
	records, err := s.sequencer.Run(ctx, meter, input.SampleName, input.TesterName)
	if err != nil {
		s.publish(ws.StageFailed, input.SampleName, "measurement sequence failed")
		return nil, err
	}

	report := measure.Validate(measure.Rows(records))
	result := &RunResult{Records: records, Report: report}
	if !report.Valid {
		s.publish(ws.StageValidation, input.SampleName,
			fmt.Sprintf("validation blocked storage: %d issue(s)", len(report.Issues)))
		s.logger.Warn("validation blocked measurement batch",
			zap.String("sample", input.SampleName),
			zap.Strings("issues", report.Issues))
		return result, nil
	}

	if err := s.persist(ctx, records); err != nil {
		s.publish(ws.StageFailed, input.SampleName, "failed to store results")
		return result, fmt.Errorf("service: persist results: %w", err)
	}
	s.mirror(ctx, records)

	s.publish(ws.StagePersisted, input.SampleName,
		fmt.Sprintf("%d record(s) stored", len(records)))
	return result, nil
}

func (s *BenchService) applyDefaults(input *RunInput) {
	if strings.TrimSpace(input.Resource) == "" {
		input.Resource = s.defaults.Resource
	}
	if input.FrequencyHz <= 0 {
		input.FrequencyHz = s.defaults.FrequencyHz
	}
	if input.VoltageV <= 0 {
		input.VoltageV = s.defaults.VoltageV
	}
	if input.TimeoutMS <= 0 {
		input.TimeoutMS = int(s.defaults.Timeout / time.Millisecond)
	}
}

func (s *BenchService) persist(ctx context.Context, records []measure.Record) error {
	for _, rec := range records {
		sampleID, err := s.samples.GetOrCreate(ctx, rec.SampleName)
		if err != nil {
			return err
		}

		createdAt, err := time.ParseInLocation(timestampLayout, rec.Timestamp, time.Local)
		if err != nil {
			createdAt = time.Now()
		}

		m := &models.Measurement{
			CreatedAt:  createdAt,
			SampleID:   sampleID,
			TestType:   rec.TestType,
			Inductance: rec.Primary,
			Resistance: rec.Secondary,
			Tester:     rec.Tester,
			AppVersion: rec.Version,
		}
		if err := s.store.Insert(ctx, m); err != nil {
			return err
		}
	}

	if s.recent != nil {
		if err := s.recent.Invalidate(ctx); err != nil {
			s.logger.Warn("failed to invalidate recent-results cache", zap.Error(err))
		}
	}
	return nil
}

// mirror pushes validated records to the optional mirrors. Failures are
// logged, never returned: mirror availability must not block a run.
func (s *BenchService) mirror(ctx context.Context, records []measure.Record) {
	if s.workspace != nil && s.workspace.Enabled() {
		for _, rec := range records {
			resistance, err := strconv.ParseFloat(rec.Secondary, 64)
			if err != nil {
				s.logger.Warn("could not parse resistance for workspace mirror",
					zap.String("value", rec.Secondary))
				continue
			}
			if err := s.workspace.UpsertSampleResistance(ctx, rec.SampleName, resistance); err != nil {
				s.logger.Warn("workspace mirror failed",
					zap.String("sample", rec.SampleName), zap.Error(err))
			}
		}
	}

	if s.sheets != nil && s.sheets.Enabled() {
		if err := s.sheets.AppendRows(ctx, measure.Rows(records)); err != nil {
			s.logger.Warn("sheet mirror failed", zap.Error(err))
		}
	}
}

// RecentResults returns the latest measurements joined with sample
// names. The default window is served cache-aside from Redis.
func (s *BenchService) RecentResults(ctx context.Context, days, limit int) ([]models.RecentResult, error) {
	if days < 0 {
		days = 0
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	isDefault := days == defaultRecentDays && limit == defaultRecentLimit

	if isDefault && s.recent != nil {
		if cached, err := s.recent.Get(ctx); err == nil {
			return cached, nil
		}
	}

	results, err := s.store.Recent(ctx, days, limit)
	if err != nil {
		return nil, err
	}

	if isDefault && s.recent != nil {
		if err := s.recent.Set(ctx, results); err != nil {
			s.logger.Debug("failed to cache recent results", zap.Error(err))
		}
	}
	return results, nil
}

// SampleNames returns the distinct known sample names.
func (s *BenchService) SampleNames(ctx context.Context) ([]string, error) {
	return s.samples.Names(ctx)
}

// ExportCSV streams all measurements as CSV, the backup path for the
// hosted database.
func (s *BenchService) ExportCSV(ctx context.Context, w io.Writer) error {
	results, err := s.store.Recent(ctx, 0, exportLimit)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "created_at", "sample_name", "test_type", "inductance", "resistance", "tester", "app_version"}); err != nil {
		return err
	}
	for _, res := range results {
		row := []string{
			strconv.FormatInt(res.ID, 10),
			res.CreatedAt.Format(timestampLayout),
			res.SampleName,
			res.TestType,
			res.Inductance,
			res.Resistance,
			res.Tester,
			res.AppVersion,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *BenchService) publish(stage, sample, message string) {
	if s.events == nil {
		return
	}
	s.events.Publish(ws.RunEvent{Stage: stage, Sample: sample, Message: message})
}
