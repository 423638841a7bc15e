package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"lcrbench/internal/config"
	"lcrbench/internal/instrument"
	"lcrbench/internal/models"
	"lcrbench/internal/ws"
)

type scriptTransport struct {
	mu         sync.Mutex
	modeReply  string
	fetchReply string
	onFetch    func()
	closed     bool
}

func (t *scriptTransport) Write(ctx context.Context, cmd string) error { return nil }

func (t *scriptTransport) Query(ctx context.Context, cmd string) (string, error) {
	switch cmd {
	case "*IDN?":
		return "FAKE,LCR-1,0,1.0", nil
	case "FUNCtion:IMPedance:TYPE?":
		return t.modeReply, nil
	case "FETCH?":
		if t.onFetch != nil {
			t.onFetch()
		}
		return t.fetchReply, nil
	}
	return "", errors.New("unexpected query " + cmd)
}

func (t *scriptTransport) Read(ctx context.Context) (string, error) { return "", nil }

func (t *scriptTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

type fakeSampleStore struct {
	mu    sync.Mutex
	ids   map[string]int64
	names []string
}

func (f *fakeSampleStore) GetOrCreate(ctx context.Context, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ids == nil {
		f.ids = make(map[string]int64)
	}
	if id, ok := f.ids[name]; ok {
		return id, nil
	}
	id := int64(len(f.ids) + 1)
	f.ids[name] = id
	f.names = append(f.names, name)
	return id, nil
}

func (f *fakeSampleStore) Names(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...), nil
}

type fakeMeasurementStore struct {
	mu       sync.Mutex
	inserted []models.Measurement
	recent   []models.RecentResult
}

func (f *fakeMeasurementStore) Insert(ctx context.Context, m *models.Measurement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = int64(len(f.inserted) + 1)
	f.inserted = append(f.inserted, *m)
	return nil
}

func (f *fakeMeasurementStore) Recent(ctx context.Context, days, limit int) ([]models.RecentResult, error) {
	return f.recent, nil
}

type fakeRecentCache struct {
	mu          sync.Mutex
	cached      []models.RecentResult
	hasValue    bool
	invalidated int
	sets        int
}

func (f *fakeRecentCache) Get(ctx context.Context) ([]models.RecentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasValue {
		return nil, errors.New("cache miss")
	}
	return f.cached, nil
}

func (f *fakeRecentCache) Set(ctx context.Context, results []models.RecentResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached = results
	f.hasValue = true
	f.sets++
	return nil
}

func (f *fakeRecentCache) Invalidate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasValue = false
	f.invalidated++
	return nil
}

type fakeSheets struct {
	mu   sync.Mutex
	rows [][]string
}

func (f *fakeSheets) Enabled() bool { return true }

func (f *fakeSheets) AppendRows(ctx context.Context, rows [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	return nil
}

type fakeWorkspace struct {
	mu      sync.Mutex
	upserts map[string]float64
}

func (f *fakeWorkspace) Enabled() bool { return true }

func (f *fakeWorkspace) UpsertSampleResistance(ctx context.Context, sample string, resistance float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upserts == nil {
		f.upserts = make(map[string]float64)
	}
	f.upserts[sample] = resistance
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	stages []string
}

func (f *fakeEvents) Publish(event ws.RunEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, event.Stage)
}

func (f *fakeEvents) sawStage(stage string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.stages {
		if s == stage {
			return true
		}
	}
	return false
}

type benchFixture struct {
	svc       *BenchService
	samples   *fakeSampleStore
	store     *fakeMeasurementStore
	cache     *fakeRecentCache
	sheets    *fakeSheets
	workspace *fakeWorkspace
	events    *fakeEvents
}

func newBenchFixture(t *testing.T, transport *scriptTransport, openErr error) *benchFixture {
	t.Helper()
	fx := &benchFixture{
		samples:   &fakeSampleStore{},
		store:     &fakeMeasurementStore{},
		cache:     &fakeRecentCache{},
		sheets:    &fakeSheets{},
		workspace: &fakeWorkspace{},
		events:    &fakeEvents{},
	}
	open := func(resource string, timeout time.Duration) (instrument.Transport, error) {
		if openErr != nil {
			return nil, openErr
		}
		return transport, nil
	}
	fx.svc = NewBenchService(BenchServiceDeps{
		Open: open,
		Defaults: config.InstrumentConfig{
			Resource:    "127.0.0.1:5025",
			Timeout:     time.Second,
			FrequencyHz: 1000,
			VoltageV:    1.0,
			Retries:     3,
		},
		Version:   "1.0.0",
		Samples:   fx.samples,
		Store:     fx.store,
		Recent:    fx.cache,
		Workspace: fx.workspace,
		Sheets:    fx.sheets,
		Events:    fx.events,
		Logger:    zap.NewNop(),
	})
	return fx
}

func TestRunMeasurementHappyPath(t *testing.T) {
	transport := &scriptTransport{modeReply: "LSRS", fetchReply: "0.000123,15.2"}
	fx := newBenchFixture(t, transport, nil)

	result, err := fx.svc.RunMeasurement(context.Background(), RunInput{
		SampleName: "SampleA",
		TesterName: "Tester1",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Report.Valid {
		t.Fatalf("expected valid report, got issues %v", result.Report.Issues)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	if result.Records[0].Primary != "1.230e-04" || result.Records[0].Secondary != "1.520e+01" {
		t.Fatalf("unexpected record values: %+v", result.Records[0])
	}

	if len(fx.store.inserted) != 1 {
		t.Fatalf("expected 1 persisted measurement, got %d", len(fx.store.inserted))
	}
	m := fx.store.inserted[0]
	if m.TestType != "Ls-Rs" || m.Inductance != "1.230e-04" || m.Resistance != "1.520e+01" {
		t.Fatalf("unexpected persisted measurement: %+v", m)
	}
	if m.AppVersion != "1.0.0" {
		t.Fatalf("version tag not persisted: %+v", m)
	}
	if fx.cache.invalidated != 1 {
		t.Fatalf("recent cache not invalidated")
	}
	if got := fx.workspace.upserts["SampleA"]; got != 15.2 {
		t.Fatalf("workspace mirror got resistance %g, want 15.2", got)
	}
	if len(fx.sheets.rows) != 1 {
		t.Fatalf("sheet mirror got %d rows, want 1", len(fx.sheets.rows))
	}
	if !fx.events.sawStage(ws.StagePersisted) {
		t.Fatal("persisted event not published")
	}
	if !transport.closed {
		t.Fatal("instrument transport not closed after run")
	}
}

func TestRunMeasurementValidationBlocksPersistence(t *testing.T) {
	// Every fetch reply is malformed: the sequencer emits the zero
	// record and the validator must block storage.
	transport := &scriptTransport{modeReply: "LSRS", fetchReply: "ERR"}
	fx := newBenchFixture(t, transport, nil)

	result, err := fx.svc.RunMeasurement(context.Background(), RunInput{
		SampleName: "SampleB",
		TesterName: "Tester1",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Report.Valid {
		t.Fatal("expected invalid report")
	}
	if len(result.Report.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %v", result.Report.Issues)
	}
	if len(fx.store.inserted) != 0 {
		t.Fatal("blocked batch must not be persisted")
	}
	if len(fx.sheets.rows) != 0 {
		t.Fatal("blocked batch must not be mirrored")
	}
	if !transport.closed {
		t.Fatal("instrument transport not closed after blocked run")
	}
}

func TestRunMeasurementConnectionFailure(t *testing.T) {
	fx := newBenchFixture(t, nil, errors.New("no route to instrument"))

	_, err := fx.svc.RunMeasurement(context.Background(), RunInput{
		SampleName: "SampleC",
		TesterName: "Tester1",
	})
	if !errors.Is(err, ErrInstrumentUnavailable) {
		t.Fatalf("expected ErrInstrumentUnavailable, got %v", err)
	}
	if !fx.events.sawStage(ws.StageFailed) {
		t.Fatal("failed event not published")
	}
}

func TestRunMeasurementSingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	transport := &scriptTransport{modeReply: "LSRS", fetchReply: "0.000123,15.2"}
	transport.onFetch = func() {
		close(started)
		<-release
	}
	fx := newBenchFixture(t, transport, nil)

	done := make(chan error, 1)
	go func() {
		_, err := fx.svc.RunMeasurement(context.Background(), RunInput{
			SampleName: "SampleD",
			TesterName: "Tester1",
		})
		done <- err
	}()

	<-started
	_, err := fx.svc.RunMeasurement(context.Background(), RunInput{
		SampleName: "SampleE",
		TesterName: "Tester1",
	})
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
}

func TestRunMeasurementRequiresNames(t *testing.T) {
	fx := newBenchFixture(t, &scriptTransport{modeReply: "LSRS", fetchReply: "1,1"}, nil)

	if _, err := fx.svc.RunMeasurement(context.Background(), RunInput{TesterName: "T"}); err == nil {
		t.Fatal("expected error for missing sample name")
	}
	if _, err := fx.svc.RunMeasurement(context.Background(), RunInput{SampleName: "S"}); err == nil {
		t.Fatal("expected error for missing tester name")
	}
}

func TestRecentResultsCacheAside(t *testing.T) {
	fx := newBenchFixture(t, &scriptTransport{}, nil)
	fx.store.recent = []models.RecentResult{{ID: 1, SampleName: "SampleA"}}

	// Default window: miss populates the cache.
	results, err := fx.svc.RecentResults(context.Background(), defaultRecentDays, defaultRecentLimit)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(results) != 1 || fx.cache.sets != 1 {
		t.Fatalf("expected cache population, got sets=%d", fx.cache.sets)
	}

	// Second default query is served from cache.
	fx.store.recent = nil
	results, err = fx.svc.RecentResults(context.Background(), defaultRecentDays, defaultRecentLimit)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(results) != 1 {
		t.Fatal("expected cached results")
	}

	// Non-default windows bypass the cache.
	if _, err := fx.svc.RecentResults(context.Background(), 30, 10); err != nil {
		t.Fatalf("recent: %v", err)
	}
	if fx.cache.sets != 1 {
		t.Fatalf("non-default query should not repopulate cache, sets=%d", fx.cache.sets)
	}
}

func TestExportCSV(t *testing.T) {
	fx := newBenchFixture(t, &scriptTransport{}, nil)
	fx.store.recent = []models.RecentResult{
		{
			ID:         1,
			CreatedAt:  time.Date(2026, 8, 25, 14, 30, 0, 0, time.Local),
			SampleName: "SampleA",
			TestType:   "Ls-Rs",
			Inductance: "1.230e-04",
			Resistance: "1.520e+01",
			Tester:     "Tester1",
			AppVersion: "1.0.0",
		},
	}

	var buf bytes.Buffer
	if err := fx.svc.ExportCSV(context.Background(), &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,created_at,sample_name") {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "SampleA") || !strings.Contains(lines[1], "1.230e-04") {
		t.Fatalf("unexpected row: %q", lines[1])
	}
}
