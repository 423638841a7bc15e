package instrument

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Instrument command vocabulary.
const (
	cmdIdentity        = "*IDN?"
	cmdModeSet         = "FUNCtion:IMPedance:TYPE"
	cmdModeQuery       = "FUNCtion:IMPedance:TYPE?"
	cmdCircuitParallel = "CALCulate:IMPedance:CIRcuit PARallel"
	cmdFrequency       = "FREQuency:CW"
	cmdVoltage         = "VOLT"
	cmdTrigger         = "INIT:IMM"
	cmdFetch           = "FETCH?"
	cmdResistance      = "MEASure:RESistance?"
)

// Readings above this magnitude (in base SI units) are garbage, not physics.
const maxPlausibleValue = 1e6

// DefaultRetries is the retry budget on top of the first attempt.
const DefaultRetries = 3

var (
	// ErrNotConnected is returned by operations requiring an open session.
	ErrNotConnected = errors.New("instrument: not connected")
	// ErrMalformedReply marks a fetch reply that failed the strict two-field parse.
	ErrMalformedReply = errors.New("instrument: malformed reply")
	// ErrValueOutOfRange marks a reading outside the plausible range.
	ErrValueOutOfRange = errors.New("instrument: value out of range")
	// ErrMeasurementFailed is the terminal error after the retry budget is spent.
	ErrMeasurementFailed = errors.New("instrument: measurement failed after retries")
)

// Mode selects the impedance circuit model the meter reports.
type Mode int

const (
	ModeSeriesLR Mode = iota
	ModeSeriesCR
	ModeParallelCR
)

func (m Mode) String() string {
	switch m {
	case ModeSeriesLR:
		return "Ls-Rs"
	case ModeSeriesCR:
		return "Cs-Rs"
	case ModeParallelCR:
		return "Cp-Rp"
	default:
		return "unknown"
	}
}

func (m Mode) commandArg() string {
	if m == ModeSeriesLR {
		return "L"
	}
	return "C"
}

// matchesReply reports whether a mode-query reply confirms this mode.
// Series L/R is reported as either "L" or the alias "LSRS" depending on
// instrument firmware.
func (m Mode) matchesReply(reply string) bool {
	reply = strings.ToUpper(strings.TrimSpace(reply))
	switch m {
	case ModeSeriesLR:
		return reply == "L" || reply == "LSRS"
	case ModeSeriesCR, ModeParallelCR:
		return reply == "C"
	default:
		return false
	}
}

// Reading is one raw measurement in base SI units (henries/farads, ohms).
type Reading struct {
	Primary   float64
	Secondary float64
}

// Timing holds the settle/acquisition/backoff delays. The defaults are
// empirically tuned for one instrument model; retargeting another meter
// means retuning these, hence they are policy, not constants.
type Timing struct {
	ModeSettle      time.Duration `yaml:"mode_settle"`
	ConfigureSettle time.Duration `yaml:"configure_settle"`
	Acquisition     time.Duration `yaml:"acquisition"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
}

// DefaultTiming returns the tuned delays for the bench meter.
func DefaultTiming() Timing {
	return Timing{
		ModeSettle:      100 * time.Millisecond,
		ConfigureSettle: 200 * time.Millisecond,
		Acquisition:     500 * time.Millisecond,
		RetryBackoff:    time.Second,
	}
}

// Meter drives an LCR meter over a Transport. It owns the transport for
// the lifetime of one measurement session: Connect, Configure, measure
// one or more times, Close. Not safe for concurrent command sequences;
// the instrument itself is a single stateful resource.
type Meter struct {
	resource string
	timeout  time.Duration
	open     Opener
	timing   Timing
	logger   *zap.Logger

	tr Transport
}

// NewMeter builds a driver for the given resource. The transport is not
// opened until Connect.
func NewMeter(open Opener, resource string, timeout time.Duration, timing Timing, logger *zap.Logger) *Meter {
	return &Meter{
		resource: resource,
		timeout:  timeout,
		open:     open,
		timing:   timing,
		logger:   logger,
	}
}

// Connect opens the transport and confirms the link with an identity
// query. Hardware faults are expected here, so failures come back as
// errors rather than panics and the caller decides how to surface them.
func (m *Meter) Connect(ctx context.Context) error {
	tr, err := m.open(m.resource, m.timeout)
	if err != nil {
		return fmt.Errorf("instrument: connect %s: %w", m.resource, err)
	}

	identity, err := tr.Query(ctx, cmdIdentity)
	if err != nil {
		tr.Close()
		return fmt.Errorf("instrument: identity query on %s: %w", m.resource, err)
	}

	m.tr = tr
	m.logger.Info("connected to instrument",
		zap.String("resource", m.resource),
		zap.String("identity", identity))
	return nil
}

// Configure writes frequency and voltage set-points and waits for them
// to settle. Fails closed when the session is not open.
func (m *Meter) Configure(ctx context.Context, frequencyHz, voltage float64) error {
	if m.tr == nil {
		return ErrNotConnected
	}

	if err := m.tr.Write(ctx, fmt.Sprintf("%s %g", cmdFrequency, frequencyHz)); err != nil {
		return err
	}
	if err := m.tr.Write(ctx, fmt.Sprintf("%s %g", cmdVoltage, voltage)); err != nil {
		return err
	}
	if err := m.wait(ctx, m.timing.ConfigureSettle); err != nil {
		return err
	}

	m.logger.Debug("instrument configured",
		zap.Float64("frequency_hz", frequencyHz),
		zap.Float64("voltage_v", voltage))
	return nil
}

// SetMode selects the impedance mode and confirms it with a read-back.
// Mode changes are neither instantaneous nor reliably synchronous with
// the write, hence the settle delay and the explicit query. Returns
// true only on a confirmed match.
func (m *Meter) SetMode(ctx context.Context, mode Mode) bool {
	if m.tr == nil {
		m.logger.Warn("set mode on closed instrument", zap.String("mode", mode.String()))
		return false
	}

	if err := m.tr.Write(ctx, fmt.Sprintf("%s %s", cmdModeSet, mode.commandArg())); err != nil {
		m.logger.Warn("mode select failed", zap.String("mode", mode.String()), zap.Error(err))
		return false
	}
	if mode == ModeParallelCR {
		if err := m.tr.Write(ctx, cmdCircuitParallel); err != nil {
			m.logger.Warn("circuit topology select failed", zap.Error(err))
			return false
		}
	}
	if err := m.wait(ctx, m.timing.ModeSettle); err != nil {
		return false
	}

	reply, err := m.tr.Query(ctx, cmdModeQuery)
	if err != nil {
		m.logger.Warn("mode query failed", zap.String("mode", mode.String()), zap.Error(err))
		return false
	}
	if !mode.matchesReply(reply) {
		m.logger.Warn("mode read-back mismatch",
			zap.String("requested", mode.String()),
			zap.String("reported", reply))
		return false
	}
	return true
}

// Measure triggers and fetches one reading, retrying on malformed or
// implausible replies. maxRetries is the budget on top of the first
// attempt; the backoff between attempts is fixed, not exponential. On
// exhaustion it returns the zero Reading together with
// ErrMeasurementFailed so the failure is explicit while callers that
// only look at the values still get a record instead of a crash.
func (m *Meter) Measure(ctx context.Context, mode Mode, maxRetries int) (Reading, error) {
	if m.tr == nil {
		return Reading{}, ErrNotConnected
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.wait(ctx, m.timing.RetryBackoff); err != nil {
				return Reading{}, err
			}
			// A failed attempt may have left the instrument in an
			// indeterminate mode; re-assert before retrying.
			if !m.SetMode(ctx, mode) {
				m.logger.Warn("mode re-assert unconfirmed before retry",
					zap.Int("attempt", attempt+1))
			}
		}

		reading, err := m.fetchOnce(ctx, mode)
		if err == nil {
			return reading, nil
		}
		if ctx.Err() != nil {
			return Reading{}, ctx.Err()
		}
		lastErr = err
		m.logger.Warn("measurement attempt failed",
			zap.String("mode", mode.String()),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries+1),
			zap.Error(err))
	}

	m.logger.Error("measurement failed, retry budget exhausted",
		zap.String("mode", mode.String()),
		zap.Int("attempts", maxRetries+1),
		zap.Error(lastErr))
	return Reading{}, fmt.Errorf("%w: %v", ErrMeasurementFailed, lastErr)
}

func (m *Meter) fetchOnce(ctx context.Context, mode Mode) (Reading, error) {
	if err := m.tr.Write(ctx, cmdTrigger); err != nil {
		return Reading{}, err
	}
	// Let the instrument finish its internal integration before fetching.
	if err := m.wait(ctx, m.timing.Acquisition); err != nil {
		return Reading{}, err
	}
	reply, err := m.tr.Query(ctx, cmdFetch)
	if err != nil {
		return Reading{}, err
	}
	return parseReading(reply)
}

// MeasureResistance performs a 4-wire resistance measurement.
func (m *Meter) MeasureResistance(ctx context.Context) (float64, error) {
	if m.tr == nil {
		return 0, ErrNotConnected
	}
	if err := m.tr.Write(ctx, cmdResistance); err != nil {
		return 0, err
	}
	if err := m.wait(ctx, m.timing.ModeSettle); err != nil {
		return 0, err
	}
	reply, err := m.tr.Read(ctx)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedReply, reply)
	}
	return value, nil
}

// Close releases the transport. Idempotent and safe regardless of
// whether Connect succeeded; must run on every exit path so the
// OS-level handle to the instrument bus is not leaked.
func (m *Meter) Close() error {
	if m.tr == nil {
		return nil
	}
	err := m.tr.Close()
	m.tr = nil
	m.logger.Debug("instrument connection closed", zap.String("resource", m.resource))
	return err
}

// parseReading applies the strict two-field decimal parse to a fetch
// reply. Extra fields beyond the first two are ignored.
func parseReading(reply string) (Reading, error) {
	fields := strings.Split(strings.TrimSpace(reply), ",")
	if len(fields) < 2 {
		return Reading{}, fmt.Errorf("%w: %q", ErrMalformedReply, reply)
	}

	primary, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: primary %q", ErrMalformedReply, fields[0])
	}
	secondary, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: secondary %q", ErrMalformedReply, fields[1])
	}

	if primary < 0 || primary > maxPlausibleValue {
		return Reading{}, fmt.Errorf("%w: primary %g", ErrValueOutOfRange, primary)
	}
	if secondary < 0 || secondary > maxPlausibleValue {
		return Reading{}, fmt.Errorf("%w: secondary %g", ErrValueOutOfRange, secondary)
	}

	return Reading{Primary: primary, Secondary: secondary}, nil
}

func (m *Meter) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
