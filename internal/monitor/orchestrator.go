package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/worker-monitor/internal/alert"
	"github.com/afroash/worker-monitor/internal/models"
)

// State is the phase of the tick cycle.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateMerging
	StateEvaluating
	StateAppending
	StatePresenting
	StateWaiting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateMerging:
		return "merging"
	case StateEvaluating:
		return "evaluating"
	case StateAppending:
		return "appending"
	case StatePresenting:
		return "presenting"
	case StateWaiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// TickResult is the outcome of one cycle for one subject.
// On failure Reading is zero, Alerts is empty and Window is the unchanged prior window.
type TickResult struct {
	SubjectID string
	Reading   models.Reading
	Alerts    []models.Alert
	Window    []models.Reading
	Err       error
	At        time.Time
	Status    SubjectStatus
}

// OK reports whether the cycle produced a reading.
func (r TickResult) OK() bool {
	return r.Err == nil
}

// Sink receives every cycle's result. Present must not block the cycle.
type Sink interface {
	Present(ctx context.Context, result TickResult)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, result TickResult)

func (f SinkFunc) Present(ctx context.Context, result TickResult) {
	f(ctx, result)
}

// Orchestrator runs fetch, merge, evaluate, append and present for a subject.
type Orchestrator struct {
	session   *Session
	evaluator *alert.Evaluator
	sinks     []Sink
	logger    zerolog.Logger
	now       func() time.Time

	mutex sync.RWMutex
	state State
}

// NewOrchestrator creates an orchestrator over the session's subjects
func NewOrchestrator(session *Session, evaluator *alert.Evaluator, logger zerolog.Logger, sinks ...Sink) *Orchestrator {
	return &Orchestrator{
		session:   session,
		evaluator: evaluator,
		sinks:     sinks,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		now:       time.Now,
	}
}

// SetClock replaces the timestamp source used at merge time.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// State returns the current cycle phase
func (o *Orchestrator) State() State {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mutex.Lock()
	o.state = s
	o.mutex.Unlock()
}

// Tick runs one cycle for the subject.
// A fetch failure is returned and presented; the window is left untouched.
func (o *Orchestrator) Tick(ctx context.Context, subjectID string) (TickResult, error) {
	st, err := o.session.state(subjectID)
	if err != nil {
		return TickResult{}, err
	}
	logger := o.logger.With().Str("subject", subjectID).Logger()

	o.setState(StateFetching)
	motion, health, err := st.source.Fetch(ctx)
	if err != nil {
		now := o.now()
		result := TickResult{
			SubjectID: subjectID,
			Alerts:    []models.Alert{},
			Window:    st.buffer.Window(now, o.session.retention),
			Err:       err,
			At:        now,
		}
		result.Status = o.session.record(st, result)

		logger.Warn().Err(err).
			Int("consecutive_failures", result.Status.ConsecutiveFailures).
			Str("status", string(result.Status.Status)).
			Msg("Fetch failed, window unchanged")

		o.present(ctx, result)
		return result, err
	}

	o.setState(StateMerging)
	reading := models.Merge(subjectID, motion, health, o.now())

	o.setState(StateEvaluating)
	alerts := []models.Alert{}
	if st.subject.Alerting {
		alerts = o.evaluator.Evaluate(reading)
	}

	o.setState(StateAppending)
	st.buffer.Append(reading)

	result := TickResult{
		SubjectID: subjectID,
		Reading:   reading,
		Alerts:    alerts,
		Window:    st.buffer.Window(reading.Timestamp, o.session.retention),
		At:        reading.Timestamp,
	}
	result.Status = o.session.record(st, result)

	event := logger.Debug()
	if len(alerts) > 0 {
		event = logger.Warn().Interface("alerts", alertMessages(alerts))
	}
	event.Float64("gas_level", reading.GasLevel).
		Str("fall_status", reading.FallStatus).
		Int("window_size", len(result.Window)).
		Msg("Tick complete")

	o.present(ctx, result)
	return result, nil
}

func (o *Orchestrator) present(ctx context.Context, result TickResult) {
	o.setState(StatePresenting)
	for _, sink := range o.sinks {
		sink.Present(ctx, result)
	}
}

func alertMessages(alerts []models.Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.Message
	}
	return out
}
