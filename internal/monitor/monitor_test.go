package monitor

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/worker-monitor/internal/alert"
	"github.com/afroash/worker-monitor/internal/export"
	"github.com/afroash/worker-monitor/internal/feed"
	"github.com/afroash/worker-monitor/internal/models"
)

// stubSource returns fixed fields, or err when set.
type stubSource struct {
	mu     sync.Mutex
	motion models.MotionFields
	health models.HealthFields
	err    error
	calls  int
}

func (s *stubSource) Fetch(ctx context.Context) (models.MotionFields, models.HealthFields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return models.MotionFields{}, models.HealthFields{}, s.err
	}
	return s.motion, s.health, nil
}

func (s *stubSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *stubSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recorder is a Sink that keeps every result.
type recorder struct {
	mu      sync.Mutex
	results []TickResult
}

func (r *recorder) Present(ctx context.Context, result TickResult) {
	r.mu.Lock()
	r.results = append(r.results, result)
	r.mu.Unlock()
}

func (r *recorder) all() []TickResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TickResult(nil), r.results...)
}

// stepClock advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, live feed.Source, opts SessionOptions) (*Session, *Orchestrator, *recorder) {
	t.Helper()
	subjects := models.DefaultSubjects()
	session, err := NewSession([]Binding{
		{Subject: subjects[0], Source: live},
		{Subject: subjects[1], Source: feed.NewSyntheticSource()},
	}, opts)
	require.NoError(t, err)

	rec := &recorder{}
	o := NewOrchestrator(session, alert.NewEvaluator(alert.DefaultThresholds()), zerolog.Nop(), rec)
	o.SetClock(stepClock(t0))
	return session, o, rec
}

func TestNewSession_Errors(t *testing.T) {
	_, err := NewSession(nil, SessionOptions{})
	assert.ErrorIs(t, err, ErrNoSubjects)

	s := models.DefaultSubjects()[0]
	_, err = NewSession([]Binding{
		{Subject: s, Source: feed.NewSyntheticSource()},
		{Subject: s, Source: feed.NewSyntheticSource()},
	}, SessionOptions{})
	assert.Error(t, err)

	_, err = NewSession([]Binding{{Subject: s}}, SessionOptions{})
	assert.Error(t, err)
}

func TestSession_ActiveSubject(t *testing.T) {
	session, _, _ := newFixture(t, &stubSource{}, SessionOptions{})

	assert.Equal(t, models.WorkerOne, session.Active().ID)
	assert.False(t, session.LoggedIn())

	require.NoError(t, session.SetActive(models.WorkerTwo))
	assert.Equal(t, models.WorkerTwo, session.Active().ID)

	err := session.SetActive("worker-9")
	assert.ErrorIs(t, err, ErrUnknownSubject)
	assert.Equal(t, models.WorkerTwo, session.Active().ID)

	session.MarkLoggedIn()
	assert.True(t, session.LoggedIn())
}

func TestTick_DummySubject(t *testing.T) {
	session, o, rec := newFixture(t, &stubSource{}, SessionOptions{Retention: time.Hour})

	for i := 0; i < 3; i++ {
		result, err := o.Tick(context.Background(), models.WorkerTwo)
		require.NoError(t, err)
		assert.Empty(t, result.Alerts)
		assert.Len(t, result.Window, i+1)
	}

	window, err := session.Window(models.WorkerTwo, t0.Add(4*time.Second))
	require.NoError(t, err)
	require.Len(t, window, 3)
	for _, r := range window {
		assert.Equal(t, 150.0, r.GasLevel)
		assert.Equal(t, "No Fall", r.FallStatus)
	}

	for _, res := range rec.all() {
		assert.Empty(t, res.Alerts)
	}

	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, window))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 4, "header plus three data rows")

	status, err := session.Status(models.WorkerTwo)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status.Status)
	assert.Equal(t, 3, status.WindowSize)
}

func TestTick_GasAndFallAlerts(t *testing.T) {
	live := &stubSource{
		motion: models.MotionFields{GasLevel: 450, FallStatus: "Fall Detected"},
		health: models.HealthFields{HeartRate: 90},
	}
	_, o, rec := newFixture(t, live, SessionOptions{})

	result, err := o.Tick(context.Background(), models.WorkerOne)
	require.NoError(t, err)

	require.Len(t, result.Alerts, 2)
	assert.Equal(t, models.AlertHighGas, result.Alerts[0].Kind)
	assert.Equal(t, models.AlertFallDetected, result.Alerts[1].Kind)
	assert.Equal(t, result.Reading, result.Window[len(result.Window)-1])

	recorded := rec.all()
	require.Len(t, recorded, 1)
	assert.Len(t, recorded[0].Alerts, 2)
}

func TestTick_MergeTimestampAndSubject(t *testing.T) {
	live := &stubSource{motion: models.MotionFields{}}
	_, o, _ := newFixture(t, live, SessionOptions{})

	result, err := o.Tick(context.Background(), models.WorkerOne)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Second), result.Reading.Timestamp)
	assert.Equal(t, models.WorkerOne, result.Reading.SubjectID)
	assert.Equal(t, models.UnknownFallStatus, result.Reading.FallStatus)
}

func TestTick_FailureLeavesWindowUnchanged(t *testing.T) {
	live := &stubSource{motion: models.MotionFields{GasLevel: 100, FallStatus: "Normal"}}
	session, o, rec := newFixture(t, live, SessionOptions{})

	for i := 0; i < 2; i++ {
		_, err := o.Tick(context.Background(), models.WorkerOne)
		require.NoError(t, err)
	}
	before, err := session.Window(models.WorkerOne, t0.Add(time.Minute))
	require.NoError(t, err)

	live.setErr(fmt.Errorf("%w: motion: unexpected status 500", feed.ErrFetchFailure))
	result, err := o.Tick(context.Background(), models.WorkerOne)
	require.Error(t, err)
	assert.ErrorIs(t, err, feed.ErrFetchFailure)
	assert.False(t, result.OK())
	assert.True(t, result.Reading.IsZero())
	assert.Empty(t, result.Alerts)
	assert.Equal(t, before, result.Window)

	after, err := session.Window(models.WorkerOne, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	recorded := rec.all()
	require.Len(t, recorded, 3)
	assert.Error(t, recorded[2].Err)
	assert.Equal(t, StatusFailing, recorded[2].Status.Status)
}

func TestTick_LiveFeedsServerErrorAndTimeout(t *testing.T) {
	var mode atomic.Value
	mode.Store("ok")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch mode.Load().(string) {
		case "500":
			w.WriteHeader(http.StatusInternalServerError)
		case "slow":
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		default:
			fmt.Fprint(w, `{"feeds":[{"field1":"1","field6":"120","field8":"Normal"}]}`)
		}
	}))
	defer srv.Close()

	live := feed.NewLiveSource(
		feed.NewMotionFeed(feed.NewClient("motion", srv.URL, 100*time.Millisecond, zerolog.Nop())),
		feed.NewHealthFeed(feed.NewClient("health", srv.URL, 100*time.Millisecond, zerolog.Nop())),
	)
	session, o, _ := newFixture(t, live, SessionOptions{})

	_, err := o.Tick(context.Background(), models.WorkerOne)
	require.NoError(t, err)
	before, err := session.Window(models.WorkerOne, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, before, 1)

	for _, m := range []string{"500", "slow"} {
		t.Run(m, func(t *testing.T) {
			mode.Store(m)
			_, err := o.Tick(context.Background(), models.WorkerOne)
			assert.ErrorIs(t, err, feed.ErrFetchFailure)

			after, err := session.Window(models.WorkerOne, t0.Add(time.Minute))
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestTick_StaleAfterConsecutiveFailures(t *testing.T) {
	live := &stubSource{err: errors.New("down")}
	session, o, _ := newFixture(t, live, SessionOptions{StaleAfter: 3})

	for i := 1; i <= 3; i++ {
		_, _ = o.Tick(context.Background(), models.WorkerOne)
		status, err := session.Status(models.WorkerOne)
		require.NoError(t, err)
		assert.Equal(t, i, status.ConsecutiveFailures)
		if i < 3 {
			assert.Equal(t, StatusFailing, status.Status)
		} else {
			assert.Equal(t, StatusStale, status.Status)
		}
	}

	live.setErr(nil)
	_, err := o.Tick(context.Background(), models.WorkerOne)
	require.NoError(t, err)
	status, _ := session.Status(models.WorkerOne)
	assert.Equal(t, StatusOK, status.Status)
	assert.Equal(t, 0, status.ConsecutiveFailures)
}

func TestTick_StaleDisabledByDefault(t *testing.T) {
	live := &stubSource{err: errors.New("down")}
	session, o, _ := newFixture(t, live, SessionOptions{})

	for i := 0; i < 10; i++ {
		_, _ = o.Tick(context.Background(), models.WorkerOne)
	}
	status, _ := session.Status(models.WorkerOne)
	assert.Equal(t, StatusFailing, status.Status)
}

func TestTick_UnknownSubject(t *testing.T) {
	_, o, rec := newFixture(t, &stubSource{}, SessionOptions{})

	_, err := o.Tick(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUnknownSubject)
	assert.Empty(t, rec.all())
}

func TestSession_StatusPending(t *testing.T) {
	session, _, _ := newFixture(t, &stubSource{}, SessionOptions{})

	status, err := session.Status(models.WorkerOne)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status.Status)

	_, found := session.LastResult(models.WorkerOne)
	assert.False(t, found)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Equal(t, "waiting", StateWaiting.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestRunner_SkipsUntilLoggedIn(t *testing.T) {
	live := &stubSource{motion: models.MotionFields{FallStatus: "Normal"}}
	session, o, rec := newFixture(t, live, SessionOptions{})
	runner := NewRunner(o, session, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, live.Calls())

	session.MarkLoggedIn()
	require.Eventually(t, func() bool { return len(rec.all()) >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
	assert.Equal(t, StateIdle, o.State())
}

func TestRunner_FollowsActiveSubject(t *testing.T) {
	live := &stubSource{}
	session, o, rec := newFixture(t, live, SessionOptions{})
	require.NoError(t, session.SetActive(models.WorkerTwo))
	session.MarkLoggedIn()

	runner := NewRunner(o, session, 5*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	require.Eventually(t, func() bool { return len(rec.all()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	for _, res := range rec.all() {
		assert.Equal(t, models.WorkerTwo, res.SubjectID)
	}
	assert.Equal(t, 0, live.Calls())
}

// blockingSource blocks until released, ignoring ctx cancellation from the runner.
type blockingSource struct {
	started chan struct{}
	release chan struct{}
	ctxErr  atomic.Value
}

func (b *blockingSource) Fetch(ctx context.Context) (models.MotionFields, models.HealthFields, error) {
	close(b.started)
	<-b.release
	b.ctxErr.Store(fmt.Sprint(ctx.Err()))
	return models.MotionFields{FallStatus: "Normal"}, models.HealthFields{}, nil
}

func TestRunner_CycleCompletesAfterCancel(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	session, o, rec := newFixture(t, src, SessionOptions{})
	session.MarkLoggedIn()

	runner := NewRunner(o, session, time.Hour, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	<-src.started
	cancel()
	close(src.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}

	results := rec.all()
	require.Len(t, results, 1)
	assert.True(t, results[0].OK())
	assert.Equal(t, "<nil>", src.ctxErr.Load())

	window, err := session.Window(models.WorkerOne, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, window, 1)
}

func TestSinkFunc(t *testing.T) {
	var got string
	var s Sink = SinkFunc(func(ctx context.Context, r TickResult) { got = r.SubjectID })
	s.Present(context.Background(), TickResult{SubjectID: "x"})
	assert.Equal(t, "x", got)
}
