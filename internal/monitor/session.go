package monitor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/afroash/worker-monitor/internal/buffer"
	"github.com/afroash/worker-monitor/internal/feed"
	"github.com/afroash/worker-monitor/internal/models"
)

var (
	ErrUnknownSubject = errors.New("unknown subject")
	ErrNoSubjects     = errors.New("session needs at least one subject")
)

// Status summarises a subject's recent cycles.
type Status string

const (
	StatusPending Status = "pending" // no cycle has run yet
	StatusOK      Status = "ok"
	StatusFailing Status = "failing"
	StatusStale   Status = "stale"
)

// Binding ties a subject to the source that produces its readings.
type Binding struct {
	Subject models.Subject
	Source  feed.Source
}

// SessionOptions configures the per-subject windows.
type SessionOptions struct {
	Retention     time.Duration
	EvictOnAppend bool
	// StaleAfter reports a subject stale after this many failed cycles in a row. 0 disables.
	StaleAfter int
}

// SubjectStatus is a point-in-time view of one subject.
type SubjectStatus struct {
	SubjectID           string    `json:"subject_id"`
	Status              Status    `json:"status"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastSuccess         time.Time `json:"last_success"`
	WindowSize          int       `json:"window_size"`
}

type subjectState struct {
	subject     models.Subject
	source      feed.Source
	buffer      *buffer.RollingBuffer
	last        TickResult
	hasLast     bool
	failures    int
	lastError   string
	lastSuccess time.Time
}

// Session holds everything that lives for the lifetime of the process:
// the login flag, the active subject and one window per subject.
type Session struct {
	subjects   map[string]*subjectState
	order      []string
	retention  time.Duration
	staleAfter int

	mutex    sync.RWMutex
	loggedIn bool
	active   string
}

// NewSession creates a session. The first binding becomes the active subject.
func NewSession(bindings []Binding, opts SessionOptions) (*Session, error) {
	if len(bindings) == 0 {
		return nil, ErrNoSubjects
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}

	s := &Session{
		subjects:   make(map[string]*subjectState, len(bindings)),
		order:      make([]string, 0, len(bindings)),
		retention:  opts.Retention,
		staleAfter: opts.StaleAfter,
	}
	for _, b := range bindings {
		if b.Subject.ID == "" || b.Source == nil {
			return nil, fmt.Errorf("invalid binding for subject %q", b.Subject.ID)
		}
		if _, dup := s.subjects[b.Subject.ID]; dup {
			return nil, fmt.Errorf("duplicate subject %q", b.Subject.ID)
		}
		s.subjects[b.Subject.ID] = &subjectState{
			subject: b.Subject,
			source:  b.Source,
			buffer:  buffer.NewRollingBuffer(opts.Retention, opts.EvictOnAppend),
		}
		s.order = append(s.order, b.Subject.ID)
	}
	s.active = s.order[0]
	return s, nil
}

// Retention returns the window length
func (s *Session) Retention() time.Duration {
	return s.retention
}

// LoggedIn reports whether the gate has been passed.
func (s *Session) LoggedIn() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.loggedIn
}

// MarkLoggedIn sets the login flag. It is never cleared.
func (s *Session) MarkLoggedIn() {
	s.mutex.Lock()
	s.loggedIn = true
	s.mutex.Unlock()
}

// Subjects returns the subjects in configuration order
func (s *Session) Subjects() []models.Subject {
	out := make([]models.Subject, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.subjects[id].subject)
	}
	return out
}

// Subject looks up a subject by ID
func (s *Session) Subject(id string) (models.Subject, error) {
	st, ok := s.subjects[id]
	if !ok {
		return models.Subject{}, fmt.Errorf("%w: %q", ErrUnknownSubject, id)
	}
	return st.subject, nil
}

// Active returns the currently selected subject.
func (s *Session) Active() models.Subject {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.subjects[s.active].subject
}

// SetActive selects the subject polled from the next cycle on.
func (s *Session) SetActive(id string) error {
	if _, ok := s.subjects[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSubject, id)
	}
	s.mutex.Lock()
	s.active = id
	s.mutex.Unlock()
	return nil
}

// Window returns the subject's readings within the retention period ending at now.
func (s *Session) Window(id string, now time.Time) ([]models.Reading, error) {
	st, ok := s.subjects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubject, id)
	}
	return st.buffer.Window(now, s.retention), nil
}

// Latest returns the subject's most recent reading, if any.
func (s *Session) Latest(id string) (models.Reading, bool, error) {
	st, ok := s.subjects[id]
	if !ok {
		return models.Reading{}, false, fmt.Errorf("%w: %q", ErrUnknownSubject, id)
	}
	r, found := st.buffer.Latest()
	return r, found, nil
}

// LastResult returns the outcome of the subject's most recent cycle.
func (s *Session) LastResult(id string) (TickResult, bool) {
	st, ok := s.subjects[id]
	if !ok {
		return TickResult{}, false
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return st.last, st.hasLast
}

// Status returns the subject's current status.
func (s *Session) Status(id string) (SubjectStatus, error) {
	st, ok := s.subjects[id]
	if !ok {
		return SubjectStatus{}, fmt.Errorf("%w: %q", ErrUnknownSubject, id)
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.statusLocked(st), nil
}

// BufferStats returns the subject's buffer statistics
func (s *Session) BufferStats(id string) (buffer.Stats, error) {
	st, ok := s.subjects[id]
	if !ok {
		return buffer.Stats{}, fmt.Errorf("%w: %q", ErrUnknownSubject, id)
	}
	return st.buffer.Stats(), nil
}

func (s *Session) statusLocked(st *subjectState) SubjectStatus {
	status := StatusPending
	switch {
	case st.failures > 0 && s.staleAfter > 0 && st.failures >= s.staleAfter:
		status = StatusStale
	case st.failures > 0:
		status = StatusFailing
	case st.hasLast:
		status = StatusOK
	}
	return SubjectStatus{
		SubjectID:           st.subject.ID,
		Status:              status,
		ConsecutiveFailures: st.failures,
		LastError:           st.lastError,
		LastSuccess:         st.lastSuccess,
		WindowSize:          st.buffer.Len(),
	}
}

func (s *Session) state(id string) (*subjectState, error) {
	st, ok := s.subjects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubject, id)
	}
	return st, nil
}

// record stores a cycle outcome and returns the updated status.
func (s *Session) record(st *subjectState, result TickResult) SubjectStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if result.Err != nil {
		st.failures++
		st.lastError = result.Err.Error()
	} else {
		st.failures = 0
		st.lastError = ""
		st.lastSuccess = result.Reading.Timestamp
	}
	st.last = result
	st.hasLast = true

	status := s.statusLocked(st)
	st.last.Status = status
	return status
}
