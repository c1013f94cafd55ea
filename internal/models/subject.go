package models

// SubjectKind tells where a subject's readings come from.
type SubjectKind string

const (
	SubjectLive      SubjectKind = "live"
	SubjectSynthetic SubjectKind = "synthetic"
)

// Well-known subject IDs.
const (
	WorkerOne = "worker-1"
	WorkerTwo = "worker-2"
)

// Subject is a monitored worker.
type Subject struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Kind SubjectKind `json:"kind"`
	// Alerting controls whether readings are run through the alert rules.
	Alerting bool `json:"alerting"`
}

// NewSubject creates a Subject
func NewSubject(id, name string, kind SubjectKind, alerting bool) Subject {
	return Subject{
		ID:       id,
		Name:     name,
		Kind:     kind,
		Alerting: alerting,
	}
}

// DefaultSubjects returns the live worker and the demo worker.
// The demo worker never evaluates alerts.
func DefaultSubjects() []Subject {
	return []Subject{
		NewSubject(WorkerOne, "Worker 1", SubjectLive, true),
		NewSubject(WorkerTwo, "Worker 2", SubjectSynthetic, false),
	}
}

// IsLive reports whether the subject is backed by the remote feeds.
func (s Subject) IsLive() bool {
	return s.Kind == SubjectLive
}
