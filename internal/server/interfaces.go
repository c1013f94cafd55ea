package server

import (
	"context"
	"time"

	"github.com/afroash/worker-monitor/internal/feed"
	"github.com/afroash/worker-monitor/internal/models"
	"github.com/afroash/worker-monitor/internal/monitor"
)

// SubjectStore is the read side of the monitoring session plus subject selection.
// monitor.Session implements this interface.
type SubjectStore interface {
	// Subjects returns all subjects in configuration order
	Subjects() []models.Subject

	// Subject looks up a subject; unknown IDs wrap monitor.ErrUnknownSubject
	Subject(id string) (models.Subject, error)

	// Active returns the subject the loop is polling
	Active() models.Subject

	// SetActive switches the polled subject from the next cycle on
	SetActive(id string) error

	// Window returns the readings within the retention period ending at now
	Window(id string, now time.Time) ([]models.Reading, error)

	// Latest returns the most recent reading
	Latest(id string) (models.Reading, bool, error)

	// LastResult returns the outcome of the most recent cycle
	LastResult(id string) (monitor.TickResult, bool)

	// Status returns the failure/stale status
	Status(id string) (monitor.SubjectStatus, error)

	// MarkLoggedIn records a successful login
	MarkLoggedIn()
}

// SnapshotSource captures a camera frame.
// feed.SnapshotClient implements this interface.
type SnapshotSource interface {
	Capture(ctx context.Context) (*feed.Snapshot, error)
}
