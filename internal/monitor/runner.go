package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const DefaultPollDelay = 1 * time.Second

// Runner drives the orchestrator for the active subject until its context is cancelled.
type Runner struct {
	orchestrator *Orchestrator
	session      *Session
	delay        time.Duration
	logger       zerolog.Logger
}

// NewRunner creates a runner. A non-positive delay uses DefaultPollDelay.
func NewRunner(orchestrator *Orchestrator, session *Session, delay time.Duration, logger zerolog.Logger) *Runner {
	if delay <= 0 {
		delay = DefaultPollDelay
	}
	return &Runner{
		orchestrator: orchestrator,
		session:      session,
		delay:        delay,
		logger:       logger.With().Str("component", "runner").Logger(),
	}
}

// Run loops tick then wait. Cancellation is observed only between cycles:
// a cycle that has started finishes, bounded by the fetch timeouts.
// Cycles are skipped while the session is not logged in.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Dur("delay", r.delay).Msg("Runner started")
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.orchestrator.setState(StateIdle)
			r.logger.Info().Msg("Runner stopped")
			return ctx.Err()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			continue
		}

		if r.session.LoggedIn() {
			subject := r.session.Active()
			// Errors are logged and presented by the orchestrator.
			_, _ = r.orchestrator.Tick(context.WithoutCancel(ctx), subject.ID)
		}

		r.orchestrator.setState(StateWaiting)
		timer.Reset(r.delay)
	}
}
