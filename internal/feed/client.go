package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/afroash/worker-monitor/internal/models"
)

const (
	DefaultFeedTimeout     = 5 * time.Second
	DefaultSnapshotTimeout = 2 * time.Second
)

// ErrFetchFailure is returned for any failed telemetry fetch: network error,
// non-success status, malformed payload or timeout.
var ErrFetchFailure = errors.New("fetch failed")

// Source produces the raw fields for one cycle of a subject.
type Source interface {
	// Fetch returns both feeds' fields or an error wrapping ErrFetchFailure.
	Fetch(ctx context.Context) (models.MotionFields, models.HealthFields, error)
}

// Client reads the latest entry of one telemetry channel.
type Client struct {
	name   string
	url    string
	http   *resty.Client
	logger zerolog.Logger
}

// NewClient creates a channel client. Requests are bounded by timeout and never retried.
func NewClient(name, url string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultFeedTimeout
	}
	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetLogger(newRestyLogger(logger)).
		SetHeader("Accept", "application/json")

	return &Client{
		name:   name,
		url:    url,
		http:   httpClient,
		logger: logger.With().Str("feed", name).Logger(),
	}
}

// Name returns the feed name used in logs and errors
func (c *Client) Name() string {
	return c.name
}

// Latest fetches the channel and returns its most recent entry.
func (c *Client) Latest(ctx context.Context) (Entry, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailure, c.name, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: %s: unexpected status %d", ErrFetchFailure, c.name, resp.StatusCode())
	}

	entry, err := parseLatest(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailure, c.name, err)
	}

	c.logger.Debug().Dur("latency", resp.Time()).Msg("Feed entry fetched")
	return entry, nil
}

// MotionFeed reads the accelerometer/gas/environment channel.
type MotionFeed struct {
	client *Client
}

// NewMotionFeed creates a MotionFeed
func NewMotionFeed(client *Client) *MotionFeed {
	return &MotionFeed{client: client}
}

// Fetch returns the latest motion fields.
func (f *MotionFeed) Fetch(ctx context.Context) (models.MotionFields, error) {
	entry, err := f.client.Latest(ctx)
	if err != nil {
		return models.MotionFields{}, err
	}
	fields, err := motionFromEntry(entry)
	if err != nil {
		return models.MotionFields{}, fmt.Errorf("%w: %s: %w", ErrFetchFailure, f.client.Name(), err)
	}
	return fields, nil
}

// HealthFeed reads the heart-rate/body-temperature channel.
type HealthFeed struct {
	client *Client
}

// NewHealthFeed creates a HealthFeed
func NewHealthFeed(client *Client) *HealthFeed {
	return &HealthFeed{client: client}
}

// Fetch returns the latest health fields.
func (f *HealthFeed) Fetch(ctx context.Context) (models.HealthFields, error) {
	entry, err := f.client.Latest(ctx)
	if err != nil {
		return models.HealthFields{}, err
	}
	fields, err := healthFromEntry(entry)
	if err != nil {
		return models.HealthFields{}, fmt.Errorf("%w: %s: %w", ErrFetchFailure, f.client.Name(), err)
	}
	return fields, nil
}

// LiveSource fetches both channels for the live subject.
type LiveSource struct {
	motion *MotionFeed
	health *HealthFeed
}

// NewLiveSource creates a LiveSource
func NewLiveSource(motion *MotionFeed, health *HealthFeed) *LiveSource {
	return &LiveSource{motion: motion, health: health}
}

// Fetch queries both channels concurrently and waits for both.
// If either fails the error is returned and no fields are.
func (s *LiveSource) Fetch(ctx context.Context) (models.MotionFields, models.HealthFields, error) {
	var (
		wg                   sync.WaitGroup
		motion               models.MotionFields
		health               models.HealthFields
		motionErr, healthErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		motion, motionErr = s.motion.Fetch(ctx)
	}()
	go func() {
		defer wg.Done()
		health, healthErr = s.health.Fetch(ctx)
	}()
	wg.Wait()

	if err := errors.Join(motionErr, healthErr); err != nil {
		return models.MotionFields{}, models.HealthFields{}, err
	}
	return motion, health, nil
}

// restyLogger routes resty's own diagnostics into zerolog.
type restyLogger struct {
	logger zerolog.Logger
}

func newRestyLogger(logger zerolog.Logger) *restyLogger {
	return &restyLogger{logger: logger.With().Str("component", "resty").Logger()}
}

func (l *restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Msgf(format, v...)
}

func (l *restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(format, v...)
}

func (l *restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}
