package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ErrSnapshotUnavailable is returned when the camera cannot produce an image.
var ErrSnapshotUnavailable = errors.New("capture unavailable")

// Snapshot is a decoded camera frame.
type Snapshot struct {
	Image      image.Image
	Format     string
	CapturedAt time.Time
}

// SnapshotClient fetches still images from the camera capture endpoint.
type SnapshotClient struct {
	url    string
	http   *resty.Client
	logger zerolog.Logger
}

// NewSnapshotClient creates a SnapshotClient. Requests are bounded by timeout and never retried.
func NewSnapshotClient(url string, timeout time.Duration, logger zerolog.Logger) *SnapshotClient {
	if timeout <= 0 {
		timeout = DefaultSnapshotTimeout
	}
	return &SnapshotClient{
		url: url,
		http: resty.New().
			SetTimeout(timeout).
			SetRetryCount(0).
			SetLogger(newRestyLogger(logger)),
		logger: logger.With().Str("component", "snapshot").Logger(),
	}
}

// Capture fetches and decodes one frame.
// Network errors, a status other than 200 and undecodable bodies all yield ErrSnapshotUnavailable.
func (c *SnapshotClient) Capture(ctx context.Context) (*Snapshot, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrSnapshotUnavailable, resp.StatusCode())
	}

	img, format, err := image.Decode(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrSnapshotUnavailable, err)
	}

	c.logger.Debug().Str("format", format).Int("bytes", len(resp.Body())).Msg("Snapshot captured")
	return &Snapshot{Image: img, Format: format, CapturedAt: time.Now()}, nil
}
