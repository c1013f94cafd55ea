package feed

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSnapshotClient_Capture(t *testing.T) {
	frame := pngFrame(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(frame)
	}))
	defer srv.Close()

	snap, err := NewSnapshotClient(srv.URL, time.Second, zerolog.Nop()).Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "png", snap.Format)
	assert.Equal(t, image.Rect(0, 0, 4, 3), snap.Image.Bounds())
	assert.False(t, snap.CapturedAt.IsZero())
}

func TestSnapshotClient_Unavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
		{"no content", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("definitely not an image"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			snap, err := NewSnapshotClient(srv.URL, time.Second, zerolog.Nop()).Capture(context.Background())
			assert.Nil(t, snap)
			assert.ErrorIs(t, err, ErrSnapshotUnavailable)
		})
	}
}

func TestSnapshotClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewSnapshotClient(url, 200*time.Millisecond, zerolog.Nop()).Capture(context.Background())
	assert.ErrorIs(t, err, ErrSnapshotUnavailable)
}
