package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/worker-monitor/internal/config"
)

func TestNew_Level(t *testing.T) {
	logger, closer, err := New(config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(config.LoggingConfig{Level: "chatty", Format: "json"})
	assert.Error(t, err)
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "monitor.log")

	logger, closer, err := New(config.LoggingConfig{
		Level:      "info",
		Format:     "console",
		FilePath:   path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	})
	require.NoError(t, err)

	logger.Info().Str("subject", "worker-1").Msg("Tick complete")
	logger.Debug().Msg("filtered out")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, `"subject":"worker-1"`)
	assert.Contains(t, content, `"message":"Tick complete"`)
	assert.False(t, strings.Contains(content, "filtered out"))
}
