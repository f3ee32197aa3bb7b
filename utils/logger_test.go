package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorLogPathDerivation(t *testing.T) {
	assert.Equal(t, "arb-bot-error.log", ErrorLogPath("arb-bot.log"))
	assert.Equal(t, "/var/log/bot-error.log", ErrorLogPath("/var/log/bot.log"))
	assert.Equal(t, "bot-error", ErrorLogPath("bot"))
}

func TestInitLoggerWritesConfiguredFileSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.log")

	logger := InitLogger(true, path)
	require.NotNil(t, logger)
	logger.Info("sink check")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sink check")

	// Later initializations reuse the singleton regardless of arguments.
	assert.Same(t, logger, InitLogger(false, filepath.Join(dir, "other.log")))
	assert.Same(t, logger, GetLogger())
}
