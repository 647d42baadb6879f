package logger

import (
	"os"
	"path/filepath"
	"testing"

	"grid-optimizer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewWritesToFile verifies that file output goes through the rotating writer.
func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "optimizer.log")
	l := New(models.LogConfig{Level: "debug", Output: "file", File: path, MaxSize: 1})
	l.Info("backtest finished")
	require.NoError(t, l.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "backtest finished")
}

// TestNewFallsBackToConsole verifies that a bad level and empty output still yield a usable logger.
func TestNewFallsBackToConsole(t *testing.T) {
	l := New(models.LogConfig{Level: "nonsense", Output: ""})
	require.NotNil(t, l)
	assert.True(t, l.Core().Enabled(0)) // info
	assert.False(t, l.Core().Enabled(-1))
}

func TestGlobalAccessors(t *testing.T) {
	assert.NotNil(t, S())
	InitLogger(models.LogConfig{Level: "warn", Output: "console"})
	assert.False(t, L().Core().Enabled(0))
	Sync()
}
