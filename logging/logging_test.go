package logging

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesLatestFileAndRotatesPrevious(t *testing.T) {
	dir := t.TempDir()

	logger, lvl, err := New(dir, zapcore.InfoLevel)
	require.NoError(t, err)
	defer logger.Sync()

	logger.Info("hello")
	assert.FileExists(t, filepath.Join(dir, "latest.txt"))

	logger2, _, err := New(dir, zapcore.InfoLevel)
	require.NoError(t, err)
	defer logger2.Sync()

	assert.FileExists(t, filepath.Join(dir, "last.txt"))
	assert.Equal(t, zapcore.InfoLevel, lvl.Level())
}

func TestAtomicLevelAdjustsVerbosity(t *testing.T) {
	dir := t.TempDir()
	logger, lvl, err := New(dir, zapcore.WarnLevel)
	require.NoError(t, err)
	defer logger.Sync()

	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	lvl.SetLevel(zapcore.DebugLevel)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}
