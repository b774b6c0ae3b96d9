package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"takerflow/config"
	"takerflow/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestNewRejectsBadLevel
func TestNewRejectsBadLevel(t *testing.T) {
	_, err := logger.New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

// go test -v --run TestNewWritesRotatedFile
func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "takerflow.log")

	log, err := logger.New(config.LogConfig{
		Level:       "info",
		Format:      "json",
		Environment: "prod",
		OutputFile:  path,
	})
	require.NoError(t, err)

	log.Info("flush completed")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"flush completed"`)
}
