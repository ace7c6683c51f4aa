package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	log, err := New(Config{Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("sweep completed", zap.String("sweep", "expiry"), zap.Int64("account_id", 7))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "sweep completed", entry["msg"])
	assert.Equal(t, "expiry", entry["sweep"])
	assert.EqualValues(t, 7, entry["account_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWithoutFile(t *testing.T) {
	log, err := New(Config{Development: true})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
	assert.False(t, log.Core().Enabled(zap.DebugLevel))
}
