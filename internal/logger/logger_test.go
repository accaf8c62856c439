package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitWritesJSONToFile(t *testing.T) {
	previous := Lg
	t.Cleanup(func() { set(previous) })

	filename := filepath.Join(t.TempDir(), "logs", "relay.log")
	err := Init(&LogConfig{Level: "debug", Filename: filename, MaxSize: 1, MaxAge: 1, MaxBackups: 1}, "production")
	require.NoError(t, err)

	Warn("room join ignored", zap.String("room_id", "not-a-uuid"))
	Debug("configuration applied", zap.String("addr", ":3001"))
	Error("http server failed", zap.Error(os.ErrDeadlineExceeded))
	Named("roomrelay").Info("child logger line")
	Sync()

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"room join ignored"`)
	assert.Contains(t, string(data), `"room_id":"not-a-uuid"`)
	assert.Contains(t, string(data), `"level":"WARN"`)
	assert.Contains(t, string(data), `"msg":"configuration applied"`)
	assert.Contains(t, string(data), `"level":"ERROR"`)
	assert.Contains(t, string(data), `"logger":"roomrelay"`)
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	previous := Lg
	t.Cleanup(func() { set(previous) })

	err := Init(&LogConfig{Level: "loud"}, "production")
	assert.Error(t, err)
	assert.Same(t, previous, Lg)
}

func TestNamedReturnsChildLogger(t *testing.T) {
	assert.NotNil(t, Named("hub"))
	assert.NotPanics(t, func() { Debug("debug line") })
}
