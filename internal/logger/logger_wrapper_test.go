package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leandrodaf/midiscan/sdk/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*ZapLogger, *observer.ObservedLogs) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core, logs := observer.New(level)
	return newWithCore(core, level), logs
}

func TestZapLogger_WritesStructuredFields(t *testing.T) {
	l, logs := newObserved()

	l.Info("device connected",
		l.Field().String("device", "usb-1"),
		l.Field().Int("attempt", 2),
		l.Field().Error("error", errors.New("boom")))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "device connected", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "usb-1", ctx["device"])
	assert.EqualValues(t, 2, ctx["attempt"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestZapLogger_SetLevel(t *testing.T) {
	l, logs := newObserved()

	l.Debug("hidden")
	assert.Equal(t, 0, logs.Len())

	l.SetLevel(contracts.DebugLevel)
	l.Debug("shown")
	assert.Equal(t, 1, logs.Len())

	l.SetLevel(contracts.ErrorLevel)
	l.Warn("hidden too")
	l.Error("shown too")
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)
}

func TestZapLogger_SetDestinationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "midiscan.log")
	l := NewZapLogger().(*ZapLogger)
	t.Cleanup(func() { _ = l.Close() })

	l.SetDestination(contracts.FileLog, path)
	l.Info("to file", l.Field().String("device", "usb-2"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
	assert.Contains(t, string(data), `"device":"usb-2"`)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Info("ignored", l.Field().Bool("ok", true))
		l.SetLevel(contracts.DebugLevel)
	})
}
