// internal/logging/logger_test.go
package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_ValidConfig(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewLogger_RejectsInvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "bogus"
	_, err := NewLogger(cfg)
	require.Error(t, err)
}

func TestLogger_InfoWritesContextFields(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithRequestID(context.Background(), "req-1")

	tl.Info(ctx, "hello")

	tl.AssertLogged(t, zapcore.InfoLevel, "hello")
	tl.AssertField(t, "hello", "request.id", "req-1")
}

func TestLogger_Enabled_RespectsConfiguredLevel(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = zapcore.WarnLevel
	logger, err := NewLogger(cfg)
	require.NoError(t, err)

	require.False(t, logger.Enabled(zapcore.InfoLevel))
	require.True(t, logger.Enabled(zapcore.WarnLevel))
}

func TestLogger_With_CreatesIndependentChild(t *testing.T) {
	tl := NewTestLogger()
	child := tl.With(zap.String("component", "scoring"))

	child.Info(context.Background(), "child message")
	tl.Info(context.Background(), "parent message")

	tl.AssertField(t, "child message", "component", "scoring")
	parent := tl.FilterMessage("parent message").All()
	require.Len(t, parent, 1)
	require.NotContains(t, parent[0].ContextMap(), "component")
}

func TestLogger_Named(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig())
	require.NoError(t, err)

	named := logger.Named("orchestrator")
	require.NotNil(t, named)
}

func TestLogger_Sync_IgnoresStdoutSyncError(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig())
	require.NoError(t, err)

	// Sync on stdout commonly errors with EINVAL/ENOTTY; Logger.Sync masks it.
	_ = logger.Sync()
}

func TestLogger_Underlying_ReturnsZapLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, logger.Underlying())
}
