// internal/logging/config_test.go
package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.Equal(t, zapcore.InfoLevel, cfg.Level)
	require.Equal(t, "json", cfg.Format)
	require.True(t, cfg.Output.Stdout)
	require.True(t, cfg.Caller.Enabled)
	require.Equal(t, "ragify", cfg.Fields["service"])
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RejectsUnknownFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_AcceptsConsoleFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "console"
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RejectsNoOutput(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsNegativeCallerSkip(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Caller.Skip = -1
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsEmptyFieldKey(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Fields[""] = "value"
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsEmptyFieldValue(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Fields["empty"] = ""
	require.Error(t, cfg.Validate())
}
