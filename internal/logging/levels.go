// internal/logging/levels.go
package logging

import (
	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below zap's own Debug level (-1), giving the
// orchestrator pipeline a level for per-source fan-out timing, vector
// search candidate dumps, and other detail that's almost always
// filtered out in production but worth having a toggle for when
// chasing a fusion or scoring discrepancy.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses logging.level config values into a
// zapcore.Level. It recognizes "trace" in addition to every level
// zapcore.Level.UnmarshalText already understands (debug, info, warn,
// error, dpanic, panic, fatal), so operators can opt into Logger.Trace
// output the same way they'd configure any other level. On an
// unrecognized string it returns InfoLevel alongside the error so a
// caller that ignores the error still gets a sane default.
func LevelFromString(level string) (zapcore.Level, error) {
	if level == "trace" {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
