package reactor

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logging facade the reactor core depends on. It is
// always injected at construction time via WithLogger; there is no
// package-level mutable logger and no global convenience function, so a
// single process can run multiple independently-configured handlers without
// their logging interfering.
type Logger = logiface.Logger[*stumpy.Event]

// disabledLogger returns a Logger with logging switched off, used when the
// embedder does not supply one via WithLogger.
func disabledLogger() *Logger {
	return stumpy.L.New(stumpy.L.WithLevel(logiface.LevelDisabled))
}

// logDebugFields emits a debug-level event carrying a single string field,
// guarded by Builder.Enabled so disabled loggers (the default, absent
// WithLogger) pay no formatting cost.
func logDebugFields(l *Logger, msg string, key, val string) {
	if l == nil {
		return
	}
	if b := l.Debug(); b.Enabled() {
		b.Str(key, val).Log(msg)
	}
}

// logError emits an error-level event with an attached error value.
func logError(l *Logger, msg string, err error) {
	if l == nil {
		return
	}
	if b := l.Err(); b.Enabled() {
		b.Err(err).Log(msg)
	}
}
