// Package rflog owns the process-wide structured logging sink. It is
// initialized once at startup by each cmd/ main() and never reconfigured —
// there is exactly one global logger per process, matching the coordination
// core's "global state" design note.
package rflog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.Mutex
	current *zap.SugaredLogger = zap.NewNop().Sugar()
)

// Init installs the process-wide logger. verbose raises the level from
// info to debug, matching the -v/--verbose CLI flag.
func Init(verbose bool) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	l, err := cfg.Build()
	if err != nil {
		// Logger construction failing is itself an init failure; fall back to
		// a minimal logger rather than leaving the process silent.
		l = zap.NewExample()
	}

	mu.Lock()
	current = l.Sugar()
	mu.Unlock()
}

// L returns the process-wide logger.
func L() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// Sync flushes any buffered log entries. Call it before process exit.
func Sync() {
	_ = L().Sync()
}
