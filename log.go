package examgen

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logMu    sync.RWMutex
	logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger   = newLogger()
)

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Level = logLevel
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// Log returns the package logger
func Log() *zap.SugaredLogger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// SetLogger replaces the package logger, e.g. with zap.NewNop() in tests
func SetLogger(l *zap.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	logger = l.Sugar()
}

// SetVerbose switches debug output on or off
func SetVerbose(verbose bool) {
	if verbose {
		logLevel.SetLevel(zapcore.DebugLevel)
	} else {
		logLevel.SetLevel(zapcore.InfoLevel)
	}
}

// SetLogLevel sets the level by name (debug, info, warn, error)
func SetLogLevel(level string) error {
	return logLevel.UnmarshalText([]byte(level))
}

// VerboseLog logs only when verbose mode is enabled
func VerboseLog(format string, v ...interface{}) {
	Log().Debugf(format, v...)
}

// Sync flushes buffered log entries
func Sync() {
	_ = Log().Sync()
}
