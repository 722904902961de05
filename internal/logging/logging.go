package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger = zap.SugaredLogger

func New() *Logger {
	l, _ := zap.NewProduction()
	return l.Sugar()
}

// NewWithLevel builds a production logger at the named level (debug, info,
// warn, error). An empty level means info.
func NewWithLevel(level string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// Nop discards everything. Used by tests and library callers without a
// logger of their own.
func Nop() *Logger {
	return zap.NewNop().Sugar()
}
