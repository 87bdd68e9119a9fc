package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a new zap logger. Development mode uses colored console
// output; production mode emits JSON. Verbose lowers the level to debug.
func New(development, verbose bool) (*zap.Logger, error) {
	var cfg zap.Config

	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	return cfg.Build()
}

// Must creates a logger or panics
func Must(development, verbose bool) *zap.Logger {
	log, err := New(development, verbose)
	if err != nil {
		panic(err)
	}
	return log
}
