// Package logging builds the service's structured zap logger.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the logger's component name and minimum level.
type Config struct {
	// Component is attached to every entry, e.g. "worker" or "cli".
	Component string
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Output defaults to stdout.
	Output io.Writer
}

// NewLogger returns a JSON logger with severity, timestamp and message keys.
func NewLogger(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, err
		}
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "severity",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
	})

	logger := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(out), level), zap.AddCaller())
	if cfg.Component != "" {
		logger = logger.With(zap.String("component", cfg.Component))
	}
	return logger, nil
}
