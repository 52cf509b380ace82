package tracing

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig selects how NewLogger builds a logger.
type LoggerConfig struct {
	// Level is a zap level name such as "debug" or "info".
	Level string

	// Format is either "console" or "json".
	Format string

	InitialFields []zap.Field
}

// NewLogger builds a zap logger that writes to stderr.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("error parsing log level: %w", err)
	}

	encoding := cfg.Format
	if encoding == "" {
		encoding = "console"
	}

	config := zap.Config{
		Level:             level,
		DisableStacktrace: true,
		Encoding:          encoding,
		EncoderConfig:     GetEncoderConfig(zapcore.DefaultLineEnding),
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}

	logger, err := config.Build(zap.Fields(cfg.InitialFields...))
	if err != nil {
		return nil, fmt.Errorf("error building logger: %w", err)
	}

	return logger, nil
}

// GetEncoderConfig returns the encoder settings shared by all shadowmem
// loggers.
func GetEncoderConfig(lineEnding string) zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "timestamp",
		MessageKey:    "message",
		LevelKey:      "level",
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
		NameKey:       "logger",
		StacktraceKey: "stacktrace",
		EncodeTime:    zapcore.RFC3339TimeEncoder,
		LineEnding:    lineEnding,
	}
}
