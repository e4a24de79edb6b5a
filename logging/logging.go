// Package logging - Construction of the process-wide zap logger.
package logging

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the log level and encoding.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" toml:"level"`
	// Development switches to the colored console encoder with caller info.
	Development bool `yaml:"development" toml:"development"`
	// Outputs are zap sink URLs or paths, stdout when empty.
	Outputs []string `yaml:"outputs" toml:"outputs"`
}

// DefaultConfig returns info level JSON logging to stdout.
func DefaultConfig() Config {
	return Config{Level: "info"}
}

// NewLoggerConfig returns the zap configuration for c.
//
// Arguments:
//   - c: The logging configuration.
//
// Returns:
//   - zap.Config: The zap configuration.
//   - error: An error if the level cannot be parsed.
func NewLoggerConfig(c Config) (zap.Config, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return zap.Config{}, errors.Wrapf(err, "invalid log level %q", c.Level)
	}

	outputs := c.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	cfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
	}
	if c.Development {
		cfg.Development = true
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg, nil
}

// New builds a named logger from c.
func New(name string, c Config) (*zap.Logger, error) {
	cfg, err := NewLoggerConfig(c)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return logger.Named(name), nil
}
