// Package logging builds the zap loggers used by the validators and the
// command line tool.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Encodings accepted in Config.Format.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config selects the logger output.
type Config struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string `mapstructure:"level"`

	// Format is FormatJSON or FormatConsole.
	Format string `mapstructure:"format"`

	// Outputs are zap sink URLs or paths. Empty means stderr.
	Outputs []string `mapstructure:"outputs"`
}

// DefaultConfig returns JSON logging at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Format:  FormatJSON,
		Outputs: []string{"stderr"},
	}
}

// ParseLevel returns the level named s.
func ParseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("logging: unknown level %q", s)
}

// New builds a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var logConfig zap.Config
	switch cfg.Format {
	case "", FormatJSON:
		logConfig = zap.NewProductionConfig()
		logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case FormatConsole:
		logConfig = zap.NewDevelopmentConfig()
		logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}
	logConfig.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.Outputs) > 0 {
		logConfig.OutputPaths = cfg.Outputs
	}

	logger, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
