// Package logging builds the zap loggers of deepprobe.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Formats of the console logger.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config contains logger configuration options.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level   string
	Format  string
	Output  io.Writer
	Enabled bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Format:  FormatConsole,
		Output:  os.Stderr,
		Enabled: true,
	}
}

// ParseLevel maps a level name to a zap level. Unknown names mean info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// FFmpegLevel maps a log level to the matching ffmpeg -v level.
func FFmpegLevel(s string) string {
	switch ParseLevel(s) {
	case zapcore.DebugLevel:
		return "info"
	case zapcore.WarnLevel:
		return "warning"
	default:
		return "error"
	}
}

// New creates a logger with the given configuration.
func New(cfg Config) *zap.Logger {
	if !cfg.Enabled {
		return zap.NewNop()
	}
	return zap.New(newCore(cfg))
}

func newCore(cfg Config) zapcore.Core {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var encoder zapcore.Encoder
	if cfg.Format == FormatJSON {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewCore(encoder, zapcore.AddSync(output), ParseLevel(cfg.Level))
}
