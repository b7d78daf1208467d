package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileLog is a run log written to a timestamped file.
type FileLog struct {
	logger   *zap.Logger
	core     zapcore.Core
	file     *os.File
	filePath string
}

// Setup creates a run log in logDir. Returns nil if logging is disabled
// (noLog=true).
func Setup(logDir string, verbose, noLog bool) (*FileLog, error) {
	if noLog {
		return nil, nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("deepprobe_run_%s.log", timestamp)
	filePath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", filePath, err)
	}

	level := "info"
	if verbose {
		level = "debug"
	}
	core := newCore(Config{Level: level, Format: FormatJSON, Output: file, Enabled: true})

	l := &FileLog{
		logger:   zap.New(core),
		core:     core,
		file:     file,
		filePath: filePath,
	}

	l.logger.Info("deepprobe starting")
	if verbose {
		l.logger.Info("debug level logging enabled")
	}
	l.logger.Info("log file", zap.String("path", filePath))

	return l, nil
}

// Tee returns a logger writing to both console and the run log. A nil
// FileLog leaves console unchanged.
func (l *FileLog) Tee(console *zap.Logger) *zap.Logger {
	if l == nil {
		return console
	}
	return zap.New(zapcore.NewTee(console.Core(), l.core))
}

// Logger returns the logger of the run log.
func (l *FileLog) Logger() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.logger
}

// Close flushes and closes the log file.
func (l *FileLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = l.logger.Sync()
	return l.file.Close()
}

// FilePath returns the path to the log file.
func (l *FileLog) FilePath() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// Writer returns an io.Writer that writes to the log file.
func (l *FileLog) Writer() io.Writer {
	if l == nil || l.file == nil {
		return io.Discard
	}
	return l.file
}
