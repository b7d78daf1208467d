package config

import "errors"

// Sentinel errors for configuration validation.
var (
	// ErrInvalidPreset indicates an unknown preset name was provided.
	ErrInvalidPreset = errors.New("invalid preset")

	// ErrInvalidWorkers indicates a worker count outside the valid range.
	ErrInvalidWorkers = errors.New("worker count out of range")

	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidLogFormat indicates an unknown log format.
	ErrInvalidLogFormat = errors.New("invalid log format")

	// ErrInvalidReportFormat indicates an unknown report format.
	ErrInvalidReportFormat = errors.New("invalid report format")

	// ErrMissingBinary indicates an empty ffmpeg or ffprobe path.
	ErrMissingBinary = errors.New("missing binary path")

	// ErrInvalidConfigFile indicates a malformed configuration file or value.
	ErrInvalidConfigFile = errors.New("invalid configuration file")
)
