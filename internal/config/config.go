// Package config provides configuration types and defaults for deepprobe.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/logging"
	"github.com/five82/deepprobe/internal/report"
	"github.com/five82/deepprobe/internal/util"
)

// Default constants
const (
	// DefaultFFmpegPath is the ffmpeg binary looked up in PATH.
	DefaultFFmpegPath = "ffmpeg"

	// DefaultFFprobePath is the ffprobe binary looked up in PATH.
	DefaultFFprobePath = "ffprobe"

	// DefaultLogLevel is the console log level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the console log format.
	DefaultLogFormat = logging.FormatConsole

	// DefaultReportFormat is the encoding of written reports.
	DefaultReportFormat = report.FormatJSON

	// DefaultStaleTempAge is how old a leftover work directory must be before
	// it is removed at startup.
	DefaultStaleTempAge = 24 * time.Hour

	// DefaultCacheMaxAge is how long an unrefreshed cached report is kept.
	DefaultCacheMaxAge = 30 * 24 * time.Hour

	// DefaultMetricsNamespace prefixes every exported metric.
	DefaultMetricsNamespace = "deepprobe"

	// MaxWorkers is the maximum number of files probed at once.
	MaxWorkers = 64

	// EnvPrefix prefixes the environment overrides.
	EnvPrefix = "DEEPPROBE"
)

// Preset is a named detector selection.
type Preset string

const (
	PresetQuick    Preset = "quick"
	PresetStandard Preset = "standard"
	PresetFull     Preset = "full"
)

// ParsePreset parses a string into a Preset.
func ParsePreset(s string) (Preset, error) {
	switch strings.ToLower(s) {
	case "quick":
		return PresetQuick, nil
	case "standard":
		return PresetStandard, nil
	case "full":
		return PresetFull, nil
	default:
		return "", fmt.Errorf("%w: '%s', valid options: quick, standard, full", ErrInvalidPreset, s)
	}
}

// String returns the string representation of the preset.
func (p Preset) String() string {
	return string(p)
}

// PresetCheck returns the check a preset stands for. Quick looks for gaps
// in picture and sound, standard adds borders and cuts, full runs every
// detector.
func PresetCheck(p Preset) *check.DeepProbeCheck {
	gap := check.Parameters{"duration": {Min: check.Uint64(2000)}}
	quick := &check.DeepProbeCheck{
		SilenceDetect:         gap,
		BlackDetect:           gap,
		BlackAndSilenceDetect: check.Parameters{"duration": {Min: check.Uint64(1000)}},
	}
	switch p {
	case PresetQuick:
		return quick
	case PresetStandard:
		quick.CropDetect = check.Parameters{"spot_check": {Max: check.Uint64(10)}}
		quick.SceneDetect = check.Parameters{"threshold": {Th: check.Float64(10)}}
		return quick
	case PresetFull:
		full := PresetCheck(PresetStandard)
		full.OcrDetect = check.Parameters{
			"sample_rate": {Num: check.Uint64(1), Den: check.Uint64(1)},
			"confidence":  {Th: check.Float64(80)},
		}
		full.LoudnessDetect = check.Parameters{}
		return full
	default:
		return PresetCheck(PresetStandard)
	}
}

// Config holds all configuration for probing.
type Config struct {
	// Input/output paths
	InputDir  string `yaml:"-"`
	OutputDir string `yaml:"output_dir,omitempty"`
	LogDir    string `yaml:"log_dir,omitempty"`
	TempDir   string `yaml:"temp_dir,omitempty"` // Optional, defaults to the system temp dir

	// External tools
	FFmpegPath  string `yaml:"ffmpeg,omitempty"`
	FFprobePath string `yaml:"ffprobe,omitempty"`

	// Logging
	LogLevel  string `yaml:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"`

	// Reports
	ReportFormat report.Format `yaml:"report_format,omitempty"`
	CachePath    string        `yaml:"cache,omitempty"`        // Empty disables the report cache
	CacheMaxAge  time.Duration `yaml:"cache_max_age,omitempty"`
	MetricsFile  string        `yaml:"metrics_file,omitempty"` // Optional Prometheus textfile

	// Processing options
	Workers      int           `yaml:"workers,omitempty"`
	StaleTempAge time.Duration `yaml:"stale_temp_age,omitempty"`

	// Selected preset (optional)
	Preset *Preset `yaml:"preset,omitempty"`
}

// NewConfig creates a new Config with default values.
func NewConfig(inputDir, outputDir, logDir string) *Config {
	return &Config{
		InputDir:     inputDir,
		OutputDir:    outputDir,
		LogDir:       logDir,
		FFmpegPath:   DefaultFFmpegPath,
		FFprobePath:  DefaultFFprobePath,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		ReportFormat: DefaultReportFormat,
		CacheMaxAge:  DefaultCacheMaxAge,
		Workers:      util.DefaultWorkers(),
		StaleTempAge: DefaultStaleTempAge,
	}
}

// Validate checks the configuration for errors and normalizes the report
// format name.
func (c *Config) Validate() error {
	if c.Workers < 1 || c.Workers > MaxWorkers {
		return fmt.Errorf("%w: must be 1-%d, got %d", ErrInvalidWorkers, MaxWorkers, c.Workers)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: '%s', valid options: debug, info, warn, error", ErrInvalidLogLevel, c.LogLevel)
	}

	if c.LogFormat != logging.FormatConsole && c.LogFormat != logging.FormatJSON {
		return fmt.Errorf("%w: '%s', valid options: console, json", ErrInvalidLogFormat, c.LogFormat)
	}

	format, err := report.ParseFormat(string(c.ReportFormat))
	if err != nil {
		return fmt.Errorf("%w: '%s', valid options: json, yaml, msgpack, text", ErrInvalidReportFormat, c.ReportFormat)
	}
	c.ReportFormat = format

	if c.Preset != nil {
		if _, err := ParsePreset(string(*c.Preset)); err != nil {
			return err
		}
	}

	if c.FFmpegPath == "" || c.FFprobePath == "" {
		return fmt.Errorf("%w: ffmpeg and ffprobe paths must not be empty", ErrMissingBinary)
	}

	return nil
}

// GetTempDir returns the temp directory, falling back to the system temp
// directory if not set.
func (c *Config) GetTempDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return os.TempDir()
}

// Check returns the check of the selected preset, or the standard check.
func (c *Config) Check() *check.DeepProbeCheck {
	if c.Preset == nil {
		return PresetCheck(PresetStandard)
	}
	return PresetCheck(*c.Preset)
}

// DefaultLogDir returns the per-user log directory.
func DefaultLogDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "deepprobe", "logs")
	}
	return filepath.Join(os.TempDir(), "deepprobe", "logs")
}
