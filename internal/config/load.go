package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/five82/deepprobe/internal/report"
)

// LoadFile overlays the YAML file at path onto cfg. A missing file leaves
// cfg unchanged; unknown keys are rejected.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfigFile, path, err)
	}
	return nil
}

// ApplyEnv overlays DEEPPROBE_* variables onto cfg. lookup is os.LookupEnv
// outside tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + "_" + name); ok && v != "" {
			*dst = v
		}
	}
	str("FFMPEG", &cfg.FFmpegPath)
	str("FFPROBE", &cfg.FFprobePath)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("LOG_DIR", &cfg.LogDir)
	str("TEMP_DIR", &cfg.TempDir)
	str("CACHE", &cfg.CachePath)
	str("METRICS_FILE", &cfg.MetricsFile)

	if v, ok := lookup(EnvPrefix + "_FORMAT"); ok && v != "" {
		cfg.ReportFormat = report.Format(v)
	}
	if v, ok := lookup(EnvPrefix + "_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s_WORKERS=%q", ErrInvalidWorkers, EnvPrefix, v)
		}
		cfg.Workers = n
	}
	if v, ok := lookup(EnvPrefix + "_CACHE_MAX_AGE"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s_CACHE_MAX_AGE=%q", ErrInvalidConfigFile, EnvPrefix, v)
		}
		cfg.CacheMaxAge = d
	}
	if v, ok := lookup(EnvPrefix + "_PRESET"); ok && v != "" {
		p, err := ParsePreset(v)
		if err != nil {
			return err
		}
		cfg.Preset = &p
	}
	return nil
}

// Load builds a configuration from defaults, the optional file at path and
// the environment, then validates it.
func Load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := NewConfig(".", ".", DefaultLogDir())
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
