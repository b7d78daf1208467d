package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/five82/deepprobe/internal/report"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/input", "/output", "/log")

	if cfg.InputDir != "/input" {
		t.Errorf("expected InputDir=/input, got %s", cfg.InputDir)
	}
	if cfg.FFprobePath != DefaultFFprobePath {
		t.Errorf("expected FFprobePath=%s, got %s", DefaultFFprobePath, cfg.FFprobePath)
	}
	if cfg.ReportFormat != DefaultReportFormat {
		t.Errorf("expected ReportFormat=%s, got %s", DefaultReportFormat, cfg.ReportFormat)
	}
	if cfg.Workers < 1 {
		t.Errorf("expected at least one worker, got %d", cfg.Workers)
	}
	if cfg.StaleTempAge != DefaultStaleTempAge {
		t.Errorf("expected StaleTempAge=%v, got %v", DefaultStaleTempAge, cfg.StaleTempAge)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		modify       func(*Config)
		wantErr      bool
		wantSentinel error
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:         "zero workers",
			modify:       func(c *Config) { c.Workers = 0 },
			wantErr:      true,
			wantSentinel: ErrInvalidWorkers,
		},
		{
			name:         "too many workers",
			modify:       func(c *Config) { c.Workers = MaxWorkers + 1 },
			wantErr:      true,
			wantSentinel: ErrInvalidWorkers,
		},
		{
			name:         "unknown log level",
			modify:       func(c *Config) { c.LogLevel = "chatty" },
			wantErr:      true,
			wantSentinel: ErrInvalidLogLevel,
		},
		{
			name:         "unknown log format",
			modify:       func(c *Config) { c.LogFormat = "xml" },
			wantErr:      true,
			wantSentinel: ErrInvalidLogFormat,
		},
		{
			name:         "unknown report format",
			modify:       func(c *Config) { c.ReportFormat = "csv" },
			wantErr:      true,
			wantSentinel: ErrInvalidReportFormat,
		},
		{
			name:         "empty ffprobe path",
			modify:       func(c *Config) { c.FFprobePath = "" },
			wantErr:      true,
			wantSentinel: ErrMissingBinary,
		},
		{
			name: "unknown preset",
			modify: func(c *Config) {
				p := Preset("slow")
				c.Preset = &p
			},
			wantErr:      true,
			wantSentinel: ErrInvalidPreset,
		},
		{
			name:    "warning is an accepted level",
			modify:  func(c *Config) { c.LogLevel = "WARNING" },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/input", "/output", "/log")
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantSentinel != nil && !errors.Is(err, tt.wantSentinel) {
				t.Errorf("Validate() error = %v, want sentinel %v", err, tt.wantSentinel)
			}
		})
	}
}

func TestValidateNormalizesReportFormat(t *testing.T) {
	cfg := NewConfig("/input", "/output", "/log")
	cfg.ReportFormat = "yml"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.ReportFormat != report.FormatYAML {
		t.Errorf("expected ReportFormat=%s, got %s", report.FormatYAML, cfg.ReportFormat)
	}
}

func TestParsePreset(t *testing.T) {
	tests := []struct {
		input        string
		want         Preset
		wantErr      bool
		wantSentinel error
	}{
		{"quick", PresetQuick, false, nil},
		{"QUICK", PresetQuick, false, nil},
		{"standard", PresetStandard, false, nil},
		{"Standard", PresetStandard, false, nil},
		{"full", PresetFull, false, nil},
		{"invalid", "", true, ErrInvalidPreset},
		{"", "", true, ErrInvalidPreset},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePreset(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParsePreset(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if tt.wantSentinel != nil && !errors.Is(err, tt.wantSentinel) {
				t.Errorf("ParsePreset(%q) error = %v, want sentinel %v", tt.input, err, tt.wantSentinel)
			}
			if got != tt.want {
				t.Errorf("ParsePreset(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPresetCheck(t *testing.T) {
	quick := PresetCheck(PresetQuick).Enabled()
	standard := PresetCheck(PresetStandard).Enabled()
	full := PresetCheck(PresetFull).Enabled()

	if len(quick) != 3 {
		t.Errorf("expected quick to run 3 detectors, got %v", quick)
	}
	if len(standard) != 5 {
		t.Errorf("expected standard to run 5 detectors, got %v", standard)
	}
	if len(full) != 7 {
		t.Errorf("expected full to run every detector, got %v", full)
	}

	for _, p := range []Preset{PresetQuick, PresetStandard, PresetFull} {
		if err := PresetCheck(p).Validate(); err != nil {
			t.Errorf("preset %s produced an invalid check: %v", p, err)
		}
	}

	// Each call returns a fresh check.
	a, b := PresetCheck(PresetQuick), PresetCheck(PresetQuick)
	a.SilenceDetect["noise"] = a.SilenceDetect["duration"]
	if _, ok := b.SilenceDetect["noise"]; ok {
		t.Error("expected preset checks not to share parameters")
	}
}

func TestConfigCheckDefaultsToStandard(t *testing.T) {
	cfg := NewConfig("/input", "/output", "/log")
	if cfg.Check().Hash() != PresetCheck(PresetStandard).Hash() {
		t.Error("expected the standard check when no preset is selected")
	}

	p := PresetFull
	cfg.Preset = &p
	if cfg.Check().Hash() != PresetCheck(PresetFull).Hash() {
		t.Error("expected the full check for the full preset")
	}
}

func TestGetTempDir(t *testing.T) {
	cfg := NewConfig("/input", "/output", "/log")
	if cfg.GetTempDir() != os.TempDir() {
		t.Errorf("expected system temp dir, got %s", cfg.GetTempDir())
	}
	cfg.TempDir = "/scratch"
	if cfg.GetTempDir() != "/scratch" {
		t.Errorf("expected /scratch, got %s", cfg.GetTempDir())
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deepprobe.yaml")
	data := "ffprobe: /opt/bin/ffprobe\nworkers: 3\nreport_format: yaml\npreset: full\ncache_max_age: 48h\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewConfig("/input", "/output", "/log")
	if err := LoadFile(cfg, path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.FFprobePath != "/opt/bin/ffprobe" {
		t.Errorf("expected FFprobePath from file, got %s", cfg.FFprobePath)
	}
	if cfg.FFmpegPath != DefaultFFmpegPath {
		t.Errorf("expected FFmpegPath to keep its default, got %s", cfg.FFmpegPath)
	}
	if cfg.Workers != 3 {
		t.Errorf("expected Workers=3, got %d", cfg.Workers)
	}
	if cfg.Preset == nil || *cfg.Preset != PresetFull {
		t.Errorf("expected preset full, got %v", cfg.Preset)
	}
	if cfg.CacheMaxAge != 48*time.Hour {
		t.Errorf("expected CacheMaxAge=48h, got %v", cfg.CacheMaxAge)
	}
}

func TestLoadFileMissingIsIgnored(t *testing.T) {
	cfg := NewConfig("/input", "/output", "/log")
	if err := LoadFile(cfg, filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Errorf("expected a missing file to be ignored, got %v", err)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("crf: 27\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := LoadFile(NewConfig("/input", "/output", "/log"), path)
	if !errors.Is(err, ErrInvalidConfigFile) {
		t.Errorf("expected ErrInvalidConfigFile, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DEEPPROBE_FFMPEG":    "/usr/local/bin/ffmpeg",
		"DEEPPROBE_WORKERS":   "2",
		"DEEPPROBE_FORMAT":    "msgpack",
		"DEEPPROBE_PRESET":    "quick",
		"DEEPPROBE_LOG_LEVEL": "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := NewConfig("/input", "/output", "/log")
	if err := ApplyEnv(cfg, lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.FFmpegPath != "/usr/local/bin/ffmpeg" {
		t.Errorf("expected FFmpegPath from env, got %s", cfg.FFmpegPath)
	}
	if cfg.Workers != 2 {
		t.Errorf("expected Workers=2, got %d", cfg.Workers)
	}
	if cfg.ReportFormat != report.FormatMsgpack {
		t.Errorf("expected msgpack, got %s", cfg.ReportFormat)
	}
	if cfg.Preset == nil || *cfg.Preset != PresetQuick {
		t.Errorf("expected preset quick, got %v", cfg.Preset)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("expected an empty variable to be ignored, got %s", cfg.LogLevel)
	}
}

func TestApplyEnvRejectsBadWorkers(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "DEEPPROBE_WORKERS" {
			return "many", true
		}
		return "", false
	}
	err := ApplyEnv(NewConfig("/input", "/output", "/log"), lookup)
	if !errors.Is(err, ErrInvalidWorkers) {
		t.Errorf("expected ErrInvalidWorkers, got %v", err)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deepprobe.yaml")
	if err := os.WriteFile(path, []byte("workers: 3\nlog_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lookup := func(k string) (string, bool) {
		if k == "DEEPPROBE_WORKERS" {
			return "5", true
		}
		return "", false
	}

	cfg, err := Load(path, lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workers != 5 {
		t.Errorf("expected the environment to win, got Workers=%d", cfg.Workers)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected the file to override the default, got %s", cfg.LogLevel)
	}
}
