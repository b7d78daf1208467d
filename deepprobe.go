// Package deepprobe provides a Go library for deep inspection of media files
// with ffmpeg.
//
// A light probe summarizes the container and its streams. A deep probe runs
// the detectors a check requests (silence, black, black and silence, crop,
// scene, text and loudness) and reports what each found per stream, along
// with packet statistics and bitrates.
//
// Basic usage:
//
//	prober, err := deepprobe.New(
//	    deepprobe.WithPreset(deepprobe.PresetStandard),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer prober.Close()
//
//	r, err := prober.Deep(ctx, "input.mxf", nil, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if r.Result == nil {
//	    fmt.Println("file could not be opened")
//	}
package deepprobe

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/five82/deepprobe/internal/annotation"
	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/config"
	"github.com/five82/deepprobe/internal/discovery"
	"github.com/five82/deepprobe/internal/ffmpeg"
	"github.com/five82/deepprobe/internal/ffprobe"
	"github.com/five82/deepprobe/internal/graph"
	"github.com/five82/deepprobe/internal/logging"
	"github.com/five82/deepprobe/internal/metrics"
	"github.com/five82/deepprobe/internal/probe"
	"github.com/five82/deepprobe/internal/processing"
	"github.com/five82/deepprobe/internal/report"
	"github.com/five82/deepprobe/internal/reporter"
	"github.com/five82/deepprobe/internal/store"
)

// Re-export preset types
type Preset = config.Preset

const (
	PresetQuick    = config.PresetQuick
	PresetStandard = config.PresetStandard
	PresetFull     = config.PresetFull
)

// Re-export the check, report and reporter types.
type (
	Check       = check.DeepProbeCheck
	Report      = report.DeepProbeReport
	ProbeResult = report.ProbeResult
	Reporter    = reporter.Reporter
	Entry       = annotation.Entry
	Order       = graph.Order
)

// ParsePreset converts a preset string to a Preset value.
// Valid values are "quick", "standard", and "full" (case-insensitive).
func ParsePreset(s string) (Preset, error) {
	return config.ParsePreset(s)
}

// ParseCheck decodes a check from JSON, or YAML when name ends in .yaml/.yml.
func ParseCheck(name string, data []byte) (*Check, error) {
	return check.Load(name, data)
}

// Prober is the main entry point for probing.
type Prober struct {
	config  *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector
	cache   *store.Store

	provider *ffprobe.CLI
	runner   ffmpeg.Runner
	filters  *ffmpeg.FilterCache
}

// BatchResult contains the result of a batch deep probe.
type BatchResult struct {
	Files           []processing.FileOutcome
	SuccessfulCount int
	NoResultCount   int
	FailedCount     int
	TotalFiles      int
}

// Option configures the prober.
type Option func(*Prober)

// New creates a new Prober with the given options.
func New(opts ...Option) (*Prober, error) {
	p := &Prober{config: config.NewConfig(".", ".", ".")}

	for _, opt := range opts {
		opt(p)
	}

	if err := p.config.Validate(); err != nil {
		return nil, err
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}

	p.provider = ffprobe.NewCLI(p.config.FFprobePath)
	if p.runner == nil {
		p.runner = ffmpeg.NewExecutor(p.logger.Named("ffmpeg"))
	}
	p.filters = &ffmpeg.FilterCache{Binary: p.config.FFmpegPath}

	if p.config.CachePath != "" {
		s, err := store.Open(p.config.CachePath, p.logger.Named("cache"))
		if err != nil {
			return nil, err
		}
		if p.config.CacheMaxAge > 0 {
			if n, err := s.Prune(p.config.CacheMaxAge); err != nil {
				p.logger.Warn("failed to prune report cache", zap.Error(err))
			} else if n > 0 {
				p.logger.Info("pruned report cache", zap.Int64("removed", n))
			}
		}
		p.cache = s
	}

	return p, nil
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg *config.Config) Option {
	return func(p *Prober) {
		c := *cfg
		p.config = &c
	}
}

// WithPreset selects the check used when none is given.
func WithPreset(preset Preset) Option {
	return func(p *Prober) {
		p.config.Preset = &preset
	}
}

// WithFFmpeg sets the ffmpeg binary.
func WithFFmpeg(path string) Option {
	return func(p *Prober) {
		p.config.FFmpegPath = path
	}
}

// WithFFprobe sets the ffprobe binary.
func WithFFprobe(path string) Option {
	return func(p *Prober) {
		p.config.FFprobePath = path
	}
}

// WithWorkers sets how many files a batch probes at once.
func WithWorkers(n int) Option {
	return func(p *Prober) {
		p.config.Workers = n
	}
}

// WithTempDir sets where ffmpeg work directories are created.
func WithTempDir(dir string) Option {
	return func(p *Prober) {
		p.config.TempDir = dir
	}
}

// WithCache keeps deep probe reports in the SQLite database at path.
// Use ":memory:" for a cache that lives as long as the Prober.
func WithCache(path string) Option {
	return func(p *Prober) {
		p.config.CachePath = path
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Prober) {
		p.logger = logger
	}
}

// WithMetrics records probe and detector metrics into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Prober) {
		p.metrics = c
	}
}

// WithRunner replaces the ffmpeg runner.
func WithRunner(r ffmpeg.Runner) Option {
	return func(p *Prober) {
		p.runner = r
	}
}

// Config returns a copy of the effective configuration.
func (p *Prober) Config() config.Config {
	return *p.config
}

// Close releases the report cache.
func (p *Prober) Close() error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Close()
}

// Probe summarizes the container and streams of path.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	result, err := probe.New(path, p.provider).Process(ctx)
	if err != nil {
		p.metrics.RecordProbe("light", metrics.OutcomeError)
		return nil, err
	}
	p.metrics.RecordProbe("light", metrics.OutcomeOK)
	return result, nil
}

// source creates an annotation source sharing the prober's filter list.
func (p *Prober) source() *annotation.FFmpegSource {
	src := annotation.NewFFmpegSource(
		p.config.FFmpegPath,
		logging.FFmpegLevel(p.config.LogLevel),
		p.config.GetTempDir(),
		p.runner,
		p.provider,
		p.logger.Named("annotation"),
	)
	src.Filters = p.filters
	return src
}

// Deep runs the detectors c requests over path. A nil check uses the
// configured preset; a nil reporter discards progress. A file that cannot
// be opened yields a report with a nil Result and no error.
func (p *Prober) Deep(ctx context.Context, path string, c *Check, rep Reporter) (*Report, error) {
	if c == nil {
		c = p.config.Check()
	}
	src := p.source()
	d := probe.NewDeep(path, p.provider, src)
	d.Logger = p.logger.Named("probe")
	d.Metrics = p.metrics
	d.Reporter = rep
	if p.cache != nil {
		d.Cache = p.cache
	}
	src.Progress = d.Progress
	return d.Process(ctx, c)
}

// DeepBatch deep probes paths with the configured number of workers. When
// outputDir is set, one report per file is written there in format.
func (p *Prober) DeepBatch(ctx context.Context, paths []string, c *Check, outputDir string, format report.Format, rep Reporter) (*BatchResult, error) {
	if c == nil {
		c = p.config.Check()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	outcomes, err := processing.ProbeFiles(ctx, paths,
		func(ctx context.Context, path string, fileRep reporter.Reporter) (*report.DeepProbeReport, error) {
			return p.Deep(ctx, path, c, fileRep)
		},
		processing.Options{
			Workers:   p.config.Workers,
			OutputDir: outputDir,
			Format:    format,
			Logger:    p.logger.Named("batch"),
		}, rep)

	batch := &BatchResult{Files: outcomes, TotalFiles: len(paths)}
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			batch.FailedCount++
		case o.Opened():
			batch.SuccessfulCount++
		default:
			batch.NoResultCount++
		}
	}
	return batch, err
}

// RunGraph executes an analysis order and calls fn for every annotation,
// in presentation order. It returns the number of annotations seen.
func (p *Prober) RunGraph(ctx context.Context, order *Order, fn func(Entry)) (int, error) {
	src := p.source()
	if err := order.Setup(src); err != nil {
		return 0, err
	}
	seq, err := src.Process(ctx, order)
	if err != nil {
		return 0, err
	}
	defer func() { _ = seq.Close() }()
	return annotation.Each(seq, p.logger, fn)
}

// FindMediaFiles finds media files in a directory.
func FindMediaFiles(dir string) ([]string, error) {
	result, err := discovery.FindMediaFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to discover media files: %w", err)
	}
	return result.Files, nil
}
