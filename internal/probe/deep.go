package probe

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/five82/deepprobe/internal/annotation"
	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/detect"
	"github.com/five82/deepprobe/internal/errors"
	"github.com/five82/deepprobe/internal/ffmpeg"
	"github.com/five82/deepprobe/internal/ffprobe"
	"github.com/five82/deepprobe/internal/graph"
	"github.com/five82/deepprobe/internal/metrics"
	"github.com/five82/deepprobe/internal/report"
	"github.com/five82/deepprobe/internal/reporter"
	"github.com/five82/deepprobe/internal/util"
)

// Cache stores deep probe reports of unchanged files.
type Cache interface {
	Lookup(path string, c *check.DeepProbeCheck) (*report.DeepProbeReport, bool)
	Store(path string, c *check.DeepProbeCheck, r *report.DeepProbeReport) error
}

// DeepProbe runs the requested detectors over one file. An instance owns
// its result accumulator and must not be shared between goroutines while
// Process runs.
type DeepProbe struct {
	Path      string
	Provider  ffprobe.Provider
	Source    annotation.Source
	Env       graph.Environment
	Detectors map[string]detect.Detector
	Logger    *zap.Logger
	Metrics   *metrics.Collector
	Reporter  reporter.Reporter
	Cache     Cache

	mu      sync.Mutex
	current string
}

// NewDeep creates a deep probe of path. The detectors default to the full
// registry with the annotation-backed text recognizer.
func NewDeep(path string, provider ffprobe.Provider, source annotation.Source) *DeepProbe {
	d := &DeepProbe{
		Path:      path,
		Provider:  provider,
		Source:    source,
		Detectors: detect.Registry(nil),
	}
	if env, ok := source.(graph.Environment); ok {
		d.Env = env
	}
	return d
}

func (d *DeepProbe) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *DeepProbe) reporter() reporter.Reporter {
	if d.Reporter == nil {
		return reporter.NullReporter{}
	}
	return d.Reporter
}

// Progress forwards ffmpeg progress of the running detector to the
// reporter. It is meant to be installed as the progress callback of the
// annotation source.
func (d *DeepProbe) Progress(p ffmpeg.Progress) {
	d.mu.Lock()
	name := d.current
	d.mu.Unlock()
	d.reporter().DetectorProgress(reporter.ProgressSnapshot{
		Detector:     name,
		CurrentFrame: p.CurrentFrame,
		Percent:      p.Percent,
		Speed:        p.Speed,
		FPS:          p.FPS,
		ETA:          p.ETA,
	})
}

func (d *DeepProbe) setCurrent(name string) {
	d.mu.Lock()
	d.current = name
	d.mu.Unlock()
}

// Process runs the detectors c requests. A malformed check fails before
// anything is opened. A file that cannot be opened is not an error: the
// returned report has a nil Result.
func (d *DeepProbe) Process(ctx context.Context, c *check.DeepProbeCheck) (*report.DeepProbeReport, error) {
	if c == nil {
		c = &check.DeepProbeCheck{}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	plan, err := buildPlan(c, d.Detectors)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out := &report.DeepProbeReport{Filename: d.Path, RunID: uuid.NewString()}
	log := d.logger().With(zap.String("run_id", out.RunID), zap.String("file", d.Path))
	rep := d.reporter()

	if d.Cache != nil {
		cached, hit := d.Cache.Lookup(d.Path, c)
		d.Metrics.RecordCacheLookup(hit)
		if hit {
			log.Info("using cached report", zap.String("cached_run_id", cached.RunID))
			cached.Filename = d.Path
			d.Metrics.RecordProbe("deep", metrics.OutcomeOK)
			rep.ProbeComplete(outcomeOf(cached, true, time.Since(start)))
			return cached, nil
		}
	}

	media, err := d.Provider.Probe(ctx, d.Path)
	if err != nil {
		return d.noResult(ctx, out, log, err, start)
	}

	streams := make([]report.StreamProbeResult, 0, len(media.Streams))
	for _, info := range media.Streams {
		streams = append(streams, report.NewStreamProbeResult(info.Index))
	}
	payload, err := d.scanPackets(ctx, media, streams, log)
	if err != nil {
		return d.noResult(ctx, out, log, err, start)
	}

	run := &detect.Run{
		Path:    d.Path,
		Media:   media,
		Streams: streams,
		Source:  d.Source,
		Env:     d.Env,
		Logger:  log,
		Metrics: d.Metrics,
	}
	for _, info := range media.Streams {
		switch {
		case info.IsAudio():
			run.AudioIndexes = append(run.AudioIndexes, info.Index)
		case info.IsVideo():
			run.VideoIndexes = append(run.VideoIndexes, info.Index)
		}
	}

	rep.Initialization(reporter.InitializationSummary{
		InputFile:    util.GetFilename(d.Path),
		Container:    media.Format.FormatName,
		Duration:     util.FormatDurationFromSecs(int64(media.Format.Duration)),
		VideoStreams: len(run.VideoIndexes),
		AudioStreams: len(run.AudioIndexes),
		Detectors:    names(plan),
	})

	for _, s := range plan {
		if err := d.runStep(ctx, run, s, log); err != nil {
			return nil, err
		}
	}
	d.setCurrent("")
	dropImplied(run.Streams, plan)

	result := &report.DeepProbeResult{Streams: run.Streams}
	attachBitrates(result, media, payload)
	out.Result = result

	d.Metrics.RecordProbe("deep", metrics.OutcomeOK)
	if d.Cache != nil {
		if err := d.Cache.Store(d.Path, c, out); err != nil {
			log.Warn("failed to cache report", zap.Error(err))
		}
	}
	rep.ProbeComplete(outcomeOf(out, false, time.Since(start)))
	log.Info("deep probe complete",
		zap.Int("streams", len(result.Streams)),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// noResult turns an open failure into an empty report. Cancellation is
// still returned as an error.
func (d *DeepProbe) noResult(ctx context.Context, out *report.DeepProbeReport, log *zap.Logger, err error, start time.Time) (*report.DeepProbeReport, error) {
	if ctx.Err() != nil || errors.IsCancelled(err) {
		d.Metrics.RecordProbe("deep", metrics.OutcomeError)
		return nil, errors.NewCancelledError()
	}
	log.Warn("cannot open file, no result", zap.Error(err))
	d.Metrics.RecordProbe("deep", metrics.OutcomeNoResult)
	d.reporter().Warning(fmt.Sprintf("Cannot open %s: %v", util.GetFilename(d.Path), err))
	d.reporter().ProbeComplete(outcomeOf(out, false, time.Since(start)))
	return out, nil
}

// scanPackets folds every demuxed packet into the per-stream statistics and
// returns the payload bytes seen per stream index.
func (d *DeepProbe) scanPackets(ctx context.Context, media *ffprobe.MediaInfo, streams []report.StreamProbeResult, log *zap.Logger) (map[int]int64, error) {
	reader, err := d.Provider.Packets(ctx, d.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			log.Debug("packet reader closed with error", zap.Error(cerr))
		}
	}()

	byIndex := make(map[int]*report.StreamProbeResult, len(streams))
	for i := range streams {
		byIndex[streams[i].StreamIndex] = &streams[i]
	}

	payload := make(map[int]int64)
	total := 0
	for {
		pkt, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.IsKind(err, errors.KindDecode) {
				log.Debug("skipping unreadable packet", zap.Error(err))
				continue
			}
			if ctx.Err() != nil {
				return nil, errors.NewCancelledError()
			}
			log.Warn("packet scan stopped early", zap.Error(err), zap.Int("packets", total))
			break
		}
		s, ok := byIndex[pkt.StreamIndex]
		if !ok {
			continue
		}
		s.ObservePacket(int32(min(pkt.Size, math.MaxInt32)))
		payload[pkt.StreamIndex] += pkt.Size
		total++
		if info, ok := media.Stream(pkt.StreamIndex); ok && info.IsVideo() {
			setColor(s, info.Color)
		}
	}
	d.Metrics.RecordPackets(total)
	log.Debug("packets scanned", zap.Int("packets", total))
	return payload, nil
}

// setColor overwrites the color metadata of a video stream.
func setColor(s *report.StreamProbeResult, c ffprobe.ColorInfo) {
	s.ColorSpace = optional(c.Space)
	s.ColorRange = optional(c.Range)
	s.ColorPrimaries = optional(c.Primaries)
	s.ColorTrc = optional(c.Transfer)
	s.ColorMatrix = optional(c.Matrix)
}

func optional(v string) *string {
	if v == "" || v == "unknown" {
		return nil
	}
	return &v
}

// runStep runs one detector. A failing detector is logged and its partial
// results are discarded; only cancellation stops the plan.
func (d *DeepProbe) runStep(ctx context.Context, run *detect.Run, s step, log *zap.Logger) error {
	rep := d.reporter()
	d.setCurrent(s.name)
	rep.DetectorStarted(reporter.DetectorStart{Name: s.name, Streams: detectorStreams(s.name, run)})

	saved := make([]report.StreamProbeResult, len(run.Streams))
	before := 0
	for i, st := range run.Streams {
		saved[i] = st.Clone()
		before += st.ResultCount()
	}

	started := time.Now()
	err := s.detector.Detect(ctx, run, s.params)
	elapsed := time.Since(started)

	if err != nil {
		run.Streams = saved
		d.Metrics.RecordDetector(s.name, metrics.OutcomeError, elapsed, 0)
		if ctx.Err() != nil {
			return errors.NewCancelledError()
		}
		log.Warn("detector failed, no results", zap.String("detector", s.name), zap.Error(err))
		rep.DetectorComplete(reporter.DetectorSummary{Name: s.name, Duration: elapsed, Err: err.Error()})
		return nil
	}

	after := 0
	for _, st := range run.Streams {
		after += st.ResultCount()
	}
	results := after - before
	outcome := metrics.OutcomeOK
	if results == 0 {
		outcome = metrics.OutcomeNoResult
	}
	d.Metrics.RecordDetector(s.name, outcome, elapsed, results)
	log.Info("detector complete",
		zap.String("detector", s.name),
		zap.Bool("implied", s.implied),
		zap.Int("results", results),
		zap.Duration("elapsed", elapsed))
	rep.DetectorComplete(reporter.DetectorSummary{Name: s.name, Results: results, Duration: elapsed})
	return nil
}

// detectorStreams lists the stream indexes a detector looks at.
func detectorStreams(name string, run *detect.Run) []int {
	switch name {
	case check.SilenceDetect, check.LoudnessDetect:
		return run.AudioIndexes
	case check.BlackAndSilenceDetect:
		return append(append([]int(nil), run.VideoIndexes...), run.AudioIndexes...)
	default:
		return run.VideoIndexes
	}
}

// attachBitrates sets the declared bit rate of every stream and of the
// container, falling back to the payload rate measured by the packet scan.
func attachBitrates(result *report.DeepProbeResult, media *ffprobe.MediaInfo, payload map[int]int64) {
	var total int64
	for i := range result.Streams {
		s := &result.Streams[i]
		total += payload[s.StreamIndex]
		info, ok := media.Stream(s.StreamIndex)
		if !ok {
			continue
		}
		duration := info.Duration
		if duration <= 0 {
			duration = media.Format.Duration
		}
		s.DetectedBitrate = bitrate(info.BitRate, payload[s.StreamIndex], duration)
	}
	result.Format.DetectedBitrateFormat = bitrate(media.Format.BitRate, total, media.Format.Duration)
}

func bitrate(declared, payload int64, seconds float64) *int64 {
	if declared > 0 {
		return &declared
	}
	if payload <= 0 || seconds <= 0 {
		return nil
	}
	v := int64(float64(payload*8) / seconds)
	return &v
}

func outcomeOf(r *report.DeepProbeReport, cached bool, elapsed time.Duration) reporter.ProbeOutcome {
	o := reporter.ProbeOutcome{
		InputFile: util.GetFilename(r.Filename),
		RunID:     r.RunID,
		Opened:    r.Result != nil,
		Cached:    cached,
		TotalTime: elapsed,
	}
	if r.Result != nil {
		o.Streams = len(r.Result.Streams)
		for _, s := range r.Result.Streams {
			o.Results += s.ResultCount()
		}
	}
	return o
}
