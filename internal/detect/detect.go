// Package detect interprets annotation sequences into per-stream detection
// results. Each detector builds one analysis graph over the streams it
// qualifies, runs it through an annotation source and applies the
// thresholds of its check parameters.
package detect

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/five82/deepprobe/internal/annotation"
	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/ffprobe"
	"github.com/five82/deepprobe/internal/graph"
	"github.com/five82/deepprobe/internal/metrics"
	"github.com/five82/deepprobe/internal/report"
)

// Detector produces one kind of result for the streams of a Run.
type Detector interface {
	// Name is the detector's key in a check.
	Name() string
	// Detect runs the detector and folds its results into run.Streams.
	Detect(ctx context.Context, run *Run, params check.Parameters) error
}

// Run is the state shared by the detectors of one deep probe.
type Run struct {
	Path         string
	Media        *ffprobe.MediaInfo
	Streams      []report.StreamProbeResult
	AudioIndexes []int
	VideoIndexes []int

	Source  annotation.Source
	Env     graph.Environment
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// Stream returns the accumulator of the stream with the given index.
func (r *Run) Stream(index int) *report.StreamProbeResult {
	for i := range r.Streams {
		if r.Streams[i].StreamIndex == index {
			return &r.Streams[i]
		}
	}
	return nil
}

// StreamInfo returns the probed facts of a stream.
func (r *Run) StreamInfo(index int) (ffprobe.StreamInfo, bool) {
	if r.Media == nil {
		return ffprobe.StreamInfo{}, false
	}
	return r.Media.Stream(index)
}

// StreamEnd returns the end of a stream in milliseconds, falling back to the
// container duration.
func (r *Run) StreamEnd(index int) (int64, bool) {
	if info, ok := r.StreamInfo(index); ok && info.Duration > 0 {
		return annotation.SecondsToMillis(info.Duration), true
	}
	if r.Media != nil && r.Media.Format.Duration > 0 {
		return annotation.SecondsToMillis(r.Media.Format.Duration), true
	}
	return 0, false
}

func (r *Run) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// execute validates order, runs it and feeds every entry to fn. The
// sequence is closed on every path.
func execute(ctx context.Context, run *Run, name string, order *graph.Order, fn func(annotation.Entry)) (int, error) {
	if run.Env != nil {
		if err := order.Setup(run.Env); err != nil {
			return 0, err
		}
	}
	seq, err := run.Source.Process(ctx, order)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := seq.Close(); cerr != nil {
			run.logger().Warn("failed to release annotations", zap.String("detector", name), zap.Error(cerr))
		}
	}()

	n, err := annotation.Each(seq, run.logger(), fn)
	run.Metrics.RecordEntries(name, n)
	run.logger().Debug("annotations processed", zap.String("detector", name), zap.Int("entries", n))
	return n, err
}

// streamsInput declares one labelled stream of path.
func streamsInput(path string, index int, label string) graph.StreamsInput {
	return graph.StreamsInput{
		ID:      uint32(index),
		Path:    path,
		Streams: []graph.StreamRef{{Index: uint32(index), Label: &label}},
	}
}

// metadataOutput surfaces keys of a labelled stream.
func metadataOutput(kind graph.OutputKind, label string, keys ...string) graph.Output {
	return graph.Output{Kind: &kind, Keys: keys, Stream: &label}
}

func audioLabel(prefix string, index int) string { return fmt.Sprintf("audio_%s_%d", prefix, index) }
func videoLabel(prefix string, index int) string { return fmt.Sprintf("video_%s_%d", prefix, index) }

// Registry returns every detector keyed by name.
func Registry(recognizer TextRecognizer) map[string]Detector {
	detectors := []Detector{
		Silence{},
		Black{},
		BlackAndSilence{},
		Crop{},
		Scene{},
		&OCR{Recognizer: recognizer},
		Loudness{},
	}
	out := make(map[string]Detector, len(detectors))
	for _, d := range detectors {
		out[d.Name()] = d
	}
	return out
}

func sortedIndexes(m map[int]int) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
