package detect

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/five82/deepprobe/internal/annotation"
	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/graph"
	"github.com/five82/deepprobe/internal/report"
)

// Silence annotation keys.
const (
	KeySilenceStart    = "lavfi.silence_start"
	KeySilenceEnd      = "lavfi.silence_end"
	KeySilenceDuration = "lavfi.silence_duration"
)

const (
	defaultNoiseDB = -60.0
	// silentStreamTolerance is how far a silence may stop short of the stream
	// bounds and still make the whole stream silent, in milliseconds.
	silentStreamTolerance = 40
)

var silenceKeys = annotation.IntervalKeys{
	Start:    KeySilenceStart,
	End:      KeySilenceEnd,
	Duration: KeySilenceDuration,
}

// Silence finds silent intervals of audio streams with silencedetect.
type Silence struct{}

func (Silence) Name() string { return check.SilenceDetect }

// SilenceOrder builds the silencedetect graph over the given audio streams.
func SilenceOrder(path string, audioIndexes []int, params check.Parameters) (*graph.Order, error) {
	filterParams := map[string]graph.ParameterValue{
		"n": graph.String(fmt.Sprintf("%gdB", params.Threshold("noise", defaultNoiseDB))),
	}
	if minDuration, ok := params.Min("duration"); ok {
		filterParams["d"] = graph.Float(float64(minDuration) / 1000)
	} else {
		filterParams["d"] = graph.Float(0)
	}

	var inputs []graph.Input
	var filters []graph.Filter
	var outputs []graph.Output
	for _, i := range audioIndexes {
		in := audioLabel("input", i)
		out := audioLabel("output", i)
		inputs = append(inputs, streamsInput(path, i, in))
		filters = append(filters, graph.Filter{
			Name:       "silencedetect",
			Label:      fmt.Sprintf("silence_filter%d", i),
			Parameters: filterParams,
			Inputs:     []graph.FilterInput{{StreamLabel: in}},
			Outputs:    []graph.FilterOutput{{StreamLabel: out}},
		})
		outputs = append(outputs, metadataOutput(graph.AudioMetadata, out, KeySilenceStart, KeySilenceEnd, KeySilenceDuration))
	}
	return graph.New(inputs, filters, outputs)
}

func (d Silence) Detect(ctx context.Context, run *Run, params check.Parameters) error {
	if len(run.AudioIndexes) == 0 {
		return nil
	}
	order, err := SilenceOrder(run.Path, run.AudioIndexes, params)
	if err != nil {
		return err
	}

	tracker := annotation.NewIntervalTracker(silenceKeys)
	found := make(map[int][]annotation.Interval)
	if _, err := execute(ctx, run, d.Name(), order, func(e annotation.Entry) {
		if c, ok := tracker.Observe(e); ok {
			found[c.StreamID] = append(found[c.StreamID], c.Interval)
		}
	}); err != nil {
		return err
	}
	for _, c := range tracker.Flush(run.StreamEnd) {
		found[c.StreamID] = append(found[c.StreamID], c.Interval)
	}

	duration, _ := params.Get("duration")
	for _, index := range run.AudioIndexes {
		stream := run.Stream(index)
		if stream == nil {
			continue
		}
		intervals := found[index]
		end, known := run.StreamEnd(index)
		silent := known && coversStream(intervals, end)
		stream.SilentStream = &silent

		for _, iv := range intervals {
			if !duration.InRange(iv.Duration()) {
				continue
			}
			stream.DetectedSilence = append(stream.DetectedSilence, report.SilenceResult{Start: iv.Start, End: iv.End})
		}
		run.logger().Debug("silence detected",
			zap.Int("stream", index),
			zap.Int("intervals", len(intervals)),
			zap.Int("accepted", len(stream.DetectedSilence)),
			zap.Bool("silent_stream", silent))
	}
	return nil
}

// coversStream reports whether a single interval spans the whole stream.
func coversStream(intervals []annotation.Interval, end int64) bool {
	if len(intervals) != 1 {
		return false
	}
	iv := intervals[0]
	return iv.Start <= silentStreamTolerance && end-iv.End <= silentStreamTolerance
}
