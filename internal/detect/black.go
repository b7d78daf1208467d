package detect

import (
	"context"
	"fmt"

	"github.com/five82/deepprobe/internal/annotation"
	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/graph"
	"github.com/five82/deepprobe/internal/report"
)

// Black annotation keys.
const (
	KeyBlackStart    = "lavfi.black_start"
	KeyBlackEnd      = "lavfi.black_end"
	KeyBlackDuration = "lavfi.black_duration"
)

// blackdetect defaults.
const (
	defaultPictureThreshold = 0.98
	defaultPixelThreshold   = 0.10
)

var blackKeys = annotation.IntervalKeys{
	Start:    KeyBlackStart,
	End:      KeyBlackEnd,
	Duration: KeyBlackDuration,
}

// Black finds black intervals of video streams with blackdetect.
type Black struct{}

func (Black) Name() string { return check.BlackDetect }

// BlackOrder builds the blackdetect graph over the given video streams.
func BlackOrder(path string, videoIndexes []int, params check.Parameters) (*graph.Order, error) {
	filterParams := map[string]graph.ParameterValue{
		"pic_th": graph.Float(params.Threshold("picture", defaultPictureThreshold)),
		"pix_th": graph.Float(params.Threshold("pixel", defaultPixelThreshold)),
	}
	if minDuration, ok := params.Min("duration"); ok {
		filterParams["d"] = graph.Float(float64(minDuration) / 1000)
	} else {
		filterParams["d"] = graph.Float(0)
	}

	var inputs []graph.Input
	var filters []graph.Filter
	var outputs []graph.Output
	for _, i := range videoIndexes {
		in := videoLabel("input", i)
		out := videoLabel("output", i)
		inputs = append(inputs, streamsInput(path, i, in))
		filters = append(filters, graph.Filter{
			Name:       "blackdetect",
			Label:      fmt.Sprintf("black_filter%d", i),
			Parameters: filterParams,
			Inputs:     []graph.FilterInput{{StreamLabel: in}},
			Outputs:    []graph.FilterOutput{{StreamLabel: out}},
		})
		outputs = append(outputs, metadataOutput(graph.VideoMetadata, out, KeyBlackStart, KeyBlackEnd, KeyBlackDuration))
	}
	return graph.New(inputs, filters, outputs)
}

func (d Black) Detect(ctx context.Context, run *Run, params check.Parameters) error {
	if len(run.VideoIndexes) == 0 {
		return nil
	}
	order, err := BlackOrder(run.Path, run.VideoIndexes, params)
	if err != nil {
		return err
	}

	duration, _ := params.Get("duration")
	accept := func(c annotation.Closed) {
		if !duration.InRange(c.Interval.Duration()) {
			return
		}
		if stream := run.Stream(c.StreamID); stream != nil {
			stream.DetectedBlack = append(stream.DetectedBlack, report.BlackResult{Start: c.Interval.Start, End: c.Interval.End})
		}
	}

	tracker := annotation.NewIntervalTracker(blackKeys)
	if _, err := execute(ctx, run, d.Name(), order, func(e annotation.Entry) {
		if c, ok := tracker.Observe(e); ok {
			accept(c)
		}
	}); err != nil {
		return err
	}
	for _, c := range tracker.Flush(run.StreamEnd) {
		accept(c)
	}
	return nil
}
