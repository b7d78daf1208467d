package detect

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/five82/deepprobe/internal/annotation"
	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/graph"
	"github.com/five82/deepprobe/internal/report"
)

// Loudness annotation keys.
const (
	KeyLoudnessIntegrated = "lavfi.r128.I"
	KeyLoudnessRange      = "lavfi.r128.LRA"
	keyTruePeakPrefix     = "lavfi.r128.true_peaks_ch"
)

const defaultChannels = 2

// Loudness measures EBU R128 loudness of audio streams. With a layout
// parameter it only runs when the observed audio layout matches one of the
// enumerated qualifications, and then only over the matched streams.
type Loudness struct{}

func (Loudness) Name() string { return check.LoudnessDetect }

// QualifyingStreams returns the audio streams to measure. observed maps an
// audio stream index to its channel count. Layouts are tried in order; a
// layout matches when each of its (stream_index, channels) pairs is observed.
func QualifyingStreams(observed map[int]int, audioIndexes []int, params check.Parameters) ([]int, bool) {
	layout, ok := params.Get("layout")
	if !ok || len(layout.Pairs) == 0 {
		return audioIndexes, true
	}
	for _, qualification := range layout.Pairs {
		matched := true
		streams := make([]int, 0, len(qualification))
		for _, pair := range qualification {
			channels, seen := observed[int(pair.StreamIndex())]
			if !seen || channels != int(pair.Channels()) {
				matched = false
				break
			}
			streams = append(streams, int(pair.StreamIndex()))
		}
		if matched {
			return streams, true
		}
	}
	return nil, false
}

func truePeakKey(channel int) string { return fmt.Sprintf("%s%d", keyTruePeakPrefix, channel) }

// LoudnessOrder builds the ebur128 graph over the given audio streams.
func LoudnessOrder(path string, channels map[int]int) (*graph.Order, error) {
	var inputs []graph.Input
	var filters []graph.Filter
	var outputs []graph.Output
	for _, i := range sortedIndexes(channels) {
		in := audioLabel("input", i)
		out := audioLabel("output", i)
		inputs = append(inputs, streamsInput(path, i, in))
		filters = append(filters, graph.Filter{
			Name:  "ebur128",
			Label: fmt.Sprintf("loudness_filter%d", i),
			Parameters: map[string]graph.ParameterValue{
				"metadata": graph.Bool(true),
				"peak":     graph.String("true"),
			},
			Inputs:  []graph.FilterInput{{StreamLabel: in}},
			Outputs: []graph.FilterOutput{{StreamLabel: out}},
		})
		keys := []string{KeyLoudnessIntegrated, KeyLoudnessRange}
		for ch := 0; ch < channels[i]; ch++ {
			keys = append(keys, truePeakKey(ch))
		}
		outputs = append(outputs, metadataOutput(graph.AudioMetadata, out, keys...))
	}
	return graph.New(inputs, filters, outputs)
}

// loudnessState keeps the running summary of one stream.
type loudnessState struct {
	result report.LoudnessResult
	seen   bool
}

func (d Loudness) Detect(ctx context.Context, run *Run, params check.Parameters) error {
	observed := make(map[int]int, len(run.AudioIndexes))
	for _, index := range run.AudioIndexes {
		info, _ := run.StreamInfo(index)
		observed[index] = info.Channels
	}
	streams, ok := QualifyingStreams(observed, run.AudioIndexes, params)
	if !ok {
		run.logger().Info("audio layout does not qualify for loudness measurement", zap.Any("layout", observed))
		return nil
	}
	if len(streams) == 0 {
		return nil
	}

	channels := make(map[int]int, len(streams))
	for _, index := range streams {
		channels[index] = observed[index]
		if channels[index] <= 0 {
			channels[index] = defaultChannels
		}
	}
	order, err := LoudnessOrder(run.Path, channels)
	if err != nil {
		return err
	}

	states := make(map[int]*loudnessState)
	if _, err := execute(ctx, run, d.Name(), order, func(e annotation.Entry) {
		id, ok := e.StreamID()
		if !ok {
			return
		}
		st, ok := states[id]
		if !ok {
			st = &loudnessState{result: report.LoudnessResult{TruePeak: math.Inf(-1)}}
			states[id] = st
		}
		if v, ok := e.Float(KeyLoudnessIntegrated); ok {
			st.result.Integrated = v
			st.seen = true
		}
		if v, ok := e.Float(KeyLoudnessRange); ok {
			st.result.Range = v
			st.seen = true
		}
		for ch := 0; ch < channels[id]; ch++ {
			if v, ok := e.Float(truePeakKey(ch)); ok {
				st.result.TruePeak = max(st.result.TruePeak, v)
				st.seen = true
			}
		}
	}); err != nil {
		return err
	}

	for _, index := range sortedIndexes(channels) {
		st, ok := states[index]
		stream := run.Stream(index)
		if !ok || !st.seen || stream == nil {
			continue
		}
		if math.IsInf(st.result.TruePeak, -1) {
			st.result.TruePeak = 0
		}
		stream.DetectedLoudness = append(stream.DetectedLoudness, st.result)
	}
	return nil
}
