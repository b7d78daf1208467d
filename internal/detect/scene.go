package detect

import (
	"context"
	"fmt"
	"strconv"

	"github.com/five82/deepprobe/internal/annotation"
	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/ffprobe"
	"github.com/five82/deepprobe/internal/graph"
	"github.com/five82/deepprobe/internal/report"
)

// Scene annotation keys.
const (
	KeySceneTime  = "lavfi.scd.time"
	KeySceneScore = "lavfi.scd.score"
)

const (
	defaultSceneThreshold = 10.0
	// sceneBaseRate is the rate scdet times are normalized against before
	// rescaling to the stream's frame rate.
	sceneBaseRate float32 = 25.0
)

// Scene finds scene cuts of video streams with scdet.
type Scene struct{}

func (Scene) Name() string { return check.SceneDetect }

// SceneOrder builds the scdet graph over the given video streams.
func SceneOrder(path string, videoIndexes []int, params check.Parameters) (*graph.Order, error) {
	var inputs []graph.Input
	var filters []graph.Filter
	var outputs []graph.Output
	for _, i := range videoIndexes {
		in := videoLabel("input", i)
		out := videoLabel("output", i)
		inputs = append(inputs, streamsInput(path, i, in))
		filters = append(filters, graph.Filter{
			Name:  "scdet",
			Label: fmt.Sprintf("scdet_filter%d", i),
			Parameters: map[string]graph.ParameterValue{
				"threshold": graph.Float(params.Threshold("threshold", defaultSceneThreshold)),
			},
			Inputs:  []graph.FilterInput{{StreamLabel: in}},
			Outputs: []graph.FilterOutput{{StreamLabel: out}},
		})
		outputs = append(outputs, metadataOutput(graph.VideoMetadata, out, KeySceneTime, KeySceneScore))
	}
	return graph.New(inputs, filters, outputs)
}

// SceneFrame converts an scdet time into a frame number. The arithmetic is
// single precision and truncates.
func SceneFrame(value float32, timeBase, frameRate float32) int64 {
	return int64(value * timeBase / sceneBaseRate * frameRate)
}

// sceneTracker accumulates cuts of one stream.
type sceneTracker struct {
	timeBase  float32
	frameRate float32
	number    int32
}

func newSceneTracker(info ffprobe.StreamInfo) *sceneTracker {
	t := &sceneTracker{timeBase: 1}
	if !info.TimeBase.IsZero() {
		t.timeBase = float32(info.TimeBase.Num) / float32(info.TimeBase.Den)
	}
	if !info.FrameRate.IsZero() {
		t.frameRate = float32(info.FrameRate.Num) / float32(info.FrameRate.Den)
	}
	return t
}

// observe folds one cut into stream. A cut one frame after the previous
// accepted cut is recorded as a false scene instead.
func (t *sceneTracker) observe(stream *report.StreamProbeResult, value, score float32) {
	frame := SceneFrame(value, t.timeBase, t.frameRate)
	if n := len(stream.DetectedScene); n > 0 && stream.DetectedScene[n-1].Frame == frame-1 {
		stream.DetectedFalseScene = append(stream.DetectedFalseScene, report.FalseSceneResult{Frame: frame})
		return
	}
	t.number++
	stream.DetectedScene = append(stream.DetectedScene, report.SceneResult{
		Frame:       frame,
		Score:       int32(score),
		SceneNumber: t.number,
	})
}

func (d Scene) Detect(ctx context.Context, run *Run, params check.Parameters) error {
	if len(run.VideoIndexes) == 0 {
		return nil
	}
	order, err := SceneOrder(run.Path, run.VideoIndexes, params)
	if err != nil {
		return err
	}

	trackers := make(map[int]*sceneTracker)
	_, err = execute(ctx, run, d.Name(), order, func(e annotation.Entry) {
		id, ok := e.StreamID()
		if !ok {
			return
		}
		value, ok := parseFloat32(e[KeySceneTime])
		if !ok {
			return
		}
		stream := run.Stream(id)
		if stream == nil {
			return
		}
		t, ok := trackers[id]
		if !ok {
			info, _ := run.StreamInfo(id)
			t = newSceneTracker(info)
			trackers[id] = t
		}
		score, _ := parseFloat32(e[KeySceneScore])
		t.observe(stream, value, score)
	})
	return err
}

func parseFloat32(s string) (float32, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, false
	}
	return float32(f), true
}
