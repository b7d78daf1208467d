package detect

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/five82/deepprobe/internal/annotation"
	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/graph"
	"github.com/five82/deepprobe/internal/report"
)

func TestSceneFrame(t *testing.T) {
	tests := []struct {
		name      string
		value     float32
		timeBase  float32
		frameRate float32
		want      int64
	}{
		{name: "unit time base", value: 10, timeBase: 1, frameRate: 25, want: 10},
		{name: "truncates", value: 10.5, timeBase: 1, frameRate: 25, want: 10},
		{name: "rescales to 50 fps", value: 4, timeBase: 1, frameRate: 50, want: 8},
		{name: "unknown frame rate", value: 4, timeBase: 1, frameRate: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SceneFrame(tt.value, tt.timeBase, tt.frameRate))
		})
	}
}

func TestSceneDetect(t *testing.T) {
	src := &fakeSource{entries: []annotation.Entry{
		entry("0", KeySceneTime, "10", KeySceneScore, "45.7"),
		entry("0", KeySceneTime, "11", KeySceneScore, "12.1"),
		entry("0", KeySceneTime, "12", KeySceneScore, "30"),
		entry("0", KeySceneScore, "99"),
		entry("0", KeySceneTime, "30", KeySceneScore, "18.9"),
	}}
	run := newRun(src)
	run.Media.Streams[0].TimeBase.Den = 1

	require.NoError(t, Scene{}.Detect(context.Background(), run, check.Parameters{"threshold": {Th: check.Float64(8)}}))

	stream := run.Stream(0)
	assert.Equal(t, []report.SceneResult{
		{Frame: 10, Score: 45, SceneNumber: 1},
		{Frame: 12, Score: 30, SceneNumber: 2},
		{Frame: 30, Score: 18, SceneNumber: 3},
	}, stream.DetectedScene)
	assert.Equal(t, []report.FalseSceneResult{{Frame: 11}}, stream.DetectedFalseScene)

	f := src.orders[0].Filters[0]
	assert.Equal(t, "scdet", f.Name)
	assert.Equal(t, graph.Float(8), f.Parameters["threshold"])
}

func TestSceneConsecutiveCuts(t *testing.T) {
	// A run of cuts one frame apart alternates: a false scene never becomes
	// the previous accepted cut.
	tracker := &sceneTracker{timeBase: 25, frameRate: 1}
	stream := report.NewStreamProbeResult(0)
	for _, f := range []float32{10, 11, 12, 13} {
		tracker.observe(&stream, f, 20)
	}

	assert.Equal(t, []report.SceneResult{
		{Frame: 10, Score: 20, SceneNumber: 1},
		{Frame: 12, Score: 20, SceneNumber: 2},
	}, stream.DetectedScene)
	assert.Equal(t, []report.FalseSceneResult{{Frame: 11}, {Frame: 13}}, stream.DetectedFalseScene)
}

func TestSceneOrderDefaultThreshold(t *testing.T) {
	o, err := SceneOrder("in.mxf", []int{0}, nil)
	require.NoError(t, err)
	assert.Equal(t, graph.Float(defaultSceneThreshold), o.Filters[0].Parameters["threshold"])
	assert.Equal(t, []string{KeySceneTime, KeySceneScore}, o.Outputs[0].Keys)
}

// TestProperty_FalseScenes checks that a cut becomes a false scene exactly
// when it lands one frame after the previous accepted cut, and that scene
// numbers count accepted cuts from 1.
func TestProperty_FalseScenes(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(rt, "n")
		frames := make([]int64, n)
		var frame int64
		for i := range frames {
			frame += rapid.Int64Range(1, 3).Draw(rt, fmt.Sprintf("step%d", i))
			frames[i] = frame
		}

		// A time base of 25 at 1 fps maps scdet times to frames exactly.
		tracker := &sceneTracker{timeBase: 25, frameRate: 1}
		stream := report.NewStreamProbeResult(0)
		var wantAccepted, wantFalse []int64
		last := int64(-10)
		for _, f := range frames {
			tracker.observe(&stream, float32(f), 1)
			if f == last+1 {
				wantFalse = append(wantFalse, f)
				continue
			}
			wantAccepted = append(wantAccepted, f)
			last = f
		}

		require.Len(rt, stream.DetectedScene, len(wantAccepted))
		for i, s := range stream.DetectedScene {
			require.Equal(rt, wantAccepted[i], s.Frame)
			require.Equal(rt, int32(i+1), s.SceneNumber)
		}
		require.Len(rt, stream.DetectedFalseScene, len(wantFalse))
		for i, s := range stream.DetectedFalseScene {
			require.Equal(rt, wantFalse[i], s.Frame)
		}
	})
}
