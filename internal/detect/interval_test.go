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

func TestSilenceDetect(t *testing.T) {
	src := &fakeSource{entries: []annotation.Entry{
		entry("1", KeySilenceStart, "1.0"),
		entry("2", KeySilenceStart, "0"),
		entry("1", KeySilenceEnd, "3.5", KeySilenceDuration, "2.5"),
		entry("1", KeySilenceStart, "5.0"),
		entry("1", KeySilenceEnd, "5.5", KeySilenceDuration, "0.5"),
	}}
	run := newRun(src)
	params := check.Parameters{"duration": {Min: check.Uint64(2000)}}

	require.NoError(t, Silence{}.Detect(context.Background(), run, params))

	assert.Equal(t, []report.SilenceResult{{Start: 1000, End: 3500}}, run.Stream(1).DetectedSilence)
	require.NotNil(t, run.Stream(1).SilentStream)
	assert.False(t, *run.Stream(1).SilentStream)

	// Stream 2 stays silent until its end.
	assert.Equal(t, []report.SilenceResult{{Start: 0, End: 5000}}, run.Stream(2).DetectedSilence)
	require.NotNil(t, run.Stream(2).SilentStream)
	assert.True(t, *run.Stream(2).SilentStream)

	assert.Nil(t, run.Stream(0).SilentStream, "video streams are not flagged")

	require.Len(t, src.orders, 1)
	f := src.orders[0].Filters[0]
	assert.Equal(t, "silencedetect", f.Name)
	assert.Equal(t, graph.Float(2), f.Parameters["d"])
	assert.Equal(t, graph.String("-60dB"), f.Parameters["n"])
}

func TestSilenceOrderRendersNoise(t *testing.T) {
	o, err := SilenceOrder("in.mxf", []int{1}, check.Parameters{"noise": {Th: check.Float64(-50)}})
	require.NoError(t, err)
	r, err := o.Render(func(int) string { return "/tmp/md.txt" })
	require.NoError(t, err)
	assert.Equal(t,
		`[0:1]silencedetect@silence_filter1=d=0:n=-50dB[audio_output_1];`+
			`[audio_output_1]ametadata=file=/tmp/md.txt:mode=print[__md0]`,
		r.FilterComplex)
}

func TestSilenceWithoutAudio(t *testing.T) {
	src := &fakeSource{}
	run := newRun(src)
	run.AudioIndexes = nil
	require.NoError(t, Silence{}.Detect(context.Background(), run, nil))
	assert.Empty(t, src.orders)
}

func TestBlackDetect(t *testing.T) {
	src := &fakeSource{entries: []annotation.Entry{
		entry("0", KeyBlackStart, "0"),
		entry("0", KeyBlackEnd, "0.04", KeyBlackDuration, "0.04"),
		entry("0", KeyBlackStart, "2"),
		entry("0", KeyBlackEnd, "4", KeyBlackDuration, "2"),
		entry("0", KeyBlackStart, "5"),
		entry("0", KeyBlackEnd, "9", KeyBlackDuration, "4"),
	}}
	run := newRun(src)
	params := check.Parameters{
		"duration": {Min: check.Uint64(40), Max: check.Uint64(3000)},
		"picture":  {Th: check.Float64(0.9)},
	}

	require.NoError(t, Black{}.Detect(context.Background(), run, params))
	assert.Equal(t, []report.BlackResult{{Start: 0, End: 40}, {Start: 2000, End: 4000}}, run.Stream(0).DetectedBlack)

	f := src.orders[0].Filters[0]
	assert.Equal(t, graph.Float(0.9), f.Parameters["pic_th"])
	assert.Equal(t, graph.Float(defaultPixelThreshold), f.Parameters["pix_th"])
	assert.Equal(t, graph.Float(0.04), f.Parameters["d"])
}

func TestBlackFlushedAtStreamEnd(t *testing.T) {
	src := &fakeSource{entries: []annotation.Entry{entry("0", KeyBlackStart, "9.5")}}
	run := newRun(src)
	require.NoError(t, Black{}.Detect(context.Background(), run, nil))
	assert.Equal(t, []report.BlackResult{{Start: 9500, End: 10000}}, run.Stream(0).DetectedBlack)
}

// TestProperty_IntervalBounds checks that every accepted interval satisfies
// the duration bounds and that no interval within them is dropped.
func TestProperty_IntervalBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		lo := rapid.Uint64Range(0, 5000).Draw(rt, "min")
		hi := rapid.Uint64Range(lo, 10000).Draw(rt, "max")
		n := rapid.IntRange(0, 20).Draw(rt, "n")

		var entries []annotation.Entry
		want := 0
		start := int64(0)
		for i := 0; i < n; i++ {
			gap := rapid.Int64Range(0, 1000).Draw(rt, fmt.Sprintf("gap%d", i))
			length := rapid.Int64Range(0, 12000).Draw(rt, fmt.Sprintf("len%d", i))
			start += gap
			end := start + length
			entries = append(entries,
				entry("1", KeySilenceStart, fmt.Sprintf("%.3f", float64(start)/1000)),
				entry("1", KeySilenceEnd, fmt.Sprintf("%.3f", float64(end)/1000)))
			if uint64(length) >= lo && uint64(length) <= hi {
				want++
			}
			start = end
		}

		run := newRun(&fakeSource{entries: entries})
		params := check.Parameters{"duration": {Min: check.Uint64(lo), Max: check.Uint64(hi)}}
		require.NoError(rt, Silence{}.Detect(context.Background(), run, params))

		got := run.Stream(1).DetectedSilence
		require.Len(rt, got, want)
		for _, s := range got {
			d := uint64(s.End - s.Start)
			require.GreaterOrEqual(rt, d, lo)
			require.LessOrEqual(rt, d, hi)
		}
	})
}

func TestOverlaps(t *testing.T) {
	black := []report.BlackResult{{Start: 0, End: 2000}, {Start: 5000, End: 9000}}
	silence := []report.SilenceResult{{Start: 1000, End: 6000}, {Start: 8500, End: 8600}}

	tests := []struct {
		name   string
		bounds check.CheckParameterValue
		want   []report.BlackAndSilenceResult
	}{
		{
			name: "no bounds",
			want: []report.BlackAndSilenceResult{{Start: 1000, End: 2000}, {Start: 5000, End: 6000}, {Start: 8500, End: 8600}},
		},
		{
			name:   "min overlap",
			bounds: check.CheckParameterValue{Min: check.Uint64(1000)},
			want:   []report.BlackAndSilenceResult{{Start: 1000, End: 2000}, {Start: 5000, End: 6000}},
		},
		{
			name:   "max overlap",
			bounds: check.CheckParameterValue{Max: check.Uint64(500)},
			want:   []report.BlackAndSilenceResult{{Start: 8500, End: 8600}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(black, silence, tt.bounds))
		})
	}
}

func TestProperty_OverlapAcceptance(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		b0 := rapid.Int64Range(0, 10000).Draw(rt, "b0")
		b1 := rapid.Int64Range(b0, 20000).Draw(rt, "b1")
		s0 := rapid.Int64Range(0, 10000).Draw(rt, "s0")
		s1 := rapid.Int64Range(s0, 20000).Draw(rt, "s1")
		minOverlap := rapid.Uint64Range(0, 5000).Draw(rt, "min")

		got := Overlaps(
			[]report.BlackResult{{Start: b0, End: b1}},
			[]report.SilenceResult{{Start: s0, End: s1}},
			check.CheckParameterValue{Min: check.Uint64(minOverlap)},
		)
		overlap := min(b1, s1) - max(b0, s0)
		if overlap >= 0 && uint64(overlap) >= minOverlap {
			require.Len(rt, got, 1)
			require.Equal(rt, max(b0, s0), got[0].Start)
			require.Equal(rt, min(b1, s1), got[0].End)
			return
		}
		require.Empty(rt, got)
	})
}

func TestBlackAndSilenceDetect(t *testing.T) {
	run := newRun(&fakeSource{})
	run.Stream(0).DetectedBlack = []report.BlackResult{{Start: 0, End: 3000}}
	run.Stream(1).DetectedSilence = []report.SilenceResult{{Start: 1000, End: 4000}}
	run.Stream(2).DetectedSilence = []report.SilenceResult{{Start: 2500, End: 2600}}

	params := check.Parameters{"duration": {Min: check.Uint64(1000)}}
	require.NoError(t, BlackAndSilence{}.Detect(context.Background(), run, params))

	assert.Equal(t, []report.BlackAndSilenceResult{{Start: 1000, End: 3000}}, run.Stream(0).BlackAndSilence)
	assert.Empty(t, run.Stream(1).BlackAndSilence)
	assert.Equal(t, []string{check.SilenceDetect, check.BlackDetect}, BlackAndSilence{}.DependsOn())
}
