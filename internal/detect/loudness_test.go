package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/deepprobe/internal/annotation"
	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/report"
)

func TestQualifyingStreams(t *testing.T) {
	observed := map[int]int{1: 1, 2: 1}
	audio := []int{1, 2}

	tests := []struct {
		name   string
		params check.Parameters
		want   []int
		wantOK bool
	}{
		{name: "no layout measures everything", want: []int{1, 2}, wantOK: true},
		{
			name:   "stereo layout does not match two mono streams",
			params: check.Parameters{"layout": {Pairs: []check.TrackLayout{{{1, 2}}}}},
		},
		{
			name:   "second qualification matches",
			params: check.Parameters{"layout": {Pairs: []check.TrackLayout{{{1, 2}}, {{1, 1}, {2, 1}}}}},
			want:   []int{1, 2},
			wantOK: true,
		},
		{
			name:   "subset of streams",
			params: check.Parameters{"layout": {Pairs: []check.TrackLayout{{{2, 1}}}}},
			want:   []int{2},
			wantOK: true,
		},
		{
			name:   "unknown stream index",
			params: check.Parameters{"layout": {Pairs: []check.TrackLayout{{{7, 1}}}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := QualifyingStreams(observed, audio, tt.params)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoudnessDetect(t *testing.T) {
	src := &fakeSource{entries: []annotation.Entry{
		entry("1", KeyLoudnessIntegrated, "-23.5", KeyLoudnessRange, "5.1", truePeakKey(0), "-3.2"),
		entry("1", KeyLoudnessIntegrated, "-23.0", truePeakKey(0), "-1.0"),
		entry("1", KeyLoudnessIntegrated, "-23.1", truePeakKey(0), "-2.0"),
	}}
	run := newRun(src)

	require.NoError(t, Loudness{}.Detect(context.Background(), run, nil))

	assert.Equal(t, []report.LoudnessResult{{Integrated: -23.1, Range: 5.1, TruePeak: -1.0}}, run.Stream(1).DetectedLoudness)
	assert.Empty(t, run.Stream(2).DetectedLoudness, "no measurement was surfaced")

	require.Len(t, src.orders, 1)
	o := src.orders[0]
	require.Len(t, o.Filters, 2)
	assert.Equal(t, "ebur128", o.Filters[0].Name)
	assert.Equal(t, []string{KeyLoudnessIntegrated, KeyLoudnessRange, "lavfi.r128.true_peaks_ch0"}, o.Outputs[0].Keys)
}

func TestLoudnessSkipsUnqualifiedLayout(t *testing.T) {
	src := &fakeSource{}
	run := newRun(src)
	params := check.Parameters{"layout": {Pairs: []check.TrackLayout{{{1, 2}, {2, 2}}}}}
	require.NoError(t, Loudness{}.Detect(context.Background(), run, params))
	assert.Empty(t, src.orders)
}
