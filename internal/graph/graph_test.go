package graph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	coreerrors "github.com/five82/deepprobe/internal/errors"
)

func strPtr(s string) *string { return &s }

func kindPtr(k OutputKind) *OutputKind { return &k }

// fakeEnv is a permissive execution environment.
type fakeEnv struct {
	filters map[string]bool
	streams int
	err     error
}

func (e fakeEnv) HasFilter(name string) bool {
	if e.filters == nil {
		return true
	}
	return e.filters[name]
}

func (e fakeEnv) StreamCount(string) (int, error) { return e.streams, e.err }

func silenceOrder(t *testing.T) *Order {
	t.Helper()
	o, err := New(
		[]Input{StreamsInput{ID: 1, Path: "in.mxf", Streams: []StreamRef{{Index: 1, Label: strPtr("audio_input_1")}}}},
		[]Filter{{
			Name:       "silencedetect",
			Label:      "silence_filter1",
			Parameters: map[string]ParameterValue{"d": Float(2), "n": String("-60dB")},
			Inputs:     []FilterInput{{StreamLabel: "audio_input_1"}},
			Outputs:    []FilterOutput{{StreamLabel: "audio_output_1"}},
		}},
		[]Output{{
			Kind:   kindPtr(AudioMetadata),
			Keys:   []string{"lavfi.silence_start", "lavfi.silence_duration"},
			Stream: strPtr("audio_output_1"),
		}},
	)
	require.NoError(t, err)
	return o
}

func TestNewRejectsUnresolvedLabel(t *testing.T) {
	_, err := New(
		[]Input{StreamsInput{Path: "in.mxf", Streams: []StreamRef{{Index: 0, Label: strPtr("v")}}}},
		[]Filter{{Name: "scdet", Inputs: []FilterInput{{StreamLabel: "nope"}}, Outputs: []FilterOutput{{StreamLabel: "out"}}}},
		[]Output{{Kind: kindPtr(VideoMetadata), Stream: strPtr("out")}},
	)
	require.Error(t, err)
	assert.True(t, coreerrors.IsKind(err, coreerrors.KindValidation))
}

func TestValidateRejectsCycle(t *testing.T) {
	o := &Order{
		Inputs: []Input{StreamsInput{Path: "in.mxf", Streams: []StreamRef{{Index: 0, Label: strPtr("v")}}}},
		Filters: []Filter{
			{Name: "a", Inputs: []FilterInput{{StreamLabel: "y"}}, Outputs: []FilterOutput{{StreamLabel: "x"}}},
			{Name: "b", Inputs: []FilterInput{{StreamLabel: "x"}}, Outputs: []FilterOutput{{StreamLabel: "y"}}},
		},
		Outputs: []Output{{Kind: kindPtr(VideoMetadata), Stream: strPtr("y")}},
	}
	assert.Error(t, o.Validate())
}

func TestValidateRejectsOutputWithoutStream(t *testing.T) {
	o := &Order{Outputs: []Output{{Kind: kindPtr(VideoMetadata)}}}
	assert.True(t, coreerrors.IsKind(o.Validate(), coreerrors.KindValidation))
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name    string
		env     fakeEnv
		wantErr bool
	}{
		{name: "known filter and stream in range", env: fakeEnv{streams: 2}},
		{name: "stream index out of range", env: fakeEnv{streams: 1}, wantErr: true},
		{name: "unknown filter", env: fakeEnv{streams: 2, filters: map[string]bool{"scdet": true}}, wantErr: true},
		{name: "stream count unavailable", env: fakeEnv{err: errors.New("boom")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := silenceOrder(t).Setup(tt.env)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, coreerrors.IsKind(err, coreerrors.KindValidation), "got %v", err)
		})
	}
}

func TestSourceOf(t *testing.T) {
	o := &Order{
		Inputs: []Input{
			StreamsInput{Path: "a.mxf", Streams: []StreamRef{{Index: 0, Label: strPtr("v0")}}},
			StreamsInput{Path: "a.mxf", Streams: []StreamRef{{Index: 3, Label: strPtr("a3")}}},
		},
		Filters: []Filter{
			{Name: "aresample", Inputs: []FilterInput{{StreamLabel: "a3"}}, Outputs: []FilterOutput{{StreamLabel: "r"}}},
			{Name: "ebur128", Inputs: []FilterInput{{StreamLabel: "r"}}, Outputs: []FilterOutput{{StreamLabel: "loud"}}},
		},
	}

	src, ok := o.SourceOf("loud")
	require.True(t, ok)
	assert.Equal(t, StreamSource{InputPosition: 1, StreamIndex: 3}, src)

	_, ok = o.SourceOf("missing")
	assert.False(t, ok)
}

func TestRenderSilenceGraph(t *testing.T) {
	r, err := silenceOrder(t).Render(func(i int) string { return fmt.Sprintf("/tmp/work/out_%d.txt", i) })
	require.NoError(t, err)

	assert.Equal(t, []string{"in.mxf"}, r.Inputs)
	assert.Equal(t,
		`[0:1]silencedetect@silence_filter1=d=2:n=-60dB[audio_output_1];`+
			`[audio_output_1]ametadata=file=/tmp/work/out_0.txt:mode=print[__md0]`,
		r.FilterComplex)
	assert.Equal(t, []string{"[__md0]"}, r.NullMaps)
	require.Len(t, r.Sinks, 1)
	assert.Equal(t, 1, r.Sinks[0].StreamID)
	assert.Equal(t, MediaAudio, r.Sinks[0].Media)
}

func TestRenderEscaping(t *testing.T) {
	o := &Order{
		Inputs: []Input{SourceInput{Path: "in.mkv", Media: MediaVideo, Label: "v"}},
		Filters: []Filter{{
			Name:       "select",
			Parameters: map[string]ParameterValue{"expr": String("eq(n,10)+eq(n,20)")},
			Inputs:     []FilterInput{{StreamLabel: "v"}},
			Outputs:    []FilterOutput{{StreamLabel: "s"}},
		}},
		Outputs: []Output{{Kind: kindPtr(VideoMetadata), Stream: strPtr("s")}},
	}
	r, err := o.Render(func(int) string { return `C:\tmp\md.txt` })
	require.NoError(t, err)
	assert.Equal(t,
		`[0:v:0]select=expr=eq(n\,10)+eq(n\,20)[s];`+
			`[s]metadata=file=C\\:\\\\tmp\\\\md.txt:mode=print[__md0]`,
		r.FilterComplex)
}

func TestRenderFileOutput(t *testing.T) {
	o := &Order{
		Inputs:  []Input{StreamsInput{Path: "in.mxf", Streams: []StreamRef{{Index: 1, Label: strPtr("a")}}}},
		Filters: []Filter{{Name: "volume", Parameters: map[string]ParameterValue{"volume": Rational{Num: 1, Den: 2}}, Inputs: []FilterInput{{StreamLabel: "a"}}, Outputs: []FilterOutput{{StreamLabel: "quiet"}}}},
		Outputs: []Output{{
			Path:       strPtr("out.wav"),
			Streams:    []OutputStream{{Label: "quiet", Codec: "pcm_s16le"}},
			Parameters: map[string]ParameterValue{"ar": Int64(48000)},
		}},
	}
	r, err := o.Render(func(int) string { return "" })
	require.NoError(t, err)
	require.Len(t, r.FileOutputs, 1)
	assert.Equal(t, []string{"-map", "[quiet]", "-c:0", "pcm_s16le", "-ar", "48000", "out.wav"}, r.FileOutputs[0].Args)
	assert.Equal(t, `[0:1]volume=volume=1/2[quiet]`, r.FilterComplex)
}

// TestProperty_SetupResolvesLabels checks that Setup succeeds exactly when
// every label resolves to a declared input through the filters.
func TestProperty_SetupResolvesLabels(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numInputs := rapid.IntRange(1, 3).Draw(rt, "numInputs")
		var streams []StreamRef
		available := []string{}
		for i := 0; i < numInputs; i++ {
			label := fmt.Sprintf("in%d", i)
			streams = append(streams, StreamRef{Index: uint32(i), Label: strPtr(label)})
			available = append(available, label)
		}

		numFilters := rapid.IntRange(0, 6).Draw(rt, "numFilters")
		var filters []Filter
		for i := 0; i < numFilters; i++ {
			src := rapid.SampledFrom(available).Draw(rt, fmt.Sprintf("src%d", i))
			out := fmt.Sprintf("f%d", i)
			filters = append(filters, Filter{
				Name:    "anull",
				Inputs:  []FilterInput{{StreamLabel: src}},
				Outputs: []FilterOutput{{StreamLabel: out}},
			})
			available = append(available, out)
		}
		sink := rapid.SampledFrom(available).Draw(rt, "sink")

		breakIt := numFilters > 0 && rapid.Bool().Draw(rt, "break")
		if breakIt {
			victim := rapid.IntRange(0, numFilters-1).Draw(rt, "victim")
			filters[victim].Inputs[0].StreamLabel = "undeclared"
		}

		o := &Order{
			Inputs:  []Input{StreamsInput{Path: "x.mxf", Streams: streams}},
			Filters: filters,
			Outputs: []Output{{Kind: kindPtr(AudioMetadata), Stream: strPtr(sink)}},
		}
		err := o.Setup(fakeEnv{streams: numInputs})
		if breakIt {
			require.Error(rt, err)
			return
		}
		require.NoError(rt, err)
	})
}
