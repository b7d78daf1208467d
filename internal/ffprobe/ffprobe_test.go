package ffprobe

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/deepprobe/internal/errors"
)

// loadTestData loads a JSON fixture from the testdata directory.
func loadTestData(t *testing.T, filename string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", filename))
	if err != nil {
		t.Fatalf("failed to load test data %s: %v", filename, err)
	}
	return data
}

func TestParseJSON_MXF(t *testing.T) {
	info, err := ParseJSON(loadTestData(t, "mxf_video_two_audio.json"))
	require.NoError(t, err)

	assert.Equal(t, "mxf", info.Format.FormatName)
	assert.Equal(t, 3, info.Format.NbStreams)
	assert.InDelta(t, 120.0, info.Format.Duration, 1e-9)
	assert.Equal(t, int64(52333333), info.Format.BitRate)
	assert.Equal(t, int64(785000000), info.Format.Size)
	require.Len(t, info.Streams, 3)

	video := info.Streams[0]
	assert.True(t, video.IsVideo())
	assert.Equal(t, Rational{Num: 1, Den: 25}, video.TimeBase)
	assert.Equal(t, Rational{Num: 25, Den: 1}, video.FrameRate)
	assert.Equal(t, Rational{Num: 1, Den: 1}, video.SampleAspectRatio)
	assert.Equal(t, int64(50000000), video.BitRate)
	assert.Equal(t, uint64(3000), video.NbFrames)
	assert.Equal(t, ColorInfo{
		Space: "yuv", Range: "tv", Primaries: "bt709", Transfer: "bt709", Matrix: "bt709",
		ChromaLoc: "topleft", FieldOrder: "tt",
	}, video.Color)

	audio := info.Streams[1]
	assert.True(t, audio.IsAudio())
	assert.Equal(t, 1, audio.Channels)
	assert.Equal(t, int64(48000), audio.SampleRate)
	assert.Equal(t, "eng", audio.Language)
	assert.Equal(t, ColorInfo{}, audio.Color)
	assert.True(t, audio.FrameRate.IsZero())

	s, ok := info.Stream(2)
	require.True(t, ok)
	assert.Equal(t, 2, s.Index)
	_, ok = info.Stream(7)
	assert.False(t, ok)
}

func TestParseJSON_NotAvailableValues(t *testing.T) {
	info, err := ParseJSON(loadTestData(t, "audio_only.json"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Format.BitRate)
	assert.InDelta(t, 30.001, info.Format.Duration, 1e-9)
	require.Len(t, info.Streams, 1)
	assert.Equal(t, 0.0, info.Streams[0].Duration)
	assert.Equal(t, "stereo", info.Streams[0].ChannelLayout)
}

func TestParseJSON_Malformed(t *testing.T) {
	_, err := ParseJSON([]byte(`{"streams": [`))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindFFprobeParse))
}

func TestParseRational(t *testing.T) {
	tests := []struct {
		in     string
		want   Rational
		wantOK bool
	}{
		{"1/25", Rational{1, 25}, true},
		{"30000/1001", Rational{30000, 1001}, true},
		{"16:9", Rational{16, 9}, true},
		{"0/0", Rational{0, 0}, true},
		{"25", Rational{}, false},
		{"a/b", Rational{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRational(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRationalFloat(t *testing.T) {
	assert.InDelta(t, 29.97, Rational{30000, 1001}.Float(), 0.001)
	assert.Equal(t, 0.0, Rational{1, 0}.Float())
	assert.Equal(t, "1/25", Rational{1, 25}.String())
}

func TestCheckReadable(t *testing.T) {
	err := CheckReadable(filepath.Join(t.TempDir(), "missing.mxf"))
	require.Error(t, err)
	assert.True(t, errors.IsOpen(err))

	path := filepath.Join(t.TempDir(), "present.mxf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.NoError(t, CheckReadable(path))
}

func TestProbeMissingFileIsOpenError(t *testing.T) {
	_, err := NewCLI("").Probe(t.Context(), filepath.Join(t.TempDir(), "nope.mxf"))
	require.Error(t, err)
	assert.True(t, errors.IsOpen(err))
}

func TestPacketScanner(t *testing.T) {
	input := "0,4096,K__\n1,1920,K__\n\n0,1024,___\nbogus\n1,1920,K__\n"
	s := NewPacketScanner(strings.NewReader(input))

	var packets []Packet
	var decodeErrors int
	for {
		pkt, err := s.Next()
		if err == io.EOF {
			break
		}
		if errors.IsKind(err, errors.KindDecode) {
			decodeErrors++
			continue
		}
		require.NoError(t, err)
		packets = append(packets, pkt)
	}

	assert.Equal(t, 1, decodeErrors)
	assert.Equal(t, []Packet{
		{StreamIndex: 0, Size: 4096, Keyframe: true},
		{StreamIndex: 1, Size: 1920, Keyframe: true},
		{StreamIndex: 0, Size: 1024},
		{StreamIndex: 1, Size: 1920, Keyframe: true},
	}, packets)
}

func TestColorInfoIsHDR(t *testing.T) {
	tests := []struct {
		name  string
		color ColorInfo
		want  bool
	}{
		{name: "bt709", color: ColorInfo{Primaries: "bt709", Transfer: "bt709", Matrix: "bt709"}, want: false},
		{name: "pq transfer", color: ColorInfo{Primaries: "bt709", Transfer: "smpte2084"}, want: true},
		{name: "hlg transfer", color: ColorInfo{Transfer: "arib-std-b67"}, want: true},
		{name: "bt2020 primaries", color: ColorInfo{Primaries: "BT2020"}, want: true},
		{name: "bt2020 matrix", color: ColorInfo{Matrix: "bt2020nc"}, want: true},
		{name: "unknown", color: ColorInfo{}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.color.IsHDR())
		})
	}
}
