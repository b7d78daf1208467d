package report

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func ptr[T any](v T) *T { return &v }

func sampleResult() *DeepProbeResult {
	video := NewStreamProbeResult(0)
	video.ObservePacket(4096)
	video.ObservePacket(1024)
	video.ColorSpace = ptr("yuv")
	video.ColorPrimaries = ptr("bt709")
	video.DetectedBlack = []BlackResult{{Start: 0, End: 1200}}
	video.BlackAndSilence = []BlackAndSilenceResult{{Start: 500, End: 1200}}
	video.DetectedScene = []SceneResult{{Frame: 10, Score: 14, SceneNumber: 1}}
	video.DetectedBitrate = ptr(int64(50000000))

	audio := NewStreamProbeResult(1)
	audio.ObservePacket(1920)
	audio.DetectedSilence = []SilenceResult{{Start: 500, End: 3100}}
	audio.SilentStream = ptr(false)

	return &DeepProbeResult{
		Streams: []StreamProbeResult{video, audio},
		Format:  FormatProbeResult{DetectedBitrateFormat: ptr(int64(52333333))},
	}
}

func TestNewStreamProbeResultSentinels(t *testing.T) {
	s := NewStreamProbeResult(3)
	assert.Equal(t, 3, s.StreamIndex)
	assert.Equal(t, int32(math.MaxInt32), s.MinPacketSize)
	assert.Equal(t, int32(math.MinInt32), s.MaxPacketSize)
	assert.Zero(t, s.CountPackets)
	assert.NotNil(t, s.DetectedSilence)
	assert.Empty(t, s.DetectedSilence)
}

func TestProperty_PacketStatistics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sizes := rapid.SliceOfN(rapid.Int32Range(0, 1<<24), 1, 200).Draw(t, "sizes")
		s := NewStreamProbeResult(0)
		lo, hi := sizes[0], sizes[0]
		for _, size := range sizes {
			s.ObservePacket(size)
			lo = min(lo, size)
			hi = max(hi, size)
		}
		if s.CountPackets != len(sizes) || s.MinPacketSize != lo || s.MaxPacketSize != hi {
			t.Fatalf("got count=%d min=%d max=%d, want %d %d %d",
				s.CountPackets, s.MinPacketSize, s.MaxPacketSize, len(sizes), lo, hi)
		}
	})
}

func TestJSONOmitsEmptyListsAndAbsentOptionals(t *testing.T) {
	data, err := json.Marshal(sampleResult())
	require.NoError(t, err)

	var raw struct {
		Streams []map[string]any `json:"streams"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw.Streams, 2)

	audio := raw.Streams[1]
	assert.Contains(t, audio, "detected_silence")
	assert.Contains(t, audio, "silent_stream")
	for _, key := range []string{"detected_black", "detected_crop", "detected_ocr", "detected_scene",
		"detected_false_scene", "black_and_silence", "detected_bitrate", "color_space"} {
		assert.NotContains(t, audio, key)
	}
	assert.Contains(t, audio, "min_packet_size")
}

func TestDecodeOmissionFormYieldsEmptyLists(t *testing.T) {
	data := []byte(`{"result": {"streams": [{"stream_index": 0, "count_packets": 2, "min_packet_size": 1, "max_packet_size": 9}], "format": {}}}`)
	r, err := DecodeDeepProbe(data, FormatJSON)
	require.NoError(t, err)
	require.NotNil(t, r.Result)
	s := r.Result.Streams[0]
	assert.NotNil(t, s.DetectedSilence)
	assert.Empty(t, s.DetectedSilence)
	assert.NotNil(t, s.BlackAndSilence)
	assert.Nil(t, s.SilentStream)
	assert.Nil(t, r.Result.Format.DetectedBitrateFormat)
}

func TestDecodeNullResult(t *testing.T) {
	r, err := DecodeDeepProbe([]byte(`{"result": null}`), FormatJSON)
	require.NoError(t, err)
	assert.Nil(t, r.Result)
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML, FormatMsgpack} {
		t.Run(string(format), func(t *testing.T) {
			want := &DeepProbeReport{RunID: "run-1", Result: sampleResult()}
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, want, format))

			got, err := DecodeDeepProbe(buf.Bytes(), format)
			require.NoError(t, err)
			assert.Equal(t, want.RunID, got.RunID)
			assert.Equal(t, want.Result, got.Result)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := DecodeDeepProbe([]byte(`{"result": [`), FormatJSON)
	assert.Error(t, err)
	_, err = DecodeDeepProbe([]byte(`x`), FormatText)
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"json": FormatJSON, "YAML": FormatYAML, "yml": FormatYAML, "msgpack": FormatMsgpack, "text": FormatText}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestDisplay(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &DeepProbeReport{Result: sampleResult()}, FormatText))
	out := buf.String()

	assert.Contains(t, out, "Stream Index")
	assert.Contains(t, out, "Silence detection              : [500-3100]")
	assert.Contains(t, out, "Black and silence detection    : [500-1200]")
	assert.Contains(t, out, "Scene detection                : #1 frame 10 score 14")
	assert.Contains(t, out, "Crop detection                 : none")
	assert.Contains(t, out, "Format bitrate                 : 52333333")
	assert.Equal(t, 2, strings.Count(out, "Stream Index"))
}

func TestDisplayWithoutResult(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	require.NoError(t, (&DeepProbeReport{Filename: "missing.mxf"}).Display(&buf))
	assert.Equal(t, "no result for missing.mxf\n", buf.String())
}

func TestEncodeTextRequiresDisplayer(t *testing.T) {
	assert.Error(t, Encode(&bytes.Buffer{}, struct{}{}, FormatText))
}
