// Package report holds the deep probe result model and its encodings.
package report

import (
	"math"
	"slices"
)

// SilenceResult is a silent interval in milliseconds.
type SilenceResult struct {
	Start int64 `json:"start" yaml:"start" msgpack:"start"`
	End   int64 `json:"end" yaml:"end" msgpack:"end"`
}

// BlackResult is a black interval in milliseconds.
type BlackResult struct {
	Start int64 `json:"start" yaml:"start" msgpack:"start"`
	End   int64 `json:"end" yaml:"end" msgpack:"end"`
}

// BlackAndSilenceResult is the overlap of a black and a silent interval.
type BlackAndSilenceResult struct {
	Start int64 `json:"start" yaml:"start" msgpack:"start"`
	End   int64 `json:"end" yaml:"end" msgpack:"end"`
}

// CropResult is the active picture area of one spot-checked frame.
type CropResult struct {
	Pts         int64   `json:"pts" yaml:"pts" msgpack:"pts"`
	Width       int32   `json:"width" yaml:"width" msgpack:"width"`
	Height      int32   `json:"height" yaml:"height" msgpack:"height"`
	AspectRatio float32 `json:"aspect_ratio" yaml:"aspect_ratio" msgpack:"aspect_ratio"`
}

// OcrResult is a span of frames showing the same recognized text.
type OcrResult struct {
	FrameStart     uint64 `json:"frame_start" yaml:"frame_start" msgpack:"frame_start"`
	FrameEnd       uint64 `json:"frame_end" yaml:"frame_end" msgpack:"frame_end"`
	Text           string `json:"text" yaml:"text" msgpack:"text"`
	WordConfidence string `json:"word_confidence" yaml:"word_confidence" msgpack:"word_confidence"`
}

// SceneResult is an accepted scene cut.
type SceneResult struct {
	Frame       int64 `json:"frame" yaml:"frame" msgpack:"frame"`
	Score       int32 `json:"score" yaml:"score" msgpack:"score"`
	SceneNumber int32 `json:"scene_number" yaml:"scene_number" msgpack:"scene_number"`
}

// FalseSceneResult is a cut one frame after the previous accepted cut.
type FalseSceneResult struct {
	Frame int64 `json:"frame" yaml:"frame" msgpack:"frame"`
}

// LoudnessResult is the EBU R128 summary of an audio stream.
type LoudnessResult struct {
	Integrated float64 `json:"integrated" yaml:"integrated" msgpack:"integrated"`
	Range      float64 `json:"range" yaml:"range" msgpack:"range"`
	TruePeak   float64 `json:"true_peak" yaml:"true_peak" msgpack:"true_peak"`
}

// StreamProbeResult accumulates everything found about one stream.
type StreamProbeResult struct {
	StreamIndex   int   `json:"stream_index" yaml:"stream_index" msgpack:"stream_index"`
	CountPackets  int   `json:"count_packets" yaml:"count_packets" msgpack:"count_packets"`
	MinPacketSize int32 `json:"min_packet_size" yaml:"min_packet_size" msgpack:"min_packet_size"`
	MaxPacketSize int32 `json:"max_packet_size" yaml:"max_packet_size" msgpack:"max_packet_size"`

	ColorSpace     *string `json:"color_space,omitempty" yaml:"color_space,omitempty" msgpack:"color_space,omitempty"`
	ColorRange     *string `json:"color_range,omitempty" yaml:"color_range,omitempty" msgpack:"color_range,omitempty"`
	ColorPrimaries *string `json:"color_primaries,omitempty" yaml:"color_primaries,omitempty" msgpack:"color_primaries,omitempty"`
	ColorTrc       *string `json:"color_trc,omitempty" yaml:"color_trc,omitempty" msgpack:"color_trc,omitempty"`
	ColorMatrix    *string `json:"color_matrix,omitempty" yaml:"color_matrix,omitempty" msgpack:"color_matrix,omitempty"`

	DetectedSilence    []SilenceResult         `json:"detected_silence,omitempty" yaml:"detected_silence,omitempty" msgpack:"detected_silence,omitempty"`
	SilentStream       *bool                   `json:"silent_stream,omitempty" yaml:"silent_stream,omitempty" msgpack:"silent_stream,omitempty"`
	DetectedBlack      []BlackResult           `json:"detected_black,omitempty" yaml:"detected_black,omitempty" msgpack:"detected_black,omitempty"`
	DetectedCrop       []CropResult            `json:"detected_crop,omitempty" yaml:"detected_crop,omitempty" msgpack:"detected_crop,omitempty"`
	DetectedScene      []SceneResult           `json:"detected_scene,omitempty" yaml:"detected_scene,omitempty" msgpack:"detected_scene,omitempty"`
	DetectedFalseScene []FalseSceneResult      `json:"detected_false_scene,omitempty" yaml:"detected_false_scene,omitempty" msgpack:"detected_false_scene,omitempty"`
	DetectedOcr        []OcrResult             `json:"detected_ocr,omitempty" yaml:"detected_ocr,omitempty" msgpack:"detected_ocr,omitempty"`
	DetectedLoudness   []LoudnessResult        `json:"detected_loudness,omitempty" yaml:"detected_loudness,omitempty" msgpack:"detected_loudness,omitempty"`
	DetectedBitrate    *int64                  `json:"detected_bitrate,omitempty" yaml:"detected_bitrate,omitempty" msgpack:"detected_bitrate,omitempty"`
	BlackAndSilence    []BlackAndSilenceResult `json:"black_and_silence,omitempty" yaml:"black_and_silence,omitempty" msgpack:"black_and_silence,omitempty"`
}

// NewStreamProbeResult returns an empty accumulator. The packet size bounds
// start at the numeric extremes so the first observed packet always wins.
func NewStreamProbeResult(index int) StreamProbeResult {
	return StreamProbeResult{
		StreamIndex:   index,
		MinPacketSize: math.MaxInt32,
		MaxPacketSize: math.MinInt32,
	}.normalized()
}

// ObservePacket folds one packet into the packet statistics.
func (s *StreamProbeResult) ObservePacket(size int32) {
	s.CountPackets++
	s.MinPacketSize = min(s.MinPacketSize, size)
	s.MaxPacketSize = max(s.MaxPacketSize, size)
}

// Clone returns a copy that shares no result lists with s.
func (s StreamProbeResult) Clone() StreamProbeResult {
	c := s
	c.DetectedSilence = slices.Clone(s.DetectedSilence)
	c.DetectedBlack = slices.Clone(s.DetectedBlack)
	c.DetectedCrop = slices.Clone(s.DetectedCrop)
	c.DetectedScene = slices.Clone(s.DetectedScene)
	c.DetectedFalseScene = slices.Clone(s.DetectedFalseScene)
	c.DetectedOcr = slices.Clone(s.DetectedOcr)
	c.DetectedLoudness = slices.Clone(s.DetectedLoudness)
	c.BlackAndSilence = slices.Clone(s.BlackAndSilence)
	if s.SilentStream != nil {
		v := *s.SilentStream
		c.SilentStream = &v
	}
	return c
}

// ResultCount is the number of detection results held by s.
func (s StreamProbeResult) ResultCount() int {
	return len(s.DetectedSilence) + len(s.DetectedBlack) + len(s.DetectedCrop) +
		len(s.DetectedScene) + len(s.DetectedFalseScene) + len(s.DetectedOcr) +
		len(s.DetectedLoudness) + len(s.BlackAndSilence)
}

// normalized replaces nil result lists with empty ones.
func (s StreamProbeResult) normalized() StreamProbeResult {
	if s.DetectedSilence == nil {
		s.DetectedSilence = []SilenceResult{}
	}
	if s.DetectedBlack == nil {
		s.DetectedBlack = []BlackResult{}
	}
	if s.DetectedCrop == nil {
		s.DetectedCrop = []CropResult{}
	}
	if s.DetectedScene == nil {
		s.DetectedScene = []SceneResult{}
	}
	if s.DetectedFalseScene == nil {
		s.DetectedFalseScene = []FalseSceneResult{}
	}
	if s.DetectedOcr == nil {
		s.DetectedOcr = []OcrResult{}
	}
	if s.DetectedLoudness == nil {
		s.DetectedLoudness = []LoudnessResult{}
	}
	if s.BlackAndSilence == nil {
		s.BlackAndSilence = []BlackAndSilenceResult{}
	}
	return s
}

// FormatProbeResult holds container-level results.
type FormatProbeResult struct {
	DetectedBitrateFormat *int64 `json:"detected_bitrate_format,omitempty" yaml:"detected_bitrate_format,omitempty" msgpack:"detected_bitrate_format,omitempty"`
}

// DeepProbeResult is the full report of one deep probe.
type DeepProbeResult struct {
	Streams []StreamProbeResult `json:"streams" yaml:"streams" msgpack:"streams"`
	Format  FormatProbeResult   `json:"format" yaml:"format" msgpack:"format"`
}

// Normalize replaces missing lists with empty ones, as after decoding a
// report that omitted them.
func (r *DeepProbeResult) Normalize() {
	if r.Streams == nil {
		r.Streams = []StreamProbeResult{}
	}
	for i := range r.Streams {
		r.Streams[i] = r.Streams[i].normalized()
	}
}

// DeepProbeReport is what a deep probe of one file produces. Result is nil
// when the file could not be opened.
type DeepProbeReport struct {
	Filename string           `json:"-" yaml:"-" msgpack:"-"`
	RunID    string           `json:"run_id,omitempty" yaml:"run_id,omitempty" msgpack:"run_id,omitempty"`
	Result   *DeepProbeResult `json:"result" yaml:"result" msgpack:"result"`
}

// FormatSummary holds the container facts reported by a light probe.
type FormatSummary struct {
	Filename       string  `json:"filename" yaml:"filename" msgpack:"filename"`
	FormatName     string  `json:"format_name" yaml:"format_name" msgpack:"format_name"`
	FormatLongName string  `json:"format_long_name,omitempty" yaml:"format_long_name,omitempty" msgpack:"format_long_name,omitempty"`
	NbStreams      int     `json:"nb_streams" yaml:"nb_streams" msgpack:"nb_streams"`
	StartTime      float64 `json:"start_time" yaml:"start_time" msgpack:"start_time"`
	Duration       float64 `json:"duration" yaml:"duration" msgpack:"duration"`
	Size           int64   `json:"size,omitempty" yaml:"size,omitempty" msgpack:"size,omitempty"`
	BitRate        *int64  `json:"bit_rate,omitempty" yaml:"bit_rate,omitempty" msgpack:"bit_rate,omitempty"`
	ProbeScore     int     `json:"probe_score,omitempty" yaml:"probe_score,omitempty" msgpack:"probe_score,omitempty"`
}

// StreamSummary holds the facts of one stream reported by a light probe.
type StreamSummary struct {
	Index      int    `json:"index" yaml:"index" msgpack:"index"`
	CodecType  string `json:"codec_type" yaml:"codec_type" msgpack:"codec_type"`
	CodecName  string `json:"codec_name" yaml:"codec_name" msgpack:"codec_name"`
	TimeBase   string `json:"time_base" yaml:"time_base" msgpack:"time_base"`
	FrameRate  string `json:"frame_rate,omitempty" yaml:"frame_rate,omitempty" msgpack:"frame_rate,omitempty"`
	BitRate    *int64 `json:"bit_rate,omitempty" yaml:"bit_rate,omitempty" msgpack:"bit_rate,omitempty"`
	Channels   int    `json:"channels,omitempty" yaml:"channels,omitempty" msgpack:"channels,omitempty"`
	SampleRate int64  `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty" msgpack:"sample_rate,omitempty"`
	Width      int64  `json:"width,omitempty" yaml:"width,omitempty" msgpack:"width,omitempty"`
	Height     int64  `json:"height,omitempty" yaml:"height,omitempty" msgpack:"height,omitempty"`
	PixFmt     string `json:"pix_fmt,omitempty" yaml:"pix_fmt,omitempty" msgpack:"pix_fmt,omitempty"`
	Language   string `json:"language,omitempty" yaml:"language,omitempty" msgpack:"language,omitempty"`
}

// ProbeResult is the light probe report.
type ProbeResult struct {
	Format  FormatSummary   `json:"format" yaml:"format" msgpack:"format"`
	Streams []StreamSummary `json:"streams,omitempty" yaml:"streams,omitempty" msgpack:"streams,omitempty"`
}
