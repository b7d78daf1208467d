// Package ffprobe provides stream and format facts using ffprobe.
package ffprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/five82/deepprobe/internal/errors"
)

// Rational is a num/den pair such as a time base or frame rate.
type Rational struct {
	Num int64 `json:"num"`
	Den int64 `json:"den"`
}

// Float returns num/den, or 0 when the denominator is zero.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// IsZero reports whether the rational is unset or 0/x.
func (r Rational) IsZero() bool { return r.Num == 0 || r.Den == 0 }

func (r Rational) String() string { return fmt.Sprintf("%d/%d", r.Num, r.Den) }

// ParseRational parses ffprobe's "num/den" or "num:den" notation.
func ParseRational(s string) (Rational, bool) {
	sep := "/"
	if strings.Contains(s, ":") {
		sep = ":"
	}
	num, den, found := strings.Cut(s, sep)
	if !found {
		return Rational{}, false
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return Rational{}, false
	}
	d, err := strconv.ParseInt(den, 10, 64)
	if err != nil {
		return Rational{}, false
	}
	return Rational{Num: n, Den: d}, true
}

// Codec types reported by ffprobe.
const (
	CodecTypeVideo = "video"
	CodecTypeAudio = "audio"
)

// ColorInfo is the color description of a video stream. Space is the color
// model of the pixel format; Matrix is ffprobe's color_space.
type ColorInfo struct {
	Space      string
	Range      string
	Primaries  string
	Transfer   string
	Matrix     string
	ChromaLoc  string
	FieldOrder string
}

// IsHDR reports whether the color description signals HDR content
// (BT.2020 primaries or matrix, PQ or HLG transfer).
func (c ColorInfo) IsHDR() bool {
	if containsCI(c.Primaries, "bt2020") || containsCI(c.Primaries, "bt.2020") || containsCI(c.Primaries, "bt2100") {
		return true
	}
	if containsCI(c.Transfer, "pq") || containsCI(c.Transfer, "smpte2084") || containsCI(c.Transfer, "hlg") || containsCI(c.Transfer, "arib-std-b67") {
		return true
	}
	return containsCI(c.Matrix, "bt2020") || containsCI(c.Matrix, "bt.2020")
}

// containsCI performs a case-insensitive substring check.
func containsCI(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// colorModel derives the color model from a pixel format name.
func colorModel(pixFmt string) string {
	switch {
	case pixFmt == "":
		return ""
	case strings.HasPrefix(pixFmt, "yuv"), strings.HasPrefix(pixFmt, "yuvj"), strings.HasPrefix(pixFmt, "nv"),
		strings.HasPrefix(pixFmt, "p010"), strings.HasPrefix(pixFmt, "uyvy"), strings.HasPrefix(pixFmt, "yuyv"):
		return "yuv"
	case strings.HasPrefix(pixFmt, "rgb"), strings.HasPrefix(pixFmt, "bgr"), strings.HasPrefix(pixFmt, "gbr"),
		strings.HasPrefix(pixFmt, "argb"), strings.HasPrefix(pixFmt, "abgr"):
		return "rgb"
	case strings.HasPrefix(pixFmt, "gray"), strings.HasPrefix(pixFmt, "ya"):
		return "gray"
	default:
		return ""
	}
}

// StreamInfo contains the facts of one stream.
type StreamInfo struct {
	Index             int
	CodecType         string
	CodecName         string
	CodecLongName     string
	Profile           string
	TimeBase          Rational
	FrameRate         Rational
	AvgFrameRate      Rational
	SampleAspectRatio Rational
	BitRate           int64
	Channels          int
	ChannelLayout     string
	SampleRate        int64
	Width             int64
	Height            int64
	PixFmt            string
	Color             ColorInfo
	StartTime         float64
	Duration          float64
	NbFrames          uint64
	Language          string
}

// IsVideo reports whether the stream carries video.
func (s StreamInfo) IsVideo() bool { return s.CodecType == CodecTypeVideo }

// IsAudio reports whether the stream carries audio.
func (s StreamInfo) IsAudio() bool { return s.CodecType == CodecTypeAudio }

// FormatInfo contains container-level facts.
type FormatInfo struct {
	Filename       string
	FormatName     string
	FormatLongName string
	NbStreams      int
	StartTime      float64
	Duration       float64
	Size           int64
	BitRate        int64
	ProbeScore     int
}

// MediaInfo contains everything ffprobe reports about a file.
type MediaInfo struct {
	Format  FormatInfo
	Streams []StreamInfo
}

// Stream returns the stream with the given index.
func (m *MediaInfo) Stream(index int) (StreamInfo, bool) {
	for _, s := range m.Streams {
		if s.Index == index {
			return s, true
		}
	}
	return StreamInfo{}, false
}

// Provider supplies stream facts and raw packet statistics.
type Provider interface {
	Probe(ctx context.Context, path string) (*MediaInfo, error)
	Packets(ctx context.Context, path string) (PacketReader, error)
}

// ffprobeOutput represents the JSON output from ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename       string `json:"filename"`
	NbStreams      int    `json:"nb_streams"`
	FormatName     string `json:"format_name"`
	FormatLongName string `json:"format_long_name"`
	StartTime      string `json:"start_time"`
	Duration       string `json:"duration"`
	Size           string `json:"size"`
	BitRate        string `json:"bit_rate"`
	ProbeScore     int    `json:"probe_score"`
}

type ffprobeStream struct {
	Index              int               `json:"index"`
	CodecType          string            `json:"codec_type"`
	CodecName          string            `json:"codec_name"`
	CodecLongName      string            `json:"codec_long_name"`
	Profile            string            `json:"profile"`
	TimeBase           string            `json:"time_base"`
	RFrameRate         string            `json:"r_frame_rate"`
	AvgFrameRate       string            `json:"avg_frame_rate"`
	SampleAspectRatio  string            `json:"sample_aspect_ratio"`
	BitRate            string            `json:"bit_rate"`
	Width              int64             `json:"width"`
	Height             int64             `json:"height"`
	Channels           int               `json:"channels"`
	ChannelLayout      string            `json:"channel_layout"`
	SampleRate         string            `json:"sample_rate"`
	NbFrames           string            `json:"nb_frames"`
	PixFmt             string            `json:"pix_fmt"`
	ColorRange         string            `json:"color_range"`
	ColorSpace         string            `json:"color_space"`
	ColorPrimaries     string            `json:"color_primaries"`
	ColorTransfer      string            `json:"color_transfer"`
	ChromaLocation     string            `json:"chroma_location"`
	FieldOrder         string            `json:"field_order"`
	StartTime          string            `json:"start_time"`
	Duration           string            `json:"duration"`
	Tags               map[string]string `json:"tags"`
}

// CLI is the ffprobe-backed Provider.
type CLI struct {
	// Binary is the ffprobe executable; empty means "ffprobe" on PATH.
	Binary string
}

// NewCLI creates a provider for the given ffprobe binary.
func NewCLI(binary string) *CLI {
	return &CLI{Binary: binary}
}

func (p *CLI) binary() string {
	if p.Binary == "" {
		return "ffprobe"
	}
	return p.Binary
}

// CheckReadable fails with an open error when path cannot be read by this
// process. It avoids spawning ffprobe for files that are certain to fail.
func CheckReadable(path string) error {
	if err := unix.Access(path, unix.R_OK); err != nil {
		return errors.NewOpenError(path, err)
	}
	return nil
}

// Probe runs ffprobe and returns format and stream facts. An unreadable or
// unrecognized file is an open error.
func (p *CLI) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	if err := CheckReadable(path); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, p.binary(),
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewCancelledError()
		}
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(exitErr.Stderr))
		}
		return nil, errors.NewOpenError(path, errors.WrapExecError(p.binary(), err, stderr))
	}

	return ParseJSON(output)
}

// ParseJSON converts ffprobe JSON output into MediaInfo.
func ParseJSON(data []byte) (*MediaInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.NewFFprobeParseError("failed to parse ffprobe output", err)
	}

	info := &MediaInfo{
		Format: FormatInfo{
			Filename:       out.Format.Filename,
			FormatName:     out.Format.FormatName,
			FormatLongName: out.Format.FormatLongName,
			NbStreams:      out.Format.NbStreams,
			StartTime:      parseFloat(out.Format.StartTime),
			Duration:       parseFloat(out.Format.Duration),
			Size:           parseInt(out.Format.Size),
			BitRate:        parseInt(out.Format.BitRate),
			ProbeScore:     out.Format.ProbeScore,
		},
	}

	for _, s := range out.Streams {
		timeBase, _ := ParseRational(s.TimeBase)
		frameRate, _ := ParseRational(s.RFrameRate)
		avgFrameRate, _ := ParseRational(s.AvgFrameRate)
		sar, _ := ParseRational(s.SampleAspectRatio)

		stream := StreamInfo{
			Index:             s.Index,
			CodecType:         s.CodecType,
			CodecName:         s.CodecName,
			CodecLongName:     s.CodecLongName,
			Profile:           s.Profile,
			TimeBase:          timeBase,
			FrameRate:         frameRate,
			AvgFrameRate:      avgFrameRate,
			SampleAspectRatio: sar,
			BitRate:           parseInt(s.BitRate),
			Channels:          s.Channels,
			ChannelLayout:     s.ChannelLayout,
			SampleRate:        parseInt(s.SampleRate),
			Width:             s.Width,
			Height:            s.Height,
			PixFmt:            s.PixFmt,
			StartTime:         parseFloat(s.StartTime),
			Duration:          parseFloat(s.Duration),
			NbFrames:          uint64(parseInt(s.NbFrames)),
			Language:          s.Tags["language"],
		}
		if s.CodecType == CodecTypeVideo {
			stream.Color = ColorInfo{
				Space:      colorModel(s.PixFmt),
				Range:      s.ColorRange,
				Primaries:  s.ColorPrimaries,
				Transfer:   s.ColorTransfer,
				Matrix:     s.ColorSpace,
				ChromaLoc:  s.ChromaLocation,
				FieldOrder: s.FieldOrder,
			}
		}
		info.Streams = append(info.Streams, stream)
	}

	return info, nil
}

func parseFloat(s string) float64 {
	if s == "" || s == "N/A" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(s string) int64 {
	if s == "" || s == "N/A" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
