// Package probe drives the analysis of one media file: a light Probe that
// reports container facts and a DeepProbe that runs the detectors.
package probe

import (
	"context"

	"github.com/five82/deepprobe/internal/errors"
	"github.com/five82/deepprobe/internal/ffprobe"
	"github.com/five82/deepprobe/internal/report"
)

// Probe reports format-level facts of a file. It does not iterate frames.
type Probe struct {
	Path     string
	Provider ffprobe.Provider
}

// New creates a light probe of path.
func New(path string, provider ffprobe.Provider) *Probe {
	return &Probe{Path: path, Provider: provider}
}

// Process opens the container and summarizes its format and streams. An
// unreadable file is an open error.
func (p *Probe) Process(ctx context.Context) (*report.ProbeResult, error) {
	media, err := p.Provider.Probe(ctx, p.Path)
	if err != nil {
		if errors.IsOpen(err) || errors.IsCancelled(err) {
			return nil, err
		}
		return nil, errors.NewOpenError(p.Path, err)
	}
	return Summarize(media), nil
}

// Summarize converts probed facts into the light probe report.
func Summarize(media *ffprobe.MediaInfo) *report.ProbeResult {
	f := media.Format
	out := &report.ProbeResult{
		Format: report.FormatSummary{
			Filename:       f.Filename,
			FormatName:     f.FormatName,
			FormatLongName: f.FormatLongName,
			NbStreams:      f.NbStreams,
			StartTime:      f.StartTime,
			Duration:       f.Duration,
			Size:           f.Size,
			BitRate:        positive(f.BitRate),
			ProbeScore:     f.ProbeScore,
		},
	}
	for _, s := range media.Streams {
		summary := report.StreamSummary{
			Index:      s.Index,
			CodecType:  s.CodecType,
			CodecName:  s.CodecName,
			TimeBase:   s.TimeBase.String(),
			BitRate:    positive(s.BitRate),
			Channels:   s.Channels,
			SampleRate: s.SampleRate,
			Width:      s.Width,
			Height:     s.Height,
			PixFmt:     s.PixFmt,
			Language:   s.Language,
		}
		if !s.FrameRate.IsZero() {
			summary.FrameRate = s.FrameRate.String()
		}
		out.Streams = append(out.Streams, summary)
	}
	return out
}

func positive(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}
