package detect

import (
	"context"

	"go.uber.org/zap"

	"github.com/five82/deepprobe/internal/annotation"
	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/report"
)

// BlackAndSilence correlates the black intervals of every video stream with
// the silent intervals of every audio stream. It runs no filter and depends
// on the results of Silence and Black.
type BlackAndSilence struct{}

func (BlackAndSilence) Name() string { return check.BlackAndSilenceDetect }

// DependsOn lists the detectors whose results this one reads.
func (BlackAndSilence) DependsOn() []string {
	return []string{check.SilenceDetect, check.BlackDetect}
}

func (BlackAndSilence) Detect(_ context.Context, run *Run, params check.Parameters) error {
	duration, _ := params.Get("duration")
	for _, videoIndex := range run.VideoIndexes {
		video := run.Stream(videoIndex)
		if video == nil {
			continue
		}
		for _, audioIndex := range run.AudioIndexes {
			audio := run.Stream(audioIndex)
			if audio == nil {
				continue
			}
			video.BlackAndSilence = append(video.BlackAndSilence, Overlaps(video.DetectedBlack, audio.DetectedSilence, duration)...)
		}
		run.logger().Debug("black and silence correlated",
			zap.Int("stream", videoIndex),
			zap.Int("results", len(video.BlackAndSilence)))
	}
	return nil
}

// Overlaps returns one result per (black, silence) pair whose intersection
// is at least the min of bounds (0 when absent) and, when present, at most
// its max.
func Overlaps(black []report.BlackResult, silence []report.SilenceResult, bounds check.CheckParameterValue) []report.BlackAndSilenceResult {
	var out []report.BlackAndSilenceResult
	for _, b := range black {
		for _, s := range silence {
			iv, ok := annotation.Interval{Start: b.Start, End: b.End}.Intersect(annotation.Interval{Start: s.Start, End: s.End})
			if !ok || !bounds.InRange(iv.Duration()) {
				continue
			}
			out = append(out, report.BlackAndSilenceResult{Start: iv.Start, End: iv.End})
		}
	}
	return out
}
