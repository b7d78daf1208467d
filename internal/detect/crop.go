package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/five82/deepprobe/internal/annotation"
	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/ffprobe"
	"github.com/five82/deepprobe/internal/graph"
	"github.com/five82/deepprobe/internal/report"
)

// Crop annotation keys.
const (
	KeyCropWidth  = "lavfi.cropdetect.w"
	KeyCropHeight = "lavfi.cropdetect.h"
	KeyBlackFrame = "lavfi.blackframe.pblack"
)

// Crop detection constants
const (
	// cropSampleStart is the start position for spot checks (15% of video = 30/200).
	cropSampleStart = 30

	// cropSampleEnd is the end position for spot checks (85% of video = 170/200).
	cropSampleEnd = 170

	// cropSampleDivisor converts sample positions to fractions.
	cropSampleDivisor = 200.0

	// cropThresholdSDR is the black bar detection threshold for SDR content.
	cropThresholdSDR = 16

	// cropThresholdHDR is the black bar detection threshold for HDR content.
	cropThresholdHDR = 100

	// cropSpotChecks is the number of frames checked when spot_check has no max.
	cropSpotChecks = 10

	// cropRound is the rounding value for cropdetect filter.
	cropRound = 2

	// cropReset is the reset value for cropdetect filter.
	cropReset = 1
)

// Crop measures the active picture area of spot-checked frames of video
// streams. Frames blackframe flags as black are not measured.
type Crop struct{}

func (Crop) Name() string { return check.CropDetect }

// SpotCheckFrames returns count frame numbers evenly spaced between 15% and
// 85% of totalFrames, without duplicates.
func SpotCheckFrames(totalFrames uint64, count int) []uint64 {
	if totalFrames == 0 || count <= 0 {
		return nil
	}
	first := float64(totalFrames) * cropSampleStart / cropSampleDivisor
	last := float64(totalFrames) * cropSampleEnd / cropSampleDivisor

	var frames []uint64
	for k := 0; k < count; k++ {
		pos := (first + last) / 2
		if count > 1 {
			pos = first + (last-first)*float64(k)/float64(count-1)
		}
		frame := uint64(pos)
		if n := len(frames); n > 0 && frames[n-1] >= frame {
			continue
		}
		frames = append(frames, frame)
	}
	return frames
}

// totalFrames is the frame count of a video stream, estimated from its
// duration when the container does not carry it.
func totalFrames(info ffprobe.StreamInfo, formatDuration float64) uint64 {
	if info.NbFrames > 0 {
		return info.NbFrames
	}
	duration := info.Duration
	if duration <= 0 {
		duration = formatDuration
	}
	rate := info.FrameRate.Float()
	if rate <= 0 {
		rate = info.AvgFrameRate.Float()
	}
	if duration <= 0 || rate <= 0 {
		return 0
	}
	return uint64(duration * rate)
}

func selectExpr(frames []uint64) string {
	terms := make([]string, len(frames))
	for i, f := range frames {
		terms[i] = fmt.Sprintf("eq(n,%d)", f)
	}
	return strings.Join(terms, "+")
}

// CropOrder builds the spot check graph of one video stream.
func CropOrder(path string, index int, frames []uint64, limit float64, params check.Parameters) (*graph.Order, error) {
	in := videoLabel("input", index)
	selected := videoLabel("selected", index)
	lit := videoLabel("lit", index)
	out := videoLabel("output", index)

	filters := []graph.Filter{
		{
			Name:       "select",
			Label:      fmt.Sprintf("select_filter%d", index),
			Parameters: map[string]graph.ParameterValue{"expr": graph.String(selectExpr(frames))},
			Inputs:     []graph.FilterInput{{StreamLabel: in}},
			Outputs:    []graph.FilterOutput{{StreamLabel: selected}},
		},
		{
			Name:  "blackframe",
			Label: fmt.Sprintf("blackframe_filter%d", index),
			Parameters: map[string]graph.ParameterValue{
				"amount":    graph.Int64(int64(params.Threshold("picture", defaultPictureThreshold) * 100)),
				"threshold": graph.Int64(int64(params.Threshold("pixel", defaultPixelThreshold) * 255)),
			},
			Inputs:  []graph.FilterInput{{StreamLabel: selected}},
			Outputs: []graph.FilterOutput{{StreamLabel: lit}},
		},
		{
			Name:  "cropdetect",
			Label: fmt.Sprintf("crop_filter%d", index),
			Parameters: map[string]graph.ParameterValue{
				"limit": graph.Float(limit),
				"round": graph.Int64(cropRound),
				"reset": graph.Int64(cropReset),
			},
			Inputs:  []graph.FilterInput{{StreamLabel: lit}},
			Outputs: []graph.FilterOutput{{StreamLabel: out}},
		},
	}
	return graph.New(
		[]graph.Input{streamsInput(path, index, in)},
		filters,
		[]graph.Output{metadataOutput(graph.VideoMetadata, out, KeyBlackFrame, KeyCropWidth, KeyCropHeight)},
	)
}

func (d Crop) Detect(ctx context.Context, run *Run, params check.Parameters) error {
	count := cropSpotChecks
	if spotMax, ok := params.Max("spot_check"); ok {
		count = int(spotMax)
	}
	var formatDuration float64
	if run.Media != nil {
		formatDuration = run.Media.Format.Duration
	}

	for _, index := range run.VideoIndexes {
		stream := run.Stream(index)
		info, ok := run.StreamInfo(index)
		if stream == nil || !ok {
			continue
		}
		frames := SpotCheckFrames(totalFrames(info, formatDuration), count)
		if len(frames) == 0 {
			run.logger().Debug("no frames to spot check")
			continue
		}

		limit := float64(cropThresholdSDR)
		if info.Color.IsHDR() {
			limit = cropThresholdHDR
		}
		if v, ok := params.Get("pixel"); ok && v.Th != nil {
			limit = *v.Th
		}

		order, err := CropOrder(run.Path, index, frames, limit, params)
		if err != nil {
			return err
		}
		sar := float32(1)
		if !info.SampleAspectRatio.IsZero() {
			sar = float32(info.SampleAspectRatio.Float())
		}
		if _, err := execute(ctx, run, d.Name(), order, func(e annotation.Entry) {
			if e.Has(KeyBlackFrame) || len(stream.DetectedCrop) >= count {
				return
			}
			if r, ok := cropResult(e, sar); ok {
				stream.DetectedCrop = append(stream.DetectedCrop, r)
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// cropResult reads the crop rectangle of one frame.
func cropResult(e annotation.Entry, sar float32) (report.CropResult, bool) {
	w, okW := e.Int(KeyCropWidth)
	h, okH := e.Int(KeyCropHeight)
	if !okW || !okH || w <= 0 || h <= 0 {
		return report.CropResult{}, false
	}
	pts, _ := e.Int(annotation.KeyPTS)
	return report.CropResult{
		Pts:         pts,
		Width:       int32(w),
		Height:      int32(h),
		AspectRatio: float32(w) * sar / float32(h),
	}, true
}
