package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.Bold)
	faintColor   = color.New(color.Faint)
)

const labelWidth = 30

// printLabel writes a padded bold label followed by a value.
func printLabel(w io.Writer, label, value string) error {
	_, err := fmt.Fprintf(w, "%s : %s\n", labelColor.Sprintf("%-*s", labelWidth, label), value)
	return err
}

func optString(s *string) string {
	if s == nil {
		return faintColor.Sprint("-")
	}
	return *s
}

func optInt(v *int64) string {
	if v == nil {
		return faintColor.Sprint("-")
	}
	return strconv.FormatInt(*v, 10)
}

func list[T any](items []T, format func(T) string) string {
	if len(items) == 0 {
		return faintColor.Sprint("none")
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = format(item)
	}
	return strings.Join(parts, ", ")
}

func span(start, end int64) string { return fmt.Sprintf("[%d-%d]", start, end) }

// Display writes the text view of the report.
func (r *DeepProbeReport) Display(w io.Writer) error {
	if r.Result == nil {
		_, err := fmt.Fprintf(w, "%s\n", faintColor.Sprintf("no result for %s", r.Filename))
		return err
	}
	return r.Result.Display(w)
}

// Display writes the text view of the result, one block per stream.
func (r *DeepProbeResult) Display(w io.Writer) error {
	for _, s := range r.Streams {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		rows := [][2]string{
			{"Stream Index", headingColor.Sprint(s.StreamIndex)},
			{"Number of packets", strconv.Itoa(s.CountPackets)},
			{"Minimum packet size", strconv.Itoa(int(s.MinPacketSize))},
			{"Maximum packet size", strconv.Itoa(int(s.MaxPacketSize))},
			{"Color space", optString(s.ColorSpace)},
			{"Color range", optString(s.ColorRange)},
			{"Color Primaries", optString(s.ColorPrimaries)},
			{"Transfer characteristics", optString(s.ColorTrc)},
			{"Matrix coefficients", optString(s.ColorMatrix)},
			{"Silence detection", list(s.DetectedSilence, func(v SilenceResult) string { return span(v.Start, v.End) })},
			{"Black detection", list(s.DetectedBlack, func(v BlackResult) string { return span(v.Start, v.End) })},
			{"Black and silence detection", list(s.BlackAndSilence, func(v BlackAndSilenceResult) string { return span(v.Start, v.End) })},
			{"Crop detection", list(s.DetectedCrop, func(v CropResult) string {
				return fmt.Sprintf("%dx%d@%d (%.3f)", v.Width, v.Height, v.Pts, v.AspectRatio)
			})},
			{"Scene detection", list(s.DetectedScene, func(v SceneResult) string {
				return fmt.Sprintf("#%d frame %d score %d", v.SceneNumber, v.Frame, v.Score)
			})},
			{"False scene detection", list(s.DetectedFalseScene, func(v FalseSceneResult) string { return strconv.FormatInt(v.Frame, 10) })},
			{"Media offline detection", list(s.DetectedOcr, func(v OcrResult) string {
				return fmt.Sprintf("%q [%d-%d]", v.Text, v.FrameStart, v.FrameEnd)
			})},
			{"Loudness", list(s.DetectedLoudness, func(v LoudnessResult) string {
				return fmt.Sprintf("I %.1f LUFS, LRA %.1f LU, TP %.1f dBTP", v.Integrated, v.Range, v.TruePeak)
			})},
			{"Bitrate detection", optInt(s.DetectedBitrate)},
		}
		if s.SilentStream != nil {
			rows = append(rows, [2]string{"Silent stream", strconv.FormatBool(*s.SilentStream)})
		}
		for _, row := range rows {
			if err := printLabel(w, row[0], row[1]); err != nil {
				return err
			}
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	return printLabel(w, "Format bitrate", optInt(r.Format.DetectedBitrateFormat))
}

// Display writes the text view of a light probe.
func (r *ProbeResult) Display(w io.Writer) error {
	if _, err := headingColor.Fprintln(w, "FORMAT"); err != nil {
		return err
	}
	rows := [][2]string{
		{"File", r.Format.Filename},
		{"Format", r.Format.FormatName},
		{"Streams", strconv.Itoa(r.Format.NbStreams)},
		{"Duration", fmt.Sprintf("%.3f s", r.Format.Duration)},
		{"Bitrate", optInt(r.Format.BitRate)},
	}
	for _, row := range rows {
		if err := printLabel(w, row[0], row[1]); err != nil {
			return err
		}
	}
	for _, s := range r.Streams {
		if _, err := headingColor.Fprintf(w, "\nSTREAM %d (%s)\n", s.Index, s.CodecType); err != nil {
			return err
		}
		rows := [][2]string{
			{"Codec", s.CodecName},
			{"Time base", s.TimeBase},
		}
		if s.FrameRate != "" {
			rows = append(rows, [2]string{"Frame rate", s.FrameRate})
		}
		if s.Width > 0 {
			rows = append(rows, [2]string{"Resolution", fmt.Sprintf("%dx%d", s.Width, s.Height)})
		}
		if s.Channels > 0 {
			rows = append(rows, [2]string{"Channels", strconv.Itoa(s.Channels)})
		}
		rows = append(rows, [2]string{"Bitrate", optInt(s.BitRate)})
		for _, row := range rows {
			if err := printLabel(w, row[0], row[1]); err != nil {
				return err
			}
		}
	}
	return nil
}
