package detect

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/five82/deepprobe/internal/annotation"
	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/graph"
	"github.com/five82/deepprobe/internal/report"
)

// OCR annotation keys.
const (
	KeyOCRText       = "lavfi.ocr.text"
	KeyOCRConfidence = "lavfi.ocr.confidence"
)

// TextFrame is the text recognized on one frame.
type TextFrame struct {
	Frame uint64
	Text  string
	// WordConfidence holds one confidence per recognized word, space separated.
	WordConfidence string
}

// TextRecognizer extracts text from the frames of a video stream. fn is
// called for every sampled frame in presentation order.
type TextRecognizer interface {
	Recognize(ctx context.Context, run *Run, index int, params check.Parameters, fn func(TextFrame)) error
}

// AnnotationRecognizer recognizes text with the ocr filter of the run's
// annotation source, sampling frames at the sample_rate parameter.
type AnnotationRecognizer struct{}

// OCROrder builds the fps → ocr graph of one video stream.
func OCROrder(path string, index int, params check.Parameters) (*graph.Order, error) {
	in := videoLabel("input", index)
	sampled := videoLabel("sampled", index)
	out := videoLabel("output", index)

	var filters []graph.Filter
	ocrInput := in
	if v, ok := params.Get("sample_rate"); ok {
		if num, den, ok := v.Ratio(); ok {
			filters = append(filters, graph.Filter{
				Name:       "fps",
				Label:      fmt.Sprintf("fps_filter%d", index),
				Parameters: map[string]graph.ParameterValue{"fps": graph.Rational{Num: int64(num), Den: int64(den)}},
				Inputs:     []graph.FilterInput{{StreamLabel: in}},
				Outputs:    []graph.FilterOutput{{StreamLabel: sampled}},
			})
			ocrInput = sampled
		}
	}
	filters = append(filters, graph.Filter{
		Name:    "ocr",
		Label:   fmt.Sprintf("ocr_filter%d", index),
		Inputs:  []graph.FilterInput{{StreamLabel: ocrInput}},
		Outputs: []graph.FilterOutput{{StreamLabel: out}},
	})
	return graph.New(
		[]graph.Input{streamsInput(path, index, in)},
		filters,
		[]graph.Output{metadataOutput(graph.VideoMetadata, out, KeyOCRText, KeyOCRConfidence)},
	)
}

func (AnnotationRecognizer) Recognize(ctx context.Context, run *Run, index int, params check.Parameters, fn func(TextFrame)) error {
	order, err := OCROrder(run.Path, index, params)
	if err != nil {
		return err
	}
	var rate float64
	if info, ok := run.StreamInfo(index); ok {
		rate = info.FrameRate.Float()
	}
	_, err = execute(ctx, run, check.OcrDetect, order, func(e annotation.Entry) {
		t, ok := e.PTSTime()
		if !ok {
			return
		}
		fn(TextFrame{
			Frame:          uint64(math.Round(max(t, 0) * rate)),
			Text:           e[KeyOCRText],
			WordConfidence: e[KeyOCRConfidence],
		})
	})
	return err
}

// OCR records spans of frames showing the same text whose mean word
// confidence reaches the confidence threshold.
type OCR struct {
	Recognizer TextRecognizer
}

func (*OCR) Name() string { return check.OcrDetect }

func (d *OCR) Detect(ctx context.Context, run *Run, params check.Parameters) error {
	recognizer := d.Recognizer
	if recognizer == nil {
		recognizer = AnnotationRecognizer{}
	}
	threshold, hasThreshold := params.Get("confidence")

	for _, index := range run.VideoIndexes {
		stream := run.Stream(index)
		if stream == nil {
			continue
		}
		spans := &spanBuilder{}
		if err := recognizer.Recognize(ctx, run, index, params, spans.observe); err != nil {
			return err
		}
		for _, span := range spans.finish() {
			if hasThreshold && threshold.Th != nil && span.confidence() < *threshold.Th {
				continue
			}
			stream.DetectedOcr = append(stream.DetectedOcr, span.result)
		}
	}
	return nil
}

type textSpan struct {
	result report.OcrResult
	sum    float64
	words  int
}

func (s *textSpan) confidence() float64 {
	if s.words == 0 {
		return 0
	}
	return s.sum / float64(s.words)
}

// spanBuilder merges consecutive frames with identical text into spans.
type spanBuilder struct {
	current *textSpan
	spans   []textSpan
}

func (b *spanBuilder) observe(f TextFrame) {
	text := strings.TrimSpace(f.Text)
	if b.current != nil && b.current.result.Text == text {
		b.current.result.FrameEnd = f.Frame
		b.current.add(f.WordConfidence)
		return
	}
	b.close()
	if text == "" {
		return
	}
	b.current = &textSpan{result: report.OcrResult{
		FrameStart:     f.Frame,
		FrameEnd:       f.Frame,
		Text:           text,
		WordConfidence: f.WordConfidence,
	}}
	b.current.add(f.WordConfidence)
}

func (b *spanBuilder) close() {
	if b.current != nil {
		b.spans = append(b.spans, *b.current)
		b.current = nil
	}
}

func (b *spanBuilder) finish() []textSpan {
	b.close()
	return b.spans
}

func (s *textSpan) add(confidences string) {
	for _, field := range strings.Fields(confidences) {
		c, err := strconv.ParseFloat(field, 64)
		if err != nil {
			continue
		}
		s.sum += c
		s.words++
	}
}
