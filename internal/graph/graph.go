// Package graph describes analysis passes as declarative filter graphs.
//
// An Order is an immutable description of inputs (demuxed streams of a file),
// filters (named ffmpeg filters with typed parameters and labelled pads) and
// outputs (which annotation keys to surface from which labelled stream). It
// does no I/O; execution belongs to an annotation source.
package graph

import (
	"fmt"

	"github.com/five82/deepprobe/internal/errors"
)

// InputKind discriminates the Input variants.
type InputKind string

const (
	// InputKindStreams selects specific demuxed streams by index.
	InputKindStreams InputKind = "streams"
	// InputKindSource selects the first stream of a media type.
	InputKindSource InputKind = "source"
)

// MediaKind is the media type of a stream.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// Input is one file opened by the execution engine. The set of variants is
// closed: StreamsInput and SourceInput.
type Input interface {
	isInput()
	Kind() InputKind
	InputPath() string
}

// StreamRef selects one demuxed stream; Label names it inside the graph.
type StreamRef struct {
	Index uint32
	Label *string
}

// StreamsInput demuxes the listed stream indexes from Path.
type StreamsInput struct {
	ID      uint32
	Path    string
	Streams []StreamRef
}

// SourceInput exposes the first stream of Media from Path under Label.
type SourceInput struct {
	ID    uint32
	Path  string
	Media MediaKind
	Label string
}

func (StreamsInput) isInput() {}
func (SourceInput) isInput()  {}

func (StreamsInput) Kind() InputKind { return InputKindStreams }
func (SourceInput) Kind() InputKind  { return InputKindSource }

func (i StreamsInput) InputPath() string { return i.Path }
func (i SourceInput) InputPath() string  { return i.Path }

// FilterInput is a filter input pad bound to a stream label.
type FilterInput struct {
	StreamLabel string
}

// FilterOutput is a filter output pad publishing a stream label.
type FilterOutput struct {
	StreamLabel string
}

// Filter is one named filter instance.
type Filter struct {
	Name       string
	Label      string
	Parameters map[string]ParameterValue
	Inputs     []FilterInput
	Outputs    []FilterOutput
}

// OutputKind is the kind of an Output. The set is closed.
type OutputKind string

const (
	// VideoMetadata surfaces per-frame metadata of a video stream.
	VideoMetadata OutputKind = "video_metadata"
	// AudioMetadata surfaces per-frame metadata of an audio stream.
	AudioMetadata OutputKind = "audio_metadata"
)

// OutputStream is one stream written to a file output.
type OutputStream struct {
	Label      string
	Codec      string
	Parameters map[string]ParameterValue
}

// Output is a sink of the graph. Metadata outputs surface Keys of the
// labelled Stream; file outputs (Kind nil) write Streams to Path.
type Output struct {
	Kind       *OutputKind
	Keys       []string
	Stream     *string
	Path       *string
	Streams    []OutputStream
	Parameters map[string]ParameterValue
}

// IsMetadata reports whether the output surfaces annotations.
func (o Output) IsMetadata() bool {
	return o.Kind != nil && (*o.Kind == VideoMetadata || *o.Kind == AudioMetadata)
}

// Order is a complete analysis pass description.
type Order struct {
	Inputs  []Input
	Filters []Filter
	Outputs []Output
}

// New builds an Order and checks that every label resolves.
func New(inputs []Input, filters []Filter, outputs []Output) (*Order, error) {
	o := &Order{Inputs: inputs, Filters: filters, Outputs: outputs}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Environment is what Setup needs to know about the execution engine.
type Environment interface {
	// HasFilter reports whether the engine provides the named filter.
	HasFilter(name string) bool
	// StreamCount returns the number of demuxable streams in path.
	StreamCount(path string) (int, error)
}

// Setup validates the Order against an execution environment. It fails with
// a validation error when a label does not resolve, a filter is unknown or an
// input stream index is out of range. It does not open anything itself.
func (o *Order) Setup(env Environment) error {
	if err := o.Validate(); err != nil {
		return err
	}

	for _, f := range o.Filters {
		if !env.HasFilter(f.Name) {
			return errors.NewValidationError(fmt.Sprintf("unknown filter %q", f.Name))
		}
	}

	counts := make(map[string]int)
	for _, in := range o.Inputs {
		si, ok := in.(StreamsInput)
		if !ok {
			continue
		}
		count, seen := counts[si.Path]
		if !seen {
			n, err := env.StreamCount(si.Path)
			if err != nil {
				return &errors.CoreError{
					Kind:       errors.KindValidation,
					Message:    fmt.Sprintf("cannot count streams of %s", si.Path),
					Underlying: err,
				}
			}
			count = n
			counts[si.Path] = n
		}
		for _, ref := range si.Streams {
			if int(ref.Index) >= count {
				return errors.NewValidationError(fmt.Sprintf(
					"stream index %d out of range for %s (%d streams)", ref.Index, si.Path, count))
			}
		}
	}
	return nil
}

// StreamSource identifies the demuxed stream a label originates from.
type StreamSource struct {
	// InputPosition is the position of the input in Order.Inputs.
	InputPosition int
	// StreamIndex is the stream index in the file; -1 for SourceInput.
	StreamIndex int
}

// SourceOf traces a label back through the filters to the input stream it
// originates from. Multi-input filters follow their first input.
func (o *Order) SourceOf(label string) (StreamSource, bool) {
	return o.sourceOf(label, make(map[string]bool))
}

func (o *Order) sourceOf(label string, visiting map[string]bool) (StreamSource, bool) {
	if src, ok := o.inputLabel(label); ok {
		return src, true
	}
	if visiting[label] {
		return StreamSource{}, false
	}
	visiting[label] = true
	defer delete(visiting, label)

	for _, f := range o.Filters {
		if !f.produces(label) || len(f.Inputs) == 0 {
			continue
		}
		return o.sourceOf(f.Inputs[0].StreamLabel, visiting)
	}
	return StreamSource{}, false
}

// inputLabel finds a label declared by an input.
func (o *Order) inputLabel(label string) (StreamSource, bool) {
	for pos, in := range o.Inputs {
		switch v := in.(type) {
		case StreamsInput:
			for _, ref := range v.Streams {
				if ref.Label != nil && *ref.Label == label {
					return StreamSource{InputPosition: pos, StreamIndex: int(ref.Index)}, true
				}
			}
		case SourceInput:
			if v.Label == label {
				return StreamSource{InputPosition: pos, StreamIndex: -1}, true
			}
		}
	}
	return StreamSource{}, false
}

func (f Filter) produces(label string) bool {
	for _, out := range f.Outputs {
		if out.StreamLabel == label {
			return true
		}
	}
	return false
}

// Validate checks that every filter input, every filter output and every
// output stream label resolves transitively to a declared input.
func (o *Order) Validate() error {
	resolved := make(map[string]bool)
	for _, f := range o.Filters {
		if f.Name == "" {
			return errors.NewValidationError("filter without a name")
		}
		for _, in := range f.Inputs {
			if !o.resolves(in.StreamLabel, resolved, make(map[string]bool)) {
				return errors.NewValidationError(fmt.Sprintf(
					"filter %s: unresolved input label [%s]", f.Name, in.StreamLabel))
			}
		}
		for _, out := range f.Outputs {
			if !o.resolves(out.StreamLabel, resolved, make(map[string]bool)) {
				return errors.NewValidationError(fmt.Sprintf(
					"filter %s: output label [%s] does not resolve to an input", f.Name, out.StreamLabel))
			}
		}
	}
	for i, out := range o.Outputs {
		labels := outputLabels(out)
		if len(labels) == 0 {
			return errors.NewValidationError(fmt.Sprintf("output %d references no stream", i))
		}
		for _, label := range labels {
			if !o.resolves(label, resolved, make(map[string]bool)) {
				return errors.NewValidationError(fmt.Sprintf("output %d: unresolved label [%s]", i, label))
			}
		}
	}
	return nil
}

// resolves memoizes successful resolutions; visiting breaks cycles.
func (o *Order) resolves(label string, resolved, visiting map[string]bool) bool {
	if resolved[label] {
		return true
	}
	if _, ok := o.inputLabel(label); ok {
		resolved[label] = true
		return true
	}
	if visiting[label] {
		return false
	}
	visiting[label] = true
	defer delete(visiting, label)

	for _, f := range o.Filters {
		if !f.produces(label) {
			continue
		}
		all := true
		for _, in := range f.Inputs {
			if !o.resolves(in.StreamLabel, resolved, visiting) {
				all = false
				break
			}
		}
		if all {
			resolved[label] = true
			return true
		}
	}
	return false
}

func outputLabels(out Output) []string {
	var labels []string
	if out.Stream != nil {
		labels = append(labels, *out.Stream)
	}
	for _, s := range out.Streams {
		labels = append(labels, s.Label)
	}
	return labels
}
