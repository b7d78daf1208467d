package graph

import (
	"fmt"
	"strings"

	"github.com/five82/deepprobe/internal/errors"
)

// MetadataSink is where one metadata output prints its annotations.
type MetadataSink struct {
	// OutputIndex is the position of the output in Order.Outputs.
	OutputIndex int
	Path        string
	Keys        []string
	// StreamID is the file stream index the output originates from (-1 if unknown).
	StreamID int
	Media    MediaKind
}

// FileOutput is one encoded output file.
type FileOutput struct {
	Args []string
}

// Rendered is an Order translated into ffmpeg command line pieces.
type Rendered struct {
	Inputs        []string
	FilterComplex string
	// NullMaps are labels routed to the null muxer.
	NullMaps    []string
	FileOutputs []FileOutput
	Sinks       []MetadataSink
}

// Render translates the Order for the ffmpeg CLI. sinkPath names the file a
// metadata output prints to.
func (o *Order) Render(sinkPath func(outputIndex int) string) (*Rendered, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	r := &Rendered{}
	for _, in := range o.Inputs {
		r.Inputs = append(r.Inputs, in.InputPath())
	}

	var chains []string
	for _, f := range o.Filters {
		var b strings.Builder
		for _, in := range f.Inputs {
			b.WriteString(o.linkRef(in.StreamLabel))
		}
		b.WriteString(f.Name)
		if f.Label != "" {
			b.WriteString("@" + f.Label)
		}
		if args := renderArgs(f.Parameters); args != "" {
			b.WriteString("=" + args)
		}
		for _, out := range f.Outputs {
			b.WriteString("[" + out.StreamLabel + "]")
		}
		chains = append(chains, b.String())
	}

	for i, out := range o.Outputs {
		if out.IsMetadata() {
			path := sinkPath(i)
			filterName := "metadata"
			media := MediaVideo
			if *out.Kind == AudioMetadata {
				filterName = "ametadata"
				media = MediaAudio
			}
			sinkLabel := fmt.Sprintf("__md%d", i)
			args := renderArgs(map[string]ParameterValue{
				"mode": String("print"),
				"file": String(path),
			})
			chains = append(chains, fmt.Sprintf("%s%s=%s[%s]", o.linkRef(*out.Stream), filterName, args, sinkLabel))
			r.NullMaps = append(r.NullMaps, "["+sinkLabel+"]")

			streamID := -1
			if src, ok := o.SourceOf(*out.Stream); ok {
				streamID = src.StreamIndex
			}
			r.Sinks = append(r.Sinks, MetadataSink{
				OutputIndex: i,
				Path:        path,
				Keys:        out.Keys,
				StreamID:    streamID,
				Media:       media,
			})
			continue
		}

		if out.Path == nil {
			return nil, errors.NewValidationError(fmt.Sprintf("output %d has neither a kind nor a path", i))
		}
		var args []string
		for n, s := range out.Streams {
			args = append(args, "-map", o.mapRef(s.Label))
			if s.Codec != "" {
				args = append(args, fmt.Sprintf("-c:%d", n), s.Codec)
			}
			for _, k := range sortedKeys(s.Parameters) {
				args = append(args, fmt.Sprintf("-%s:%d", k, n), s.Parameters[k].Render())
			}
		}
		if out.Stream != nil {
			args = append(args, "-map", o.mapRef(*out.Stream))
		}
		for _, k := range sortedKeys(out.Parameters) {
			args = append(args, "-"+k, out.Parameters[k].Render())
		}
		args = append(args, *out.Path)
		r.FileOutputs = append(r.FileOutputs, FileOutput{Args: args})
	}

	r.FilterComplex = strings.Join(chains, ";")
	return r, nil
}

// linkRef renders a label as a filtergraph link.
func (o *Order) linkRef(label string) string {
	if ref, ok := o.inputSpecifier(label); ok {
		return "[" + ref + "]"
	}
	return "[" + label + "]"
}

// mapRef renders a label as a -map argument.
func (o *Order) mapRef(label string) string {
	if ref, ok := o.inputSpecifier(label); ok {
		return ref
	}
	return "[" + label + "]"
}

// inputSpecifier returns the ffmpeg stream specifier of an input label.
func (o *Order) inputSpecifier(label string) (string, bool) {
	for pos, in := range o.Inputs {
		switch v := in.(type) {
		case StreamsInput:
			for _, ref := range v.Streams {
				if ref.Label != nil && *ref.Label == label {
					return fmt.Sprintf("%d:%d", pos, ref.Index), true
				}
			}
		case SourceInput:
			if v.Label == label {
				return fmt.Sprintf("%d:%s:0", pos, v.Media[:1]), true
			}
		}
	}
	return "", false
}

// renderArgs builds "k=v:k=v" with option-level escaping of each value,
// then escapes the whole string for the filtergraph level.
func renderArgs(params map[string]ParameterValue) string {
	if len(params) == 0 {
		return ""
	}
	parts := make([]string, 0, len(params))
	for _, k := range sortedKeys(params) {
		parts = append(parts, k+"="+escapeOptionValue(params[k].Render()))
	}
	return escapeGraphArgs(strings.Join(parts, ":"))
}

var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

func escapeOptionValue(s string) string { return optionEscaper.Replace(s) }

func escapeGraphArgs(s string) string { return graphEscaper.Replace(s) }
