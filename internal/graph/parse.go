package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/five82/deepprobe/internal/errors"
)

// Serialized form of an Order. Filters live under "graph".
type orderWire struct {
	Inputs  []inputWire  `json:"inputs" yaml:"inputs"`
	Graph   []filterWire `json:"graph,omitempty" yaml:"graph,omitempty"`
	Outputs []outputWire `json:"outputs" yaml:"outputs"`
}

type inputWire struct {
	Kind    string          `json:"kind" yaml:"kind"`
	ID      uint32          `json:"id" yaml:"id"`
	Path    string          `json:"path" yaml:"path"`
	Streams []streamRefWire `json:"streams,omitempty" yaml:"streams,omitempty"`
	Media   string          `json:"media,omitempty" yaml:"media,omitempty"`
	Label   string          `json:"label,omitempty" yaml:"label,omitempty"`
}

type streamRefWire struct {
	Index uint32  `json:"index" yaml:"index"`
	Label *string `json:"label,omitempty" yaml:"label,omitempty"`
}

type parameterWire struct {
	Type  string `json:"type" yaml:"type"`
	Value any    `json:"value" yaml:"value"`
}

type padWire struct {
	Kind        string `json:"kind,omitempty" yaml:"kind,omitempty"`
	StreamLabel string `json:"stream_label" yaml:"stream_label"`
}

type filterWire struct {
	Name       string                   `json:"name" yaml:"name"`
	Label      string                   `json:"label,omitempty" yaml:"label,omitempty"`
	Parameters map[string]parameterWire `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Inputs     []padWire                `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs    []padWire                `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

type outputStreamWire struct {
	Label      string                   `json:"label" yaml:"label"`
	Codec      string                   `json:"codec,omitempty" yaml:"codec,omitempty"`
	Parameters map[string]parameterWire `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

type outputWire struct {
	Kind       *string                  `json:"kind,omitempty" yaml:"kind,omitempty"`
	Keys       []string                 `json:"keys,omitempty" yaml:"keys,omitempty"`
	Stream     *string                  `json:"stream,omitempty" yaml:"stream,omitempty"`
	Path       *string                  `json:"path,omitempty" yaml:"path,omitempty"`
	Streams    []outputStreamWire       `json:"streams,omitempty" yaml:"streams,omitempty"`
	Parameters map[string]parameterWire `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Parse builds an Order from its JSON description. Malformed structure
// yields a parse error; label resolution is left to Validate/Setup.
func Parse(data []byte) (*Order, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w orderWire
	if err := dec.Decode(&w); err != nil {
		return nil, errors.NewParseError("malformed graph description", err)
	}
	return w.toOrder()
}

// ParseYAML builds an Order from its YAML description.
func ParseYAML(data []byte) (*Order, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var w orderWire
	if err := dec.Decode(&w); err != nil {
		return nil, errors.NewParseError("malformed graph description", err)
	}
	return w.toOrder()
}

// MarshalJSON encodes the Order in the same form Parse reads.
func (o *Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.toWire())
}

func (w orderWire) toOrder() (*Order, error) {
	o := &Order{}
	for i, in := range w.Inputs {
		switch InputKind(in.Kind) {
		case InputKindStreams:
			refs := make([]StreamRef, 0, len(in.Streams))
			for _, s := range in.Streams {
				refs = append(refs, StreamRef{Index: s.Index, Label: s.Label})
			}
			o.Inputs = append(o.Inputs, StreamsInput{ID: in.ID, Path: in.Path, Streams: refs})
		case InputKindSource:
			media := MediaKind(in.Media)
			if media != MediaVideo && media != MediaAudio {
				return nil, errors.NewParseError(fmt.Sprintf("input %d: unknown media %q", i, in.Media), nil)
			}
			if in.Label == "" {
				return nil, errors.NewParseError(fmt.Sprintf("input %d: source input needs a label", i), nil)
			}
			o.Inputs = append(o.Inputs, SourceInput{ID: in.ID, Path: in.Path, Media: media, Label: in.Label})
		default:
			return nil, errors.NewParseError(fmt.Sprintf("input %d: unknown kind %q", i, in.Kind), nil)
		}
		if in.Path == "" {
			return nil, errors.NewParseError(fmt.Sprintf("input %d: missing path", i), nil)
		}
	}

	for i, f := range w.Graph {
		if f.Name == "" {
			return nil, errors.NewParseError(fmt.Sprintf("filter %d: missing name", i), nil)
		}
		params, err := decodeParameters(f.Parameters)
		if err != nil {
			return nil, errors.NewParseError(fmt.Sprintf("filter %s", f.Name), err)
		}
		filter := Filter{Name: f.Name, Label: f.Label, Parameters: params}
		for _, p := range f.Inputs {
			if p.Kind != "" && p.Kind != "stream" {
				return nil, errors.NewParseError(fmt.Sprintf("filter %s: unknown input kind %q", f.Name, p.Kind), nil)
			}
			filter.Inputs = append(filter.Inputs, FilterInput{StreamLabel: p.StreamLabel})
		}
		for _, p := range f.Outputs {
			filter.Outputs = append(filter.Outputs, FilterOutput{StreamLabel: p.StreamLabel})
		}
		o.Filters = append(o.Filters, filter)
	}

	for i, out := range w.Outputs {
		output := Output{Keys: out.Keys, Stream: out.Stream, Path: out.Path}
		if out.Kind != nil {
			kind := OutputKind(*out.Kind)
			if kind != VideoMetadata && kind != AudioMetadata {
				return nil, errors.NewParseError(fmt.Sprintf("output %d: unknown kind %q", i, *out.Kind), nil)
			}
			output.Kind = &kind
		} else if out.Path == nil {
			return nil, errors.NewParseError(fmt.Sprintf("output %d: needs a kind or a path", i), nil)
		}
		params, err := decodeParameters(out.Parameters)
		if err != nil {
			return nil, errors.NewParseError(fmt.Sprintf("output %d", i), err)
		}
		output.Parameters = params
		for _, s := range out.Streams {
			sp, err := decodeParameters(s.Parameters)
			if err != nil {
				return nil, errors.NewParseError(fmt.Sprintf("output %d stream %s", i, s.Label), err)
			}
			output.Streams = append(output.Streams, OutputStream{Label: s.Label, Codec: s.Codec, Parameters: sp})
		}
		o.Outputs = append(o.Outputs, output)
	}
	return o, nil
}

func decodeParameters(in map[string]parameterWire) (map[string]ParameterValue, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]ParameterValue, len(in))
	for name, p := range in {
		v, err := decodeParameter(p.Type, p.Value)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func encodeParameters(in map[string]ParameterValue) map[string]parameterWire {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]parameterWire, len(in))
	for name, v := range in {
		out[name] = parameterWire{Type: typeTag(v), Value: encodeParameter(v)}
	}
	return out
}

func (o *Order) toWire() orderWire {
	var w orderWire
	for _, in := range o.Inputs {
		switch v := in.(type) {
		case StreamsInput:
			iw := inputWire{Kind: string(InputKindStreams), ID: v.ID, Path: v.Path}
			for _, s := range v.Streams {
				iw.Streams = append(iw.Streams, streamRefWire{Index: s.Index, Label: s.Label})
			}
			w.Inputs = append(w.Inputs, iw)
		case SourceInput:
			w.Inputs = append(w.Inputs, inputWire{
				Kind: string(InputKindSource), ID: v.ID, Path: v.Path, Media: string(v.Media), Label: v.Label,
			})
		}
	}
	for _, f := range o.Filters {
		fw := filterWire{Name: f.Name, Label: f.Label, Parameters: encodeParameters(f.Parameters)}
		for _, p := range f.Inputs {
			fw.Inputs = append(fw.Inputs, padWire{Kind: "stream", StreamLabel: p.StreamLabel})
		}
		for _, p := range f.Outputs {
			fw.Outputs = append(fw.Outputs, padWire{StreamLabel: p.StreamLabel})
		}
		w.Graph = append(w.Graph, fw)
	}
	for _, out := range o.Outputs {
		ow := outputWire{Keys: out.Keys, Stream: out.Stream, Path: out.Path, Parameters: encodeParameters(out.Parameters)}
		if out.Kind != nil {
			kind := string(*out.Kind)
			ow.Kind = &kind
		}
		for _, s := range out.Streams {
			ow.Streams = append(ow.Streams, outputStreamWire{Label: s.Label, Codec: s.Codec, Parameters: encodeParameters(s.Parameters)})
		}
		w.Outputs = append(w.Outputs, ow)
	}
	return w
}

// sortedKeys returns parameter names in a stable order.
func sortedKeys(params map[string]ParameterValue) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
