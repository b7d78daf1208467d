package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/five82/deepprobe/internal/errors"
)

// Format is a report encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
	FormatText    Format = "text"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML, FormatMsgpack, FormatText:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "mp", "messagepack":
		return FormatMsgpack, nil
	default:
		return "", errors.NewConfigError(fmt.Sprintf("unknown report format %q", s), nil)
	}
}

// Displayer is a report with a human-readable text form.
type Displayer interface {
	Display(w io.Writer) error
}

// Encode writes v in the given format. The text format requires v to
// implement Displayer.
func Encode(w io.Writer, v any, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case FormatMsgpack:
		data, err := msgpack.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case FormatText:
		d, ok := v.(Displayer)
		if !ok {
			return fmt.Errorf("%T has no text form", v)
		}
		return d.Display(w)
	default:
		return errors.NewConfigError(fmt.Sprintf("unknown report format %q", format), nil)
	}
}

// DecodeDeepProbe reads a deep probe report. Lists omitted by the encoder
// come back empty.
func DecodeDeepProbe(data []byte, format Format) (*DeepProbeReport, error) {
	var r DeepProbeReport
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &r)
	case FormatYAML:
		err = yaml.NewDecoder(bytes.NewReader(data)).Decode(&r)
	case FormatMsgpack:
		err = msgpack.Unmarshal(data, &r)
	default:
		return nil, errors.NewConfigError(fmt.Sprintf("cannot decode %q reports", format), nil)
	}
	if err != nil {
		return nil, errors.NewJSONParseError(fmt.Sprintf("malformed %s report", format), err)
	}
	if r.Result != nil {
		r.Result.Normalize()
	}
	return &r, nil
}
