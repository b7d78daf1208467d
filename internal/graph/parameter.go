package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// ParameterValue is a filter or output tuning knob. The set of variants is
// closed: Int64, Float, String, Rational and Bool.
type ParameterValue interface {
	isParameterValue()
	// Render returns the value as ffmpeg expects it in an option string.
	Render() string
}

// Int64 is an integer parameter.
type Int64 int64

// Float is a floating point parameter.
type Float float64

// String is a free-form parameter.
type String string

// Bool is a boolean parameter.
type Bool bool

// Rational is a num/den parameter such as a frame rate.
type Rational struct {
	Num int64
	Den int64
}

func (Int64) isParameterValue()    {}
func (Float) isParameterValue()    {}
func (String) isParameterValue()   {}
func (Bool) isParameterValue()     {}
func (Rational) isParameterValue() {}

func (v Int64) Render() string  { return strconv.FormatInt(int64(v), 10) }
func (v Float) Render() string  { return strconv.FormatFloat(float64(v), 'f', -1, 64) }
func (v String) Render() string { return string(v) }

func (v Bool) Render() string {
	if v {
		return "1"
	}
	return "0"
}

func (v Rational) Render() string { return fmt.Sprintf("%d/%d", v.Num, v.Den) }

// parameter type tags used by the serialized description.
const (
	paramTypeInt64    = "int64"
	paramTypeFloat    = "float"
	paramTypeString   = "string"
	paramTypeRational = "rational"
	paramTypeBool     = "bool"
)

// typeTag returns the serialized type tag of a parameter.
func typeTag(v ParameterValue) string {
	switch v.(type) {
	case Int64:
		return paramTypeInt64
	case Float:
		return paramTypeFloat
	case String:
		return paramTypeString
	case Rational:
		return paramTypeRational
	case Bool:
		return paramTypeBool
	default:
		return ""
	}
}

// decodeParameter converts a serialized {type, value} pair into a ParameterValue.
// Raw values come from either encoding/json (float64) or yaml.v3 (int, float64).
func decodeParameter(typ string, raw any) (ParameterValue, error) {
	switch typ {
	case paramTypeInt64:
		switch n := raw.(type) {
		case int:
			return Int64(n), nil
		case int64:
			return Int64(n), nil
		case uint64:
			return Int64(int64(n)), nil
		case float64:
			if n != float64(int64(n)) {
				return nil, fmt.Errorf("int64 parameter has fractional value %v", n)
			}
			return Int64(int64(n)), nil
		}
	case paramTypeFloat:
		switch n := raw.(type) {
		case int:
			return Float(float64(n)), nil
		case int64:
			return Float(float64(n)), nil
		case uint64:
			return Float(float64(n)), nil
		case float64:
			return Float(n), nil
		}
	case paramTypeString:
		if s, ok := raw.(string); ok {
			return String(s), nil
		}
	case paramTypeBool:
		if b, ok := raw.(bool); ok {
			return Bool(b), nil
		}
	case paramTypeRational:
		if s, ok := raw.(string); ok {
			return ParseRational(s)
		}
	default:
		return nil, fmt.Errorf("unknown parameter type %q", typ)
	}
	return nil, fmt.Errorf("value %v (%T) is not a valid %s", raw, raw, typ)
}

// encodeParameter returns the raw serialized value of a parameter.
func encodeParameter(v ParameterValue) any {
	switch p := v.(type) {
	case Int64:
		return int64(p)
	case Float:
		return float64(p)
	case String:
		return string(p)
	case Bool:
		return bool(p)
	case Rational:
		return p.Render()
	default:
		return nil
	}
}

// ParseRational parses "num/den" (or a bare integer) into a Rational.
func ParseRational(s string) (Rational, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return Rational{}, fmt.Errorf("invalid rational %q", s)
	}
	if !found {
		return Rational{Num: n, Den: 1}, nil
	}
	d, err := strconv.ParseInt(den, 10, 64)
	if err != nil || d == 0 {
		return Rational{}, fmt.Errorf("invalid rational %q", s)
	}
	return Rational{Num: n, Den: d}, nil
}
