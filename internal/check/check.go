// Package check defines the tuning knobs of the deep probe detectors.
package check

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/five82/deepprobe/internal/errors"
)

// TrackPair is a (stream_index, channel_count) qualification.
type TrackPair [2]uint32

// StreamIndex returns the stream index of the pair.
func (p TrackPair) StreamIndex() uint32 { return p[0] }

// Channels returns the channel count of the pair.
func (p TrackPair) Channels() uint32 { return p[1] }

// TrackLayout is one allowed audio layout: a list of track pairs.
type TrackLayout []TrackPair

// CheckParameterValue is one tuning knob. Every field is optional; an
// absent field means the constraint is not enforced, not that it is zero.
type CheckParameterValue struct {
	Min   *uint64       `json:"min,omitempty" yaml:"min,omitempty"`
	Max   *uint64       `json:"max,omitempty" yaml:"max,omitempty"`
	Num   *uint64       `json:"num,omitempty" yaml:"num,omitempty"`
	Den   *uint64       `json:"den,omitempty" yaml:"den,omitempty"`
	Th    *float64      `json:"th,omitempty" yaml:"th,omitempty"`
	Pairs []TrackLayout `json:"pairs,omitempty" yaml:"pairs,omitempty"`
}

// InRange reports whether v satisfies the inclusive min/max bounds that are
// present.
func (c CheckParameterValue) InRange(v int64) bool {
	if c.Min != nil && (v < 0 || uint64(v) < *c.Min) {
		return false
	}
	if c.Max != nil && v >= 0 && uint64(v) > *c.Max {
		return false
	}
	return true
}

// Ratio returns num/den when both are present.
func (c CheckParameterValue) Ratio() (num, den uint64, ok bool) {
	if c.Num == nil || c.Den == nil {
		return 0, 0, false
	}
	return *c.Num, *c.Den, true
}

func (c CheckParameterValue) validate(name string) error {
	if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
		return fmt.Errorf("%s: min %d is greater than max %d", name, *c.Min, *c.Max)
	}
	if c.Den != nil && *c.Den == 0 {
		return fmt.Errorf("%s: den must not be zero", name)
	}
	if c.Th != nil && (math.IsNaN(*c.Th) || math.IsInf(*c.Th, 0)) {
		return fmt.Errorf("%s: th must be a finite number", name)
	}
	for i, layout := range c.Pairs {
		if len(layout) == 0 {
			return fmt.Errorf("%s: layout %d is empty", name, i)
		}
		for _, p := range layout {
			if p.Channels() == 0 {
				return fmt.Errorf("%s: layout %d has a stream without channels", name, i)
			}
		}
	}
	return nil
}

// Parameters maps a parameter name to its value.
type Parameters map[string]CheckParameterValue

// Get returns the named parameter.
func (p Parameters) Get(name string) (CheckParameterValue, bool) {
	v, ok := p[name]
	return v, ok
}

// Threshold returns the th of the named parameter, or def when absent.
func (p Parameters) Threshold(name string, def float64) float64 {
	if v, ok := p[name]; ok && v.Th != nil {
		return *v.Th
	}
	return def
}

// Max returns the max of the named parameter.
func (p Parameters) Max(name string) (uint64, bool) {
	if v, ok := p[name]; ok && v.Max != nil {
		return *v.Max, true
	}
	return 0, false
}

// Min returns the min of the named parameter.
func (p Parameters) Min(name string) (uint64, bool) {
	if v, ok := p[name]; ok && v.Min != nil {
		return *v.Min, true
	}
	return 0, false
}

// Detector names as they appear in a DeepProbeCheck.
const (
	SilenceDetect         = "silence_detect"
	BlackDetect           = "black_detect"
	BlackAndSilenceDetect = "black_and_silence_detect"
	CropDetect            = "crop_detect"
	SceneDetect           = "scene_detect"
	OcrDetect             = "ocr_detect"
	LoudnessDetect        = "loudness_detect"
)

// knownParameters lists the parameter names each detector understands.
var knownParameters = map[string][]string{
	SilenceDetect:         {"duration", "noise"},
	BlackDetect:           {"duration", "picture", "pixel"},
	BlackAndSilenceDetect: {"duration"},
	CropDetect:            {"picture", "pixel", "spot_check"},
	SceneDetect:           {"threshold"},
	OcrDetect:             {"sample_rate", "confidence"},
	LoudnessDetect:        {"layout"},
}

// DeepProbeCheck selects the detectors to run. A nil field skips the
// detector; a present (possibly empty) field runs it.
type DeepProbeCheck struct {
	SilenceDetect         Parameters `json:"silence_detect,omitempty" yaml:"silence_detect,omitempty"`
	BlackDetect           Parameters `json:"black_detect,omitempty" yaml:"black_detect,omitempty"`
	BlackAndSilenceDetect Parameters `json:"black_and_silence_detect,omitempty" yaml:"black_and_silence_detect,omitempty"`
	CropDetect            Parameters `json:"crop_detect,omitempty" yaml:"crop_detect,omitempty"`
	SceneDetect           Parameters `json:"scene_detect,omitempty" yaml:"scene_detect,omitempty"`
	OcrDetect             Parameters `json:"ocr_detect,omitempty" yaml:"ocr_detect,omitempty"`
	LoudnessDetect        Parameters `json:"loudness_detect,omitempty" yaml:"loudness_detect,omitempty"`
}

// Detectors returns the parameters of every detector by name; absent
// detectors map to nil.
func (c *DeepProbeCheck) Detectors() map[string]Parameters {
	return map[string]Parameters{
		SilenceDetect:         c.SilenceDetect,
		BlackDetect:           c.BlackDetect,
		BlackAndSilenceDetect: c.BlackAndSilenceDetect,
		CropDetect:            c.CropDetect,
		SceneDetect:           c.SceneDetect,
		OcrDetect:             c.OcrDetect,
		LoudnessDetect:        c.LoudnessDetect,
	}
}

// Enabled returns the names of the detectors the check requests, sorted.
func (c *DeepProbeCheck) Enabled() []string {
	var names []string
	for name, params := range c.Detectors() {
		if params != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Validate rejects unknown parameter names and inconsistent values.
func (c *DeepProbeCheck) Validate() error {
	for name, params := range c.Detectors() {
		if params == nil {
			continue
		}
		allowed := knownParameters[name]
		for param, value := range params {
			if !slices.Contains(allowed, param) {
				return errors.NewConfigError(fmt.Sprintf(
					"%s: unknown parameter %q (expected one of %s)", name, param, strings.Join(allowed, ", ")), nil)
			}
			if err := value.validate(param); err != nil {
				return errors.NewConfigError(name, err)
			}
		}
	}
	return nil
}

// Hash returns a stable digest of the check, used to key cached reports.
// A detector present with no parameters hashes differently from an absent
// one.
func (c *DeepProbeCheck) Hash() string {
	enabled := make(map[string]Parameters)
	for name, params := range c.Detectors() {
		if params != nil {
			enabled[name] = params
		}
	}
	// encoding/json sorts map keys, so equal checks encode identically.
	data, _ := json.Marshal(enabled)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Parse decodes a JSON check. Unknown fields are rejected.
func Parse(data []byte) (*DeepProbeCheck, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var c DeepProbeCheck
	if err := dec.Decode(&c); err != nil {
		return nil, errors.NewConfigError("malformed deep probe check", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseYAML decodes a YAML check. Unknown fields are rejected.
func ParseYAML(data []byte) (*DeepProbeCheck, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var c DeepProbeCheck
	if err := dec.Decode(&c); err != nil {
		return nil, errors.NewConfigError("malformed deep probe check", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load decodes a check, choosing YAML for .yaml/.yml names and JSON
// otherwise.
func Load(name string, data []byte) (*DeepProbeCheck, error) {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return ParseYAML(data)
	}
	return Parse(data)
}

// Uint64 returns a pointer to v.
func Uint64(v uint64) *uint64 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
