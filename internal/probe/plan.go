package probe

import (
	"fmt"
	"slices"

	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/detect"
	"github.com/five82/deepprobe/internal/errors"
	"github.com/five82/deepprobe/internal/report"
)

// detectorOrder is the invocation order of a deep probe. Detectors that
// read the results of others come after them.
var detectorOrder = []string{
	check.SilenceDetect,
	check.BlackDetect,
	check.BlackAndSilenceDetect,
	check.CropDetect,
	check.SceneDetect,
	check.OcrDetect,
	check.LoudnessDetect,
}

// dependent is implemented by detectors that consume earlier results.
type dependent interface {
	DependsOn() []string
}

// step is one detector invocation of a plan.
type step struct {
	name     string
	detector detect.Detector
	params   check.Parameters
	// implied is set for a dependency nobody asked for. It runs with default
	// parameters and its results are dropped once the plan completes.
	implied bool
}

// buildPlan lists the requested detectors in invocation order. Missing
// dependencies of a requested detector are added with default parameters.
func buildPlan(c *check.DeepProbeCheck, registry map[string]detect.Detector) ([]step, error) {
	requested := c.Detectors()
	wanted := make(map[string]bool)
	implied := make(map[string]bool)
	for _, name := range detectorOrder {
		if requested[name] == nil {
			continue
		}
		wanted[name] = true
		if d, ok := registry[name].(dependent); ok {
			for _, dep := range d.DependsOn() {
				if requested[dep] == nil {
					implied[dep] = true
				}
			}
		}
	}

	var plan []step
	for _, name := range detectorOrder {
		if !wanted[name] && !implied[name] {
			continue
		}
		d, ok := registry[name]
		if !ok {
			return nil, errors.NewConfigError(fmt.Sprintf("no detector registered for %s", name), nil)
		}
		params := requested[name]
		if params == nil {
			params = check.Parameters{}
		}
		plan = append(plan, step{name: name, detector: d, params: params, implied: implied[name]})
	}
	return plan, validatePlan(plan)
}

// validatePlan checks that every dependency runs before its dependent.
func validatePlan(plan []step) error {
	for i, s := range plan {
		d, ok := s.detector.(dependent)
		if !ok {
			continue
		}
		for _, dep := range d.DependsOn() {
			pos := slices.IndexFunc(plan, func(other step) bool { return other.name == dep })
			switch {
			case pos < 0:
				return errors.NewConfigError(fmt.Sprintf("%s requires %s, which is not planned", s.name, dep), nil)
			case pos > i:
				return errors.NewConfigError(fmt.Sprintf("%s runs before its dependency %s", s.name, dep), nil)
			}
		}
	}
	return nil
}

// dropImplied clears the results an implied step left in streams.
func dropImplied(streams []report.StreamProbeResult, plan []step) {
	for _, s := range plan {
		if !s.implied {
			continue
		}
		for i := range streams {
			st := &streams[i]
			switch s.name {
			case check.SilenceDetect:
				st.DetectedSilence = []report.SilenceResult{}
				st.SilentStream = nil
			case check.BlackDetect:
				st.DetectedBlack = []report.BlackResult{}
			}
		}
	}
}

// names returns the detector names of a plan.
func names(plan []step) []string {
	out := make([]string, len(plan))
	for i, s := range plan {
		out[i] = s.name
	}
	return out
}
