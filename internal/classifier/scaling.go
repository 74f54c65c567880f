// internal/classifier/scaling.go
package classifier

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// ScalingMode normalizes raw classifier scores. The zero value is Clamp.
type ScalingMode int

const (
	// Clamp limits every value to [0, 1].
	Clamp ScalingMode = iota
	// Identity keeps raw scores unchanged.
	Identity
	// Linear maps values onto [0, 1] by min-max normalization.
	Linear
	// Log is Linear applied to the natural logarithm. Values must be positive.
	Log
)

var scalingNames = map[ScalingMode]string{
	Clamp:    "clamp",
	Identity: "identity",
	Linear:   "linear",
	Log:      "log",
}

func (m ScalingMode) String() string {
	if s, ok := scalingNames[m]; ok {
		return s
	}
	return fmt.Sprintf("ScalingMode(%d)", int(m))
}

// ParseScalingMode accepts the lower or upper case name of a mode.
func ParseScalingMode(s string) (ScalingMode, error) {
	for m, name := range scalingNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown scaling mode %q", s)
}

// Scale returns the scaled counterpart of values, which it does not modify.
// For Linear and Log, a constant or single element input scales to all ones.
func (m ScalingMode) Scale(values []float64) ([]float64, error) {
	out := slices.Clone(values)
	if len(out) == 0 {
		return out, nil
	}

	switch m {
	case Identity:
		return out, nil
	case Clamp:
		for i, v := range out {
			out[i] = min(1, max(0, v))
		}
		return out, nil
	case Linear, Log:
	default:
		return nil, fmt.Errorf("unsupported %s", m)
	}

	if m == Log {
		for i, v := range out {
			if v <= 0 {
				return nil, fmt.Errorf("log scaling requires positive scores, got %g", v)
			}
			out[i] = math.Log(v)
		}
	}

	lo, hi := slices.Min(out), slices.Max(out)
	if lo == hi {
		for i := range out {
			out[i] = 1
		}
		return out, nil
	}
	for i, v := range out {
		out[i] = (v - lo) / (hi - lo)
	}
	return out, nil
}
