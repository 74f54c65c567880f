// internal/classifier/scaling_test.go
package classifier_test

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/xkilldash9x/webtraversal/internal/classifier"
)

func TestScalingMode_Scale(t *testing.T) {
	input := []float64{-1.0, -0.5, 0.5, 1.0, 1.5}

	tests := []struct {
		mode classifier.ScalingMode
		in   []float64
		want []float64
	}{
		{classifier.Identity, input, input},
		{classifier.Clamp, input, []float64{0, 0, 0.5, 1, 1}},
		{classifier.Linear, input, []float64{0, 0.2, 0.6, 0.8, 1.0}},
		{classifier.Linear, []float64{3, 3, 3}, []float64{1, 1, 1}},
		{classifier.Linear, []float64{-7}, []float64{1}},
		{classifier.Log, []float64{1, math.E, math.E * math.E}, []float64{0, 0.5, 1}},
		{classifier.Log, []float64{2}, []float64{1}},
		{classifier.Clamp, nil, []float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			got, err := tt.mode.Scale(tt.in)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, got, 1e-9)
		})
	}
}

func TestScalingMode_Errors(t *testing.T) {
	_, err := classifier.Log.Scale([]float64{1, 0})
	assert.Error(t, err)
	_, err = classifier.ScalingMode(42).Scale([]float64{1})
	assert.Error(t, err)
}

func TestScalingMode_DoesNotModifyInput(t *testing.T) {
	in := []float64{-2, 5}
	_, err := classifier.Clamp.Scale(in)
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, 5}, in)
}

func TestParseScalingMode(t *testing.T) {
	m, err := classifier.ParseScalingMode("LINEAR")
	require.NoError(t, err)
	assert.Equal(t, classifier.Linear, m)
	_, err = classifier.ParseScalingMode("cubic")
	assert.Error(t, err)
	assert.Equal(t, classifier.Clamp, classifier.ScalingMode(0), "clamp is the default")
}

func TestLinear_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfN(rapid.Float64Range(-1e6, 1e6), 1, 50).Draw(t, "values")
		scaled, err := classifier.Linear.Scale(values)
		if err != nil {
			t.Fatal(err)
		}

		constant := slices.Min(values) == slices.Max(values)
		for i := range values {
			if scaled[i] < 0 || scaled[i] > 1 {
				t.Fatalf("value %g scaled outside [0,1]: %g", values[i], scaled[i])
			}
			if constant && scaled[i] != 1 {
				t.Fatalf("constant input must scale to 1, got %g", scaled[i])
			}
			for j := range values {
				if values[i] < values[j] && scaled[i] > scaled[j] {
					t.Fatalf("order not preserved: %g<%g but %g>%g", values[i], values[j], scaled[i], scaled[j])
				}
			}
		}

		// Reordering the input reorders the output the same way.
		perm := rapid.Permutation(indices(len(values))).Draw(t, "perm")
		shuffled := make([]float64, len(values))
		for i, p := range perm {
			shuffled[i] = values[p]
		}
		rescaled, _ := classifier.Linear.Scale(shuffled)
		for i, p := range perm {
			if rescaled[i] != scaled[p] {
				t.Fatalf("scaling depends on order")
			}
		}
	})
}

func TestClamp_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOf(rapid.Float64Range(-10, 10)).Draw(t, "values")
		scaled, err := classifier.Clamp.Scale(values)
		if err != nil {
			t.Fatal(err)
		}
		for i, v := range values {
			if v >= 0 && v <= 1 && scaled[i] != v {
				t.Fatalf("in-range value %g changed to %g", v, scaled[i])
			}
			if scaled[i] < 0 || scaled[i] > 1 {
				t.Fatalf("out of range: %g", scaled[i])
			}
		}
	})
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
