package pipeline

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"income-predictor/internal/features"
)

// attributionTolerance bounds the difference between the summed vector
// attribution and the summed per-feature attribution.
const attributionTolerance = 1e-6

// FeatureAttribution is the share of a prediction attributed to one input
// field.
type FeatureAttribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// Attribution is the per-field attribution of one prediction, in layout
// order.
type Attribution []FeatureAttribution

// Aggregate folds a per-column attribution vector back onto the fields
// that produced each column.
func Aggregate(layout features.ColumnLayout, values []float64) (Attribution, error) {
	folded, err := layout.Fold(values)
	if err != nil {
		return nil, err
	}
	names := layout.Features()
	out := make(Attribution, len(folded))
	for i, v := range folded {
		out[i] = FeatureAttribution{Feature: names[i], Value: v}
	}
	return out, nil
}

// checkLossless verifies that aggregation neither lost nor invented any
// attribution mass.
func checkLossless(agg Attribution, values []float64) error {
	want := floats.Sum(values)
	got := agg.Total()
	if diff := math.Abs(want - got); diff > attributionTolerance {
		return fmt.Errorf("%w: vector sum %g, aggregated sum %g", ErrAttributionDrift, want, got)
	}
	return nil
}

// Total is the sum of all feature attributions.
func (a Attribution) Total() float64 {
	return floats.Sum(a.Values())
}

// Names returns the feature names in order.
func (a Attribution) Names() []string {
	out := make([]string, len(a))
	for i, fa := range a {
		out[i] = fa.Feature
	}
	return out
}

// Values returns the attribution values in order.
func (a Attribution) Values() []float64 {
	out := make([]float64, len(a))
	for i, fa := range a {
		out[i] = fa.Value
	}
	return out
}

// Get returns the attribution of feature.
func (a Attribution) Get(feature string) (float64, bool) {
	for _, fa := range a {
		if fa.Feature == feature {
			return fa.Value, true
		}
	}
	return 0, false
}

// Top returns the n attributions with the largest magnitude, largest
// first. A negative n returns all of them.
func (a Attribution) Top(n int) Attribution {
	out := make(Attribution, len(a))
	copy(out, a)
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Value) > math.Abs(out[j].Value)
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
