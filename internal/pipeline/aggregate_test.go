package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"income-predictor/internal/features"
)

func TestAttribution_Top(t *testing.T) {
	a := Attribution{
		{Feature: "age", Value: 0.1},
		{Feature: "sex", Value: -0.7},
		{Feature: "country", Value: 0.3},
	}

	top := a.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, "sex", top[0].Feature)
	assert.Equal(t, "country", top[1].Feature)
	assert.Len(t, a.Top(-1), 3)
	assert.Equal(t, "age", a[0].Feature, "Top must not reorder the receiver")

	assert.InDelta(t, -0.3, a.Total(), 1e-12)
	_, ok := a.Get("education")
	assert.False(t, ok)
}

func TestCheckLossless(t *testing.T) {
	values := []float64{0.1, 0.2, 0.3}
	assert.NoError(t, checkLossless(Attribution{{Feature: "a", Value: 0.6}}, values))
	assert.ErrorIs(t, checkLossless(Attribution{{Feature: "a", Value: 0.5}}, values), ErrAttributionDrift)
}

func TestResult_Summary(t *testing.T) {
	r := &Result{Label: ">50K", ProbabilityPercent: 73.456789}
	assert.Equal(t, "With the probability of 73.4568% your income would be >50K", r.Summary())

	r = &Result{Label: "<=50K", ProbabilityPercent: 50}
	assert.Equal(t, "With the probability of 50% your income would be <=50K", r.Summary())
	assert.Equal(t, "With the probability of 50% your income would be 50K or below", r.SummaryAs("50K or below"))
}

func TestAggregate_WidthMismatch(t *testing.T) {
	_, err := Aggregate(features.ColumnLayout{}, []float64{1})
	assert.Error(t, err)
}
