package features

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// preparedRecord returns a record in the shape the encoder consumes:
// recoded categories and a binned education label.
func preparedRecord(age float64, workclass, education, marital, country string) Record {
	return Record{
		FieldAge:           Num(age),
		FieldWorkclass:     Cat(workclass),
		FieldEducation:     Cat(education),
		FieldMaritalStatus: Cat(marital),
		FieldOccupation:    Cat("Sales"),
		FieldRelationship:  Cat("Family"),
		FieldEthnicGroup:   Cat("White"),
		FieldSex:           Cat("Male"),
		FieldCountry:       Cat(country),
		FieldCapitalGain:   Num(0),
		FieldCapitalLoss:   Num(0),
		FieldHoursPerWeek:  Num(40),
	}
}

var educationOrder = []string{"Under-grad", "Some-college", "HS-grad", "Above-grad"}

func trainingSet() []Record {
	return []Record{
		preparedRecord(25, "Private", "Under-grad", "Single", "Developing"),
		preparedRecord(35, "State-gov", "Some-college", "Married", "Developed"),
		preparedRecord(45, "Private", "HS-grad", "Married", "Developed"),
		preparedRecord(55, "Self-emp-inc", "Above-grad", "Single", "Developed"),
	}
}

func TestFit_LayoutWidthMatchesVector(t *testing.T) {
	enc, err := Fit(DefaultSpecs(educationOrder), trainingSet())
	require.NoError(t, err)

	layout := enc.Layout()
	total := 0
	for _, s := range layout.Spans() {
		assert.Greater(t, s.Width, 0)
		total += s.Width
	}
	assert.Equal(t, layout.Width(), total)
	assert.Len(t, layout.Columns(), layout.Width())

	for _, rec := range trainingSet() {
		vec, err := enc.Transform(rec)
		require.NoError(t, err)
		assert.Len(t, vec, layout.Width())
	}
}

func TestFit_BlockOrder(t *testing.T) {
	enc, err := Fit(DefaultSpecs(educationOrder), trainingSet())
	require.NoError(t, err)

	spans := enc.Layout().Spans()
	require.NotEmpty(t, spans)
	assert.Equal(t, FieldEducation, spans[0].Feature)
	assert.Equal(t, Ordinal, spans[0].Kind)

	// Ordinal, then numeric, then categorical.
	seenCategorical := false
	for _, s := range spans[1:] {
		if s.Kind == Categorical {
			seenCategorical = true
			continue
		}
		assert.False(t, seenCategorical, "numeric span %s after a categorical span", s.Feature)
	}
	assert.Equal(t, []string{"scaler__age"}, spans[1].Columns)
}

func TestFit_ReferenceCategoryDropped(t *testing.T) {
	enc, err := Fit(DefaultSpecs(educationOrder), trainingSet())
	require.NoError(t, err)

	span, ok := enc.Layout().Span(FieldWorkclass)
	require.True(t, ok)
	// Private is the lexicographically first category and is dropped.
	assert.Equal(t, []string{"onehot__workclass_Self-emp-inc", "onehot__workclass_State-gov"}, span.Columns)

	vec, err := enc.Transform(preparedRecord(30, "Private", "HS-grad", "Single", "Developed"))
	require.NoError(t, err)
	for i := span.Offset; i < span.Offset+span.Width; i++ {
		assert.Equal(t, 0.0, vec[i])
	}

	vec, err = enc.Transform(preparedRecord(30, "State-gov", "HS-grad", "Single", "Developed"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, vec[span.Offset])
	assert.Equal(t, 1.0, vec[span.Offset+1])
}

func TestFit_SingleCategoryContributesNoColumns(t *testing.T) {
	enc, err := Fit(DefaultSpecs(educationOrder), trainingSet())
	require.NoError(t, err)

	// Every training record has the same sex.
	_, ok := enc.Layout().Span(FieldSex)
	assert.False(t, ok)

	_, err = enc.Transform(preparedRecord(30, "Private", "HS-grad", "Single", "Developed"))
	require.NoError(t, err)

	rec := preparedRecord(30, "Private", "HS-grad", "Single", "Developed")
	rec[FieldSex] = Cat("Female")
	_, err = enc.Transform(rec)
	var unseen *UnseenCategoryError
	assert.True(t, errors.As(err, &unseen))
}

func TestFit_OrdinalPositions(t *testing.T) {
	enc, err := Fit(DefaultSpecs(educationOrder), trainingSet())
	require.NoError(t, err)

	for i, label := range educationOrder {
		vec, err := enc.Transform(preparedRecord(30, "Private", label, "Single", "Developed"))
		require.NoError(t, err)
		assert.Equal(t, float64(i), vec[0], label)
	}
}

func TestFit_Standardisation(t *testing.T) {
	enc, err := Fit(DefaultSpecs(educationOrder), trainingSet())
	require.NoError(t, err)

	stats := enc.Stats()
	assert.InDelta(t, 40.0, stats[FieldAge].Mean, 1e-9)
	// Population std of 25, 35, 45, 55.
	assert.InDelta(t, 11.180339887, stats[FieldAge].Std, 1e-6)
	// Constant columns fall back to unit scale.
	assert.Equal(t, 1.0, stats[FieldCapitalGain].Std)

	vec, err := enc.Transform(preparedRecord(40, "Private", "HS-grad", "Single", "Developed"))
	require.NoError(t, err)
	span, _ := enc.Layout().Span(FieldAge)
	assert.InDelta(t, 0.0, vec[span.Offset], 1e-12)

	// Serve-time values are scaled with the fitted statistics, not refitted.
	vec, err = enc.Transform(preparedRecord(90, "Private", "HS-grad", "Single", "Developed"))
	require.NoError(t, err)
	assert.InDelta(t, 50/11.180339887, vec[span.Offset], 1e-6)
}

func TestFit_CategorySpecMismatch(t *testing.T) {
	training := trainingSet()
	training[0][FieldEducation] = Cat("Doctorate")

	_, err := Fit(DefaultSpecs(educationOrder), training)
	var mismatch *CategorySpecMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, FieldEducation, mismatch.Field)
	assert.Contains(t, mismatch.Observed, "Doctorate")
}

func TestFit_OrdinalWithoutCategories(t *testing.T) {
	_, err := Fit(DefaultSpecs(nil), trainingSet())
	var mismatch *CategorySpecMismatchError
	assert.True(t, errors.As(err, &mismatch))
}

func TestFit_NoTrainingData(t *testing.T) {
	_, err := Fit(DefaultSpecs(educationOrder), nil)
	assert.ErrorIs(t, err, ErrNoTrainingData)
}

func TestFit_InvalidSpecs(t *testing.T) {
	tests := []struct {
		name  string
		specs []FeatureSpec
	}{
		{"empty", nil},
		{"duplicate", []FeatureSpec{{Name: FieldAge, Kind: Numeric}, {Name: FieldAge, Kind: Numeric}}},
		{"categories on numeric", []FeatureSpec{{Name: FieldAge, Kind: Numeric, Categories: []string{"x"}}}},
		{"unnamed", []FeatureSpec{{Kind: Numeric}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(tt.specs, trainingSet())
			assert.Error(t, err)
		})
	}
}

func TestTransform_UnseenCategory(t *testing.T) {
	enc, err := Fit(DefaultSpecs(educationOrder), trainingSet())
	require.NoError(t, err)

	rec := preparedRecord(30, "Federal-gov", "HS-grad", "Single", "Developed")
	_, err = enc.Transform(rec)
	var unseen *UnseenCategoryError
	require.True(t, errors.As(err, &unseen))
	assert.Equal(t, FieldWorkclass, unseen.Field)
	assert.Equal(t, "Federal-gov", unseen.Value)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "unseen_category", Reason(err))
}

func TestTransform_CountryUnseenInTraining(t *testing.T) {
	r, err := DefaultRecoder()
	require.NoError(t, err)

	train := trainingSet()
	for _, rec := range train {
		rec[FieldCountry] = Cat("Developed")
	}
	enc, err := Fit(DefaultSpecs(educationOrder), train)
	require.NoError(t, err)

	country, err := r.RecodeValue(FieldCountry, "Mexico")
	require.NoError(t, err)
	require.Equal(t, "Developing", country)

	rec := preparedRecord(30, "Private", "HS-grad", "Single", country)
	_, err = enc.Transform(rec)
	var unseen *UnseenCategoryError
	require.True(t, errors.As(err, &unseen), "expected UnseenCategoryError, got %v", err)
	assert.Equal(t, FieldCountry, unseen.Field)
	assert.Equal(t, "Developing", unseen.Value)
}

func TestTransform_MissingField(t *testing.T) {
	enc, err := Fit(DefaultSpecs(educationOrder), trainingSet())
	require.NoError(t, err)

	rec := preparedRecord(30, "Private", "HS-grad", "Single", "Developed")
	delete(rec, FieldHoursPerWeek)
	_, err = enc.Transform(rec)
	var missing *MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, FieldHoursPerWeek, missing.FieldName())
}

func TestTransformAll_ReportsRecordIndex(t *testing.T) {
	enc, err := Fit(DefaultSpecs(educationOrder), trainingSet())
	require.NoError(t, err)

	recs := trainingSet()
	recs[2][FieldCountry] = Cat("Atlantis")
	_, err = enc.TransformAll(recs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 2")

	var unseen *UnseenCategoryError
	assert.True(t, errors.As(err, &unseen))
}

func TestLayout_FoldAndOrigin(t *testing.T) {
	enc, err := Fit(DefaultSpecs(educationOrder), trainingSet())
	require.NoError(t, err)

	layout := enc.Layout()
	values := make([]float64, layout.Width())
	for i := range values {
		values[i] = 1
	}
	folded, err := layout.Fold(values)
	require.NoError(t, err)
	require.Len(t, folded, layout.Len())
	for i, s := range layout.Spans() {
		assert.Equal(t, float64(s.Width), folded[i], s.Feature)
	}

	_, err = layout.Fold(values[1:])
	assert.Error(t, err)

	field, err := layout.Origin(0)
	require.NoError(t, err)
	assert.Equal(t, FieldEducation, field)
	_, err = layout.Origin(layout.Width())
	assert.Error(t, err)
}
