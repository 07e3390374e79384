package features

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_JSONValues(t *testing.T) {
	var rec Record
	err := json.Unmarshal([]byte(`{"age": 39, "country": "France", "education": "13"}`), &rec)
	require.NoError(t, err)

	assert.Equal(t, Num(39), rec[FieldAge])
	assert.Equal(t, Cat("France"), rec[FieldCountry])

	// Numeric strings are accepted where a number is expected.
	n, err := rec.Number(FieldEducation)
	require.NoError(t, err)
	assert.Equal(t, 13.0, n)

	out, err := json.Marshal(Record{FieldAge: Num(39.5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"age": 39.5}`, string(out))

	err = json.Unmarshal([]byte(`{"age": true}`), &rec)
	assert.Error(t, err)
}

func TestRecord_Number(t *testing.T) {
	rec := Record{
		"a": Num(math.NaN()),
		"b": Cat("forty"),
		"c": Num(math.Inf(1)),
	}

	for _, field := range []string{"a", "b", "c"} {
		_, err := rec.Number(field)
		var invalid *InvalidValueError
		assert.True(t, errors.As(err, &invalid), field)
		assert.ErrorIs(t, err, ErrInvalidValue)
	}

	_, err := rec.Number("d")
	var missing *MissingFieldError
	assert.True(t, errors.As(err, &missing))
}

func TestRecord_Category(t *testing.T) {
	rec := Record{"a": Cat("  "), "b": Num(1)}

	_, err := rec.Category("a")
	var missing *MissingFieldError
	assert.True(t, errors.As(err, &missing))

	_, err = rec.Category("b")
	var invalid *InvalidValueError
	assert.True(t, errors.As(err, &invalid))
}

func TestCheckBounds(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value float64
		ok    bool
	}{
		{"adult", FieldAge, 18, true},
		{"minor", FieldAge, 17, false},
		{"too old", FieldAge, 100, false},
		{"full week", FieldHoursPerWeek, 168, true},
		{"over week", FieldHoursPerWeek, 169, false},
		{"negative gain", FieldCapitalGain, -1, false},
		{"large gain", FieldCapitalGain, 99999, true},
		{"negative loss", FieldCapitalLoss, -5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := rawRecord()
			rec[tt.field] = Num(tt.value)
			err := CheckBounds(rec, DefaultBounds)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var rng *OutOfRangeError
			require.True(t, errors.As(err, &rng))
			assert.Equal(t, tt.field, rng.Field)
			assert.Equal(t, "out_of_range", Reason(err))
		})
	}
}

func TestOutOfRangeError_Message(t *testing.T) {
	err := &OutOfRangeError{Field: FieldCapitalGain, Value: -1, Min: 0, Max: math.Inf(1)}
	assert.Contains(t, err.Error(), "+inf")

	err = &OutOfRangeError{Field: FieldAge, Value: 5, Min: 18, Max: 99}
	assert.Contains(t, err.Error(), "[18, 99]")
}

func TestReason_NonValidation(t *testing.T) {
	err := errors.New("boom")
	assert.False(t, IsValidation(err))
	assert.Equal(t, "internal", Reason(err))

	mismatch := &CategorySpecMismatchError{Field: FieldEducation}
	assert.False(t, IsValidation(mismatch))
	assert.Equal(t, "category_spec_mismatch", Reason(mismatch))
}
