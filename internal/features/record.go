// Package features turns raw income-survey records into model inputs.
// It holds the categorical recoding tables, the education binner and the
// column-wise encoder that produces a fixed-width numeric vector together
// with the ColumnLayout needed to map results back onto the original fields.
//
// Everything in this package is fitted or loaded once and is read-only
// afterwards, so a single Recoder, Binner or Encoder can be shared by any
// number of concurrent requests.
package features

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field names of the inbound record.
const (
	FieldAge           = "age"
	FieldWorkclass     = "workclass"
	FieldEducation     = "education"
	FieldMaritalStatus = "marital_status"
	FieldOccupation    = "occupation"
	FieldRelationship  = "relationship"
	FieldEthnicGroup   = "ethnic_group"
	FieldSex           = "sex"
	FieldCountry       = "country"
	FieldCapitalGain   = "capital_gain"
	FieldCapitalLoss   = "capital_loss"
	FieldHoursPerWeek  = "hours_per_week"
)

// Fields lists every field of the inbound record in declaration order.
var Fields = []string{
	FieldAge,
	FieldWorkclass,
	FieldEducation,
	FieldMaritalStatus,
	FieldOccupation,
	FieldRelationship,
	FieldEthnicGroup,
	FieldSex,
	FieldCountry,
	FieldCapitalGain,
	FieldCapitalLoss,
	FieldHoursPerWeek,
}

// NumericFields are the fields carried as numbers.
var NumericFields = map[string]bool{
	FieldAge:          true,
	FieldCapitalGain:  true,
	FieldCapitalLoss:  true,
	FieldHoursPerWeek: true,
}

// Value is a single raw field: either a number or a category string.
type Value struct {
	num     float64
	str     string
	numeric bool
}

// Num returns a numeric value.
func Num(v float64) Value { return Value{num: v, numeric: true} }

// Cat returns a categorical value.
func Cat(s string) Value { return Value{str: s} }

// IsNumber reports whether v holds a number.
func (v Value) IsNumber() bool { return v.numeric }

// Number returns the numeric payload.
func (v Value) Number() (float64, bool) { return v.num, v.numeric }

// Category returns the string payload.
func (v Value) Category() (string, bool) { return v.str, !v.numeric }

func (v Value) String() string {
	if v.numeric {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.str
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.numeric {
		return json.Marshal(v.num)
	}
	return json.Marshal(v.str)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Cat(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("value must be a number or a string: %w", err)
	}
	*v = Num(f)
	return nil
}

// Record maps field names to raw values. Records are treated as immutable:
// every transformation returns a new Record.
type Record map[string]Value

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Number returns the numeric value of field.
func (r Record) Number(field string) (float64, error) {
	v, ok := r[field]
	if !ok {
		return 0, &MissingFieldError{Field: field}
	}
	f, ok := v.Number()
	if !ok {
		// Query strings and CSV cells arrive as text.
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, &InvalidValueError{Field: field, Value: v.str, Reason: "expected a number"}
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &InvalidValueError{Field: field, Value: v.String(), Reason: "not a finite number"}
	}
	return f, nil
}

// Category returns the categorical value of field with surrounding
// whitespace removed.
func (r Record) Category(field string) (string, error) {
	v, ok := r[field]
	if !ok {
		return "", &MissingFieldError{Field: field}
	}
	s, ok := v.Category()
	if !ok {
		return "", &InvalidValueError{Field: field, Value: v.String(), Reason: "expected a category"}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &MissingFieldError{Field: field}
	}
	return s, nil
}

// Require checks that every named field is present.
func (r Record) Require(fields ...string) error {
	for _, f := range fields {
		if _, ok := r[f]; !ok {
			return &MissingFieldError{Field: f}
		}
	}
	return nil
}

// Bounds is an inclusive numeric domain.
type Bounds struct {
	Min float64
	Max float64
}

// DefaultBounds are the serve-time domains of the numeric inputs.
var DefaultBounds = map[string]Bounds{
	FieldAge:          {Min: 18, Max: 99},
	FieldCapitalGain:  {Min: 0, Max: math.Inf(1)},
	FieldCapitalLoss:  {Min: 0, Max: math.Inf(1)},
	FieldHoursPerWeek: {Min: 0, Max: 168},
}

// CheckBounds validates the numeric fields of r against bounds. Fields are
// checked in declaration order so the reported field is deterministic.
func CheckBounds(r Record, bounds map[string]Bounds) error {
	for _, field := range Fields {
		b, ok := bounds[field]
		if !ok {
			continue
		}
		v, err := r.Number(field)
		if err != nil {
			return err
		}
		if v < b.Min || v > b.Max {
			return &OutOfRangeError{Field: field, Value: v, Min: b.Min, Max: b.Max}
		}
	}
	return nil
}
