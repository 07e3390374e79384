package features

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrNoTrainingData is returned by Fit when no records are supplied.
var ErrNoTrainingData = errors.New("no training records")

// ErrInvalidValue is matched by every InvalidValueError.
var ErrInvalidValue = errors.New("invalid value")

// FieldError is implemented by every validation error in this package.
type FieldError interface {
	error
	FieldName() string
}

// MissingFieldError reports a field absent from a record.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Field)
}

func (e *MissingFieldError) FieldName() string { return e.Field }

// InvalidValueError reports a value of the wrong type.
type InvalidValueError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q for field %q: %s", e.Value, e.Field, e.Reason)
}

func (e *InvalidValueError) FieldName() string { return e.Field }

func (e *InvalidValueError) Unwrap() error { return ErrInvalidValue }

// UnknownCategoryError reports a value outside the declared vocabulary.
type UnknownCategoryError struct {
	Field string
	Value string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q for field %q", e.Value, e.Field)
}

func (e *UnknownCategoryError) FieldName() string { return e.Field }

// OutOfRangeError reports a numeric or ordinal input outside its domain.
type OutOfRangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfRangeError) Error() string {
	if math.IsInf(e.Max, 1) {
		return fmt.Sprintf("field %q value %g is out of range [%g, +inf)", e.Field, e.Value, e.Min)
	}
	return fmt.Sprintf("field %q value %g is out of range [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

func (e *OutOfRangeError) FieldName() string { return e.Field }

// CategorySpecMismatchError reports a declared ordinal order that does not
// match the categories observed in the training data.
type CategorySpecMismatchError struct {
	Field    string
	Declared []string
	Observed []string
}

func (e *CategorySpecMismatchError) Error() string {
	return fmt.Sprintf("field %q: declared categories [%s] do not match observed categories [%s]",
		e.Field, strings.Join(e.Declared, ", "), strings.Join(e.Observed, ", "))
}

func (e *CategorySpecMismatchError) FieldName() string { return e.Field }

// UnseenCategoryError reports a category that was not present at fit time.
type UnseenCategoryError struct {
	Field string
	Value string
}

func (e *UnseenCategoryError) Error() string {
	return fmt.Sprintf("category %q for field %q was not seen during fit", e.Value, e.Field)
}

func (e *UnseenCategoryError) FieldName() string { return e.Field }

// IsValidation reports whether err is a per-record input validation
// failure, as opposed to a configuration or internal error.
func IsValidation(err error) bool {
	var (
		missing *MissingFieldError
		invalid *InvalidValueError
		unknown *UnknownCategoryError
		rng     *OutOfRangeError
		unseen  *UnseenCategoryError
	)
	return errors.As(err, &missing) ||
		errors.As(err, &invalid) ||
		errors.As(err, &unknown) ||
		errors.As(err, &rng) ||
		errors.As(err, &unseen)
}

// Reason returns a short, stable label for err suitable for metrics.
func Reason(err error) string {
	var (
		missing  *MissingFieldError
		invalid  *InvalidValueError
		unknown  *UnknownCategoryError
		rng      *OutOfRangeError
		unseen   *UnseenCategoryError
		mismatch *CategorySpecMismatchError
	)
	switch {
	case errors.As(err, &missing):
		return "missing_field"
	case errors.As(err, &invalid):
		return "invalid_value"
	case errors.As(err, &unknown):
		return "unknown_category"
	case errors.As(err, &rng):
		return "out_of_range"
	case errors.As(err, &unseen):
		return "unseen_category"
	case errors.As(err, &mismatch):
		return "category_spec_mismatch"
	default:
		return "internal"
	}
}
