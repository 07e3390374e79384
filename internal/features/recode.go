package features

import (
	"fmt"
	"sort"
)

// Recoder collapses high-cardinality categorical fields into the small
// target vocabularies declared by a Vocabulary. Fields without a table pass
// through unchanged. Rules are independent per field.
type Recoder struct {
	version string
	tables  map[string]map[string]string
	open    map[string]string
	fields  []string
}

// NewRecoder validates v and expands its tables into total lookups.
func NewRecoder(v Vocabulary) (*Recoder, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	r := &Recoder{
		version: v.Version,
		tables:  make(map[string]map[string]string, len(v.Tables)),
		open:    make(map[string]string),
		fields:  v.fields(),
	}
	for field, t := range v.Tables {
		r.tables[field] = t.lookup()
		if target, ok := t.fallback(); ok {
			r.open[field] = target
		}
	}
	return r, nil
}

// DefaultRecoder returns a Recoder over the embedded vocabulary.
func DefaultRecoder() (*Recoder, error) {
	v, err := DefaultVocabulary()
	if err != nil {
		return nil, err
	}
	return NewRecoder(v)
}

// Version returns the vocabulary version the recoder was built from.
func (r *Recoder) Version() string { return r.version }

// Fields returns the fields that have a recoding table, sorted.
func (r *Recoder) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// RecodeValue maps a single raw category of field onto its target. Open
// tables send undeclared values to their default target.
func (r *Recoder) RecodeValue(field, value string) (string, error) {
	table, ok := r.tables[field]
	if !ok {
		return value, nil
	}
	if target, ok := table[value]; ok {
		return target, nil
	}
	if target, ok := r.open[field]; ok {
		return target, nil
	}
	return "", &UnknownCategoryError{Field: field, Value: value}
}

// Recode returns a copy of rec with every tabled field recoded. A missing
// tabled field or a value outside a closed table is an error.
func (r *Recoder) Recode(rec Record) (Record, error) {
	out := rec.Clone()
	for _, field := range r.fields {
		raw, err := rec.Category(field)
		if err != nil {
			return nil, err
		}
		target, err := r.RecodeValue(field, raw)
		if err != nil {
			return nil, err
		}
		out[field] = Cat(target)
	}
	return out, nil
}

// Targets returns the distinct values field can take after recoding.
func (r *Recoder) Targets(field string) ([]string, error) {
	table, ok := r.tables[field]
	if !ok {
		return nil, fmt.Errorf("no recoding table for field %q", field)
	}
	set := make(map[string]bool)
	for _, t := range table {
		set[t] = true
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}
