package features

import (
	"fmt"
	"math"
	"sort"
)

// Education code domain, inclusive.
const (
	EducationMin = 0
	EducationMax = 16
)

// Bucket is the binned form of an ordinal code.
type Bucket struct {
	Label string `json:"label" yaml:"label"`
	Rank  int    `json:"rank" yaml:"rank"`
}

// BucketRange maps the inclusive code range [Lo, Hi] onto a bucket.
type BucketRange struct {
	Label string `yaml:"label"`
	Lo    int    `yaml:"lo"`
	Hi    int    `yaml:"hi"`
	Rank  int    `yaml:"rank"`
}

// DefaultEducationBuckets is the education taxonomy the model is trained
// on. Ranks follow the scale of the trained model rather than code order.
var DefaultEducationBuckets = []BucketRange{
	{Label: "Under-grad", Lo: 0, Hi: 8, Rank: 0},
	{Label: "HS-grad", Lo: 9, Hi: 9, Rank: 2},
	{Label: "Some-college", Lo: 10, Hi: 12, Rank: 1},
	{Label: "Above-grad", Lo: 13, Hi: 16, Rank: 3},
}

// Binner maps an integer code on a closed domain onto ranked buckets.
type Binner struct {
	field   string
	min     int
	max     int
	byCode  []Bucket
	byLabel map[string]Bucket
	order   []string
}

// NewBinner builds a binner for field. The ranges must partition [min, max]
// without gaps or overlaps and the ranks must be a permutation of
// 0..len(ranges)-1.
func NewBinner(field string, min, max int, ranges []BucketRange) (*Binner, error) {
	if min > max {
		return nil, fmt.Errorf("binner %s: empty domain [%d, %d]", field, min, max)
	}
	if len(ranges) == 0 {
		return nil, fmt.Errorf("binner %s: no buckets declared", field)
	}

	sorted := make([]BucketRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Lo < sorted[j].Lo })

	b := &Binner{
		field:   field,
		min:     min,
		max:     max,
		byCode:  make([]Bucket, max-min+1),
		byLabel: make(map[string]Bucket, len(ranges)),
		order:   make([]string, len(ranges)),
	}

	next := min
	ranks := make(map[int]bool, len(ranges))
	for _, r := range sorted {
		switch {
		case r.Label == "":
			return nil, fmt.Errorf("binner %s: bucket without label", field)
		case r.Lo > r.Hi:
			return nil, fmt.Errorf("binner %s: bucket %s has empty range [%d, %d]", field, r.Label, r.Lo, r.Hi)
		case r.Lo < next:
			return nil, fmt.Errorf("binner %s: bucket %s overlaps at %d", field, r.Label, r.Lo)
		case r.Lo > next:
			return nil, fmt.Errorf("binner %s: codes [%d, %d] are not covered", field, next, r.Lo-1)
		case r.Rank < 0 || r.Rank >= len(ranges) || ranks[r.Rank]:
			return nil, fmt.Errorf("binner %s: bucket %s has invalid or duplicate rank %d", field, r.Label, r.Rank)
		}
		if _, dup := b.byLabel[r.Label]; dup {
			return nil, fmt.Errorf("binner %s: duplicate bucket label %s", field, r.Label)
		}
		ranks[r.Rank] = true

		bucket := Bucket{Label: r.Label, Rank: r.Rank}
		for code := r.Lo; code <= r.Hi && code <= max; code++ {
			b.byCode[code-min] = bucket
		}
		b.byLabel[r.Label] = bucket
		b.order[r.Rank] = r.Label
		next = r.Hi + 1
	}
	if next <= max {
		return nil, fmt.Errorf("binner %s: codes [%d, %d] are not covered", field, next, max)
	}
	if next > max+1 {
		return nil, fmt.Errorf("binner %s: buckets extend past the domain maximum %d", field, max)
	}
	return b, nil
}

// NewEducationBinner returns the binner for the education field.
func NewEducationBinner() (*Binner, error) {
	return NewBinner(FieldEducation, EducationMin, EducationMax, DefaultEducationBuckets)
}

// Field returns the record field the binner applies to.
func (b *Binner) Field() string { return b.field }

// Domain returns the inclusive code domain.
func (b *Binner) Domain() (int, int) { return b.min, b.max }

// Bin maps code onto its bucket.
func (b *Binner) Bin(code int) (Bucket, error) {
	if code < b.min || code > b.max {
		return Bucket{}, &OutOfRangeError{Field: b.field, Value: float64(code), Min: float64(b.min), Max: float64(b.max)}
	}
	return b.byCode[code-b.min], nil
}

// Lookup validates an already-binned label.
func (b *Binner) Lookup(label string) (Bucket, error) {
	bucket, ok := b.byLabel[label]
	if !ok {
		return Bucket{}, &UnknownCategoryError{Field: b.field, Value: label}
	}
	return bucket, nil
}

// Order returns the bucket labels sorted by rank, lowest first. This is
// the ordinal category order consumed by the encoder.
func (b *Binner) Order() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Apply returns a copy of rec with the binned field replaced by its bucket
// label. The field may carry either a raw integer code or a bucket label.
func (b *Binner) Apply(rec Record) (Record, error) {
	v, ok := rec[b.field]
	if !ok {
		return nil, &MissingFieldError{Field: b.field}
	}

	var bucket Bucket
	if f, isNum := v.Number(); isNum {
		if f != math.Trunc(f) {
			return nil, &InvalidValueError{Field: b.field, Value: v.String(), Reason: "expected an integer code"}
		}
		if f < float64(b.min) || f > float64(b.max) {
			return nil, &OutOfRangeError{Field: b.field, Value: f, Min: float64(b.min), Max: float64(b.max)}
		}
		bucket, _ = b.Bin(int(f))
	} else {
		label, err := rec.Category(b.field)
		if err != nil {
			return nil, err
		}
		if bucket, err = b.Lookup(label); err != nil {
			return nil, err
		}
	}

	out := rec.Clone()
	out[b.field] = Cat(bucket.Label)
	return out, nil
}
