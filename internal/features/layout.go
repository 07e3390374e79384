package features

import "fmt"

// Span is the slice of the encoded vector produced by one record field.
type Span struct {
	Feature string   `json:"feature"`
	Kind    Kind     `json:"kind"`
	Offset  int      `json:"offset"`
	Width   int      `json:"width"`
	Columns []string `json:"columns"`
}

// ColumnLayout maps encoded positions back to the fields that produced
// them. It is fixed at fit time and never changes afterwards.
type ColumnLayout struct {
	spans []Span
	width int
}

func newLayout(spans []Span) ColumnLayout {
	l := ColumnLayout{spans: spans}
	for _, s := range spans {
		l.width += s.Width
	}
	return l
}

// Width is the length of every vector produced with this layout.
func (l ColumnLayout) Width() int { return l.width }

// Len is the number of fields that contribute at least one column.
func (l ColumnLayout) Len() int { return len(l.spans) }

// Spans returns a copy of the spans in vector order.
func (l ColumnLayout) Spans() []Span {
	out := make([]Span, len(l.spans))
	for i, s := range l.spans {
		s.Columns = append([]string(nil), s.Columns...)
		out[i] = s
	}
	return out
}

// Features returns the contributing field names in vector order.
func (l ColumnLayout) Features() []string {
	out := make([]string, len(l.spans))
	for i, s := range l.spans {
		out[i] = s.Feature
	}
	return out
}

// Span returns the span of feature.
func (l ColumnLayout) Span(feature string) (Span, bool) {
	for _, s := range l.spans {
		if s.Feature == feature {
			return s, true
		}
	}
	return Span{}, false
}

// Columns returns the name of every encoded position, in order.
func (l ColumnLayout) Columns() []string {
	out := make([]string, 0, l.width)
	for _, s := range l.spans {
		out = append(out, s.Columns...)
	}
	return out
}

// Origin returns the field that produced encoded position i.
func (l ColumnLayout) Origin(i int) (string, error) {
	for _, s := range l.spans {
		if i >= s.Offset && i < s.Offset+s.Width {
			return s.Feature, nil
		}
	}
	return "", fmt.Errorf("position %d is outside the layout width %d", i, l.width)
}

// Fold sums values span by span, returning one total per contributing
// field in vector order.
func (l ColumnLayout) Fold(values []float64) ([]float64, error) {
	if len(values) != l.width {
		return nil, fmt.Errorf("expected %d values for layout, got %d", l.width, len(values))
	}
	out := make([]float64, len(l.spans))
	for i, s := range l.spans {
		var sum float64
		for _, v := range values[s.Offset : s.Offset+s.Width] {
			sum += v
		}
		out[i] = sum
	}
	return out, nil
}
