package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// NumericStats are the standardisation statistics fitted for one column.
type NumericStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// EncodedVector is the numeric form of one record.
type EncodedVector []float64

type column struct {
	spec  FeatureSpec
	span  int
	index map[string]int // category -> position within span, -1 for the reference
	stats NumericStats
}

// Encoder converts recoded records into fixed-width vectors. It is fitted
// once and is safe for concurrent use afterwards.
type Encoder struct {
	columns []column
	layout  ColumnLayout
	stats   map[string]NumericStats
}

// Fit learns ordinal positions, standardisation statistics and one-hot
// vocabularies from training. Every configuration problem is reported here
// rather than at the first Transform.
func Fit(specs []FeatureSpec, training []Record) (*Encoder, error) {
	if err := validateSpecs(specs); err != nil {
		return nil, err
	}
	if len(training) == 0 {
		return nil, ErrNoTrainingData
	}

	enc := &Encoder{stats: make(map[string]NumericStats)}
	var spans []Span
	offset := 0

	for _, spec := range orderSpecs(specs) {
		col := column{spec: spec, span: -1}
		var (
			width   int
			columns []string
			err     error
		)

		switch spec.Kind {
		case Ordinal:
			col.index, err = fitOrdinal(spec, training)
			width = 1
			columns = []string{"ordinal__" + spec.Name}
		case Numeric:
			col.stats, err = fitNumeric(spec, training)
			enc.stats[spec.Name] = col.stats
			width = 1
			columns = []string{"scaler__" + spec.Name}
		case Categorical:
			var kept []string
			col.index, kept, err = fitCategorical(spec, training)
			width = len(kept)
			for _, c := range kept {
				columns = append(columns, "onehot__"+spec.Name+"_"+c)
			}
			if width == 0 {
				log.Warn().Str("feature", spec.Name).Msg("Categorical column has a single category and contributes no columns")
			}
		}
		if err != nil {
			return nil, err
		}

		if width > 0 {
			col.span = len(spans)
			spans = append(spans, Span{
				Feature: spec.Name,
				Kind:    spec.Kind,
				Offset:  offset,
				Width:   width,
				Columns: columns,
			})
			offset += width
		}
		enc.columns = append(enc.columns, col)
	}

	enc.layout = newLayout(spans)

	log.Info().
		Int("training_rows", len(training)).
		Int("features", len(specs)).
		Int("width", enc.layout.Width()).
		Msg("Feature encoder fitted")

	return enc, nil
}

func fitOrdinal(spec FeatureSpec, training []Record) (map[string]int, error) {
	observed := make(map[string]bool)
	for _, rec := range training {
		v, err := rec.Category(spec.Name)
		if err != nil {
			return nil, err
		}
		observed[v] = true
	}

	index := make(map[string]int, len(spec.Categories))
	for i, c := range spec.Categories {
		index[c] = i
	}

	mismatch := len(observed) != len(spec.Categories)
	for v := range observed {
		if _, ok := index[v]; !ok {
			mismatch = true
		}
	}
	if mismatch {
		return nil, &CategorySpecMismatchError{
			Field:    spec.Name,
			Declared: append([]string(nil), spec.Categories...),
			Observed: sortedKeys(observed),
		}
	}
	return index, nil
}

func fitNumeric(spec FeatureSpec, training []Record) (NumericStats, error) {
	values := make([]float64, len(training))
	for i, rec := range training {
		v, err := rec.Number(spec.Name)
		if err != nil {
			return NumericStats{}, err
		}
		values[i] = v
	}
	mean, variance := stat.PopMeanVariance(values, nil)
	std := math.Sqrt(variance)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	return NumericStats{Mean: mean, Std: std}, nil
}

func fitCategorical(spec FeatureSpec, training []Record) (map[string]int, []string, error) {
	observed := make(map[string]bool)
	for _, rec := range training {
		v, err := rec.Category(spec.Name)
		if err != nil {
			return nil, nil, err
		}
		observed[v] = true
	}

	cats := sortedKeys(observed)
	index := make(map[string]int, len(cats))
	// The first category is the dropped reference and encodes as all zeros.
	index[cats[0]] = -1
	for i, c := range cats[1:] {
		index[c] = i
	}
	return index, cats[1:], nil
}

// Transform encodes rec with the fitted layout.
func (e *Encoder) Transform(rec Record) (EncodedVector, error) {
	out := make(EncodedVector, e.layout.Width())
	for _, col := range e.columns {
		if col.span < 0 {
			// Zero-width columns still validate their input.
			if _, err := e.categoryIndex(col, rec); err != nil {
				return nil, err
			}
			continue
		}
		offset := e.layout.spans[col.span].Offset

		switch col.spec.Kind {
		case Ordinal:
			v, err := rec.Category(col.spec.Name)
			if err != nil {
				return nil, err
			}
			pos, ok := col.index[v]
			if !ok {
				return nil, &UnknownCategoryError{Field: col.spec.Name, Value: v}
			}
			out[offset] = float64(pos)
		case Numeric:
			v, err := rec.Number(col.spec.Name)
			if err != nil {
				return nil, err
			}
			out[offset] = (v - col.stats.Mean) / col.stats.Std
		case Categorical:
			pos, err := e.categoryIndex(col, rec)
			if err != nil {
				return nil, err
			}
			if pos >= 0 {
				out[offset+pos] = 1
			}
		}
	}
	return out, nil
}

func (e *Encoder) categoryIndex(col column, rec Record) (int, error) {
	v, err := rec.Category(col.spec.Name)
	if err != nil {
		return 0, err
	}
	pos, ok := col.index[v]
	if !ok {
		return 0, &UnseenCategoryError{Field: col.spec.Name, Value: v}
	}
	return pos, nil
}

// TransformAll encodes every record, stopping at the first failure.
func (e *Encoder) TransformAll(recs []Record) ([][]float64, error) {
	out := make([][]float64, len(recs))
	for i, rec := range recs {
		v, err := e.Transform(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Layout returns the fitted column layout.
func (e *Encoder) Layout() ColumnLayout { return e.layout }

// Stats returns the fitted standardisation statistics by field.
func (e *Encoder) Stats() map[string]NumericStats {
	out := make(map[string]NumericStats, len(e.stats))
	for k, v := range e.stats {
		out[k] = v
	}
	return out
}

// Specs returns the encoded specs in vector order.
func (e *Encoder) Specs() []FeatureSpec {
	out := make([]FeatureSpec, len(e.columns))
	for i, c := range e.columns {
		out[i] = c.spec
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
