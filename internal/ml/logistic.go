package ml

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// LogisticTrainer fits a binary logistic regression with full-batch
// gradient descent. Classes are the sorted distinct labels and the second
// one is the positive class.
type LogisticTrainer struct {
	LearningRate float64
	Epochs       int
	L2           float64
}

// DefaultLogisticTrainer returns the trainer used when nothing is configured.
func DefaultLogisticTrainer() LogisticTrainer {
	return LogisticTrainer{LearningRate: 0.1, Epochs: 500, L2: 0.001}
}

// Fit trains the model. It honours ctx cancellation between epochs.
func (t LogisticTrainer) Fit(ctx context.Context, X [][]float64, y []string) (Model, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("no training rows")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("got %d rows but %d labels", len(X), len(y))
	}
	if t.LearningRate <= 0 || t.Epochs <= 0 || t.L2 < 0 {
		return nil, fmt.Errorf("invalid trainer settings: learning_rate=%g epochs=%d l2=%g", t.LearningRate, t.Epochs, t.L2)
	}

	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), width)
		}
	}

	classes := distinct(y)
	if len(classes) != 2 {
		if len(classes) < 2 {
			return nil, ErrSingleClass
		}
		return nil, fmt.Errorf("logistic model supports two classes, got %d: %v", len(classes), classes)
	}

	target := make([]float64, len(y))
	for i, label := range y {
		if label == classes[1] {
			target[i] = 1
		}
	}

	means := make([]float64, width)
	col := make([]float64, len(X))
	for j := 0; j < width; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		means[j] = stat.Mean(col, nil)
	}

	start := time.Now()
	n := float64(len(X))
	weights := make([]float64, width)
	grad := make([]float64, width)
	var bias, loss float64

	for epoch := 0; epoch < t.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training cancelled at epoch %d: %w", epoch, err)
		}

		for j := range grad {
			grad[j] = 0
		}
		var gradBias float64
		loss = 0
		for i, row := range X {
			p := sigmoid(floats.Dot(weights, row) + bias)
			diff := p - target[i]
			floats.AddScaled(grad, diff, row)
			gradBias += diff
			loss -= target[i]*math.Log(clamp(p)) + (1-target[i])*math.Log(clamp(1-p))
		}

		floats.Scale(1/n, grad)
		floats.AddScaled(grad, t.L2, weights)
		floats.AddScaled(weights, -t.LearningRate, grad)
		bias -= t.LearningRate * gradBias / n
	}

	log.Info().
		Int("rows", len(X)).
		Int("columns", width).
		Int("epochs", t.Epochs).
		Float64("loss", loss/n).
		Dur("duration", time.Since(start)).
		Msg("Logistic model fitted")

	return NewLogisticModel(classes, weights, bias, means)
}

// LogisticModel is a fitted binary logistic regression. Its explanation
// is exact on the logit scale: attribution_i = w_i * (x_i - mean_i) and the
// baseline is the logit of the training mean.
type LogisticModel struct {
	classes []string
	weights []float64
	bias    float64
	means   []float64
}

// NewLogisticModel builds a model from fitted parameters. means are the
// per-column training means used as the explanation reference.
func NewLogisticModel(classes []string, weights []float64, bias float64, means []float64) (*LogisticModel, error) {
	if len(classes) != 2 {
		return nil, fmt.Errorf("logistic model needs exactly two classes, got %d", len(classes))
	}
	if classes[0] == classes[1] {
		return nil, ErrSingleClass
	}
	if len(weights) != len(means) {
		return nil, fmt.Errorf("got %d weights but %d means", len(weights), len(means))
	}
	return &LogisticModel{
		classes: append([]string(nil), classes...),
		weights: append([]float64(nil), weights...),
		bias:    bias,
		means:   append([]float64(nil), means...),
	}, nil
}

// Classes returns the class labels; the second one is the positive class.
func (m *LogisticModel) Classes() []string { return append([]string(nil), m.classes...) }

// Width is the expected input length.
func (m *LogisticModel) Width() int { return len(m.weights) }

// Weights returns a copy of the fitted coefficients.
func (m *LogisticModel) Weights() []float64 { return append([]float64(nil), m.weights...) }

// Bias returns the fitted intercept.
func (m *LogisticModel) Bias() float64 { return m.bias }

func (m *LogisticModel) logit(x []float64) (float64, error) {
	if len(x) != len(m.weights) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.weights), len(x))
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("feature %d is not finite", i)
		}
	}
	return floats.Dot(m.weights, x) + m.bias, nil
}

// PredictProba returns [P(classes[0]), P(classes[1])].
func (m *LogisticModel) PredictProba(x []float64) ([]float64, error) {
	z, err := m.logit(x)
	if err != nil {
		return nil, err
	}
	p := sigmoid(z)
	return []float64{1 - p, p}, nil
}

// Predict returns the more probable class. A tie at 0.5 resolves to the
// first class.
func (m *LogisticModel) Predict(x []float64) (string, error) {
	z, err := m.logit(x)
	if err != nil {
		return "", err
	}
	if sigmoid(z) > 0.5 {
		return m.classes[1], nil
	}
	return m.classes[0], nil
}

// Explain returns the linear attribution of x for both classes. The raw
// score of the positive class is the logit and that of the negative class
// is its negation.
func (m *LogisticModel) Explain(x []float64) (Explanation, error) {
	if _, err := m.logit(x); err != nil {
		return Explanation{}, err
	}

	pos := make([]float64, len(x))
	floats.SubTo(pos, x, m.means)
	floats.Mul(pos, m.weights)
	base := floats.Dot(m.weights, m.means) + m.bias

	neg := make([]float64, len(x))
	floats.ScaleTo(neg, -1, pos)

	return Explanation{
		Attributions: [][]float64{neg, pos},
		Baselines:    []float64{-base, base},
	}, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func clamp(p float64) float64 {
	const eps = 1e-12
	return math.Min(math.Max(p, eps), 1-eps)
}

func distinct(labels []string) []string {
	set := make(map[string]struct{})
	for _, l := range labels {
		set[l] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
