// Package ml provides the classifier and explainer contracts consumed by the
// prediction pipeline, together with the models shipped with the service: an
// in-process logistic regression with an exact linear explainer and a bridge
// to an external Python random forest explained with SHAP.
//
// Models are fitted once and are read-only afterwards.
package ml

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSingleClass is returned when training labels carry fewer than two classes.
	ErrSingleClass = errors.New("training labels must contain at least two classes")
	// ErrScriptUnavailable is returned when the external model cannot be started.
	ErrScriptUnavailable = errors.New("script model unavailable")
)

// Model is a fitted classifier that can explain its own output.
type Model interface {
	// Classes returns the class labels in the order used by PredictProba
	// and Explain.
	Classes() []string

	// Predict returns the predicted class label for x.
	Predict(x []float64) (string, error)

	// PredictProba returns one probability per class, aligned with Classes.
	PredictProba(x []float64) ([]float64, error)

	// Explain returns per-class, per-column attributions for x.
	Explain(x []float64) (Explanation, error)
}

// Evaluator is implemented by models that can classify and explain in a
// single call. The pipeline prefers it when available.
type Evaluator interface {
	Evaluate(ctx context.Context, x []float64) (Evaluation, error)
}

// Trainer fits a Model from encoded rows and their labels.
type Trainer interface {
	Fit(ctx context.Context, X [][]float64, y []string) (Model, error)
}

// Classification is the predicted label and its probability.
type Classification struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Explanation holds one attribution vector and one baseline per class. For
// every class c, sum(Attributions[c]) + Baselines[c] equals the raw model
// score of c.
type Explanation struct {
	Attributions [][]float64 `json:"attributions"`
	Baselines    []float64   `json:"baselines"`
}

// ForClass returns the attribution vector and baseline of class index c.
func (e Explanation) ForClass(c int) ([]float64, float64, error) {
	if c < 0 || c >= len(e.Attributions) || c >= len(e.Baselines) {
		return nil, 0, fmt.Errorf("explanation has no class %d (attributions=%d, baselines=%d)",
			c, len(e.Attributions), len(e.Baselines))
	}
	return e.Attributions[c], e.Baselines[c], nil
}

// Evaluation is the combined output of Predict, PredictProba and Explain.
type Evaluation struct {
	Label         string
	Probabilities []float64
	Explanation   Explanation
}

// Evaluate classifies and explains x with m, using the single-call path
// when m supports it.
func Evaluate(ctx context.Context, m Model, x []float64) (Evaluation, error) {
	if ev, ok := m.(Evaluator); ok {
		return ev.Evaluate(ctx, x)
	}

	label, err := m.Predict(x)
	if err != nil {
		return Evaluation{}, fmt.Errorf("predict failed: %w", err)
	}
	proba, err := m.PredictProba(x)
	if err != nil {
		return Evaluation{}, fmt.Errorf("predict_proba failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}
	exp, err := m.Explain(x)
	if err != nil {
		return Evaluation{}, fmt.Errorf("explain failed: %w", err)
	}
	return Evaluation{Label: label, Probabilities: proba, Explanation: exp}, nil
}

// ClassIndex returns the position of label in classes.
func ClassIndex(classes []string, label string) (int, error) {
	for i, c := range classes {
		if c == label {
			return i, nil
		}
	}
	return -1, fmt.Errorf("predicted label %q is not one of the model classes %v", label, classes)
}

// MetricsInterface defines the metrics the external model bridge reports.
type MetricsInterface interface {
	ScriptCallsInc()
	ScriptFailuresInc()
	ScriptTimeoutsInc()
	ScriptLatencyObserve(float64)
}
