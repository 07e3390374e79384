// Package pipeline wires the recoder, the education binner, the feature
// encoder and a fitted model into a single prediction path that returns a
// label, its probability and the attribution of the prediction to each
// original input field.
//
// A Pipeline is built once, either from already fitted parts with New or
// from raw training records with Train, and is immutable afterwards. It is
// safe for concurrent use without locking.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"income-predictor/internal/features"
	"income-predictor/internal/ml"
)

// NotEarningValue is the recoded workclass of people without income.
const NotEarningValue = "Without-pay"

var (
	// ErrInconsistentPrediction is returned when the model assigns less
	// than half of the probability mass to its own predicted label.
	ErrInconsistentPrediction = errors.New("predicted label has probability below 0.5")
	// ErrAttributionDrift is returned when folding attributions onto
	// fields changes their total.
	ErrAttributionDrift = errors.New("aggregated attribution does not match the attribution vector")
)

// NotEarningError rejects records that describe someone without earnings.
type NotEarningError struct {
	Field string
	Value string
}

func (e *NotEarningError) Error() string {
	return fmt.Sprintf("field %q value %q: income prediction requires someone in paid work", e.Field, e.Value)
}

func (e *NotEarningError) FieldName() string { return e.Field }

// Stage is a step of the prediction state machine.
type Stage int

const (
	StageRaw Stage = iota
	StageRecoded
	StageEncoded
	StageClassified
	StageExplained
	StageAggregated
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageRaw:
		return "raw"
	case StageRecoded:
		return "recoded"
	case StageEncoded:
		return "encoded"
	case StageClassified:
		return "classified"
	case StageExplained:
		return "explained"
	case StageAggregated:
		return "aggregated"
	case StageDone:
		return "done"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// MetricsInterface defines the metrics the pipeline reports.
type MetricsInterface interface {
	PredictionsInc()
	RejectionsInc(reason string)
	PredictionLatencyObserve(float64)
	PredictionProbabilityObserve(float64)
	ModelFitObserve(rows int, seconds float64)
}

// Config holds the fixed parts of a pipeline.
type Config struct {
	Recoder *features.Recoder
	Binner  *features.Binner
	// Specs declares the encoded fields. Nil means features.DefaultSpecs
	// with the binner order.
	Specs []features.FeatureSpec
	// Bounds are the serve-time numeric domains. Nil means
	// features.DefaultBounds.
	Bounds map[string]features.Bounds
	// Parallelism bounds PredictBatch. Zero or less means 4.
	Parallelism int
	Metrics     MetricsInterface
}

func (c Config) validate() error {
	if c.Recoder == nil {
		return fmt.Errorf("pipeline config: recoder is required")
	}
	if c.Binner == nil {
		return fmt.Errorf("pipeline config: binner is required")
	}
	return nil
}

func (c Config) specs() []features.FeatureSpec {
	if c.Specs != nil {
		return c.Specs
	}
	return features.DefaultSpecs(c.Binner.Order())
}

// Pipeline turns raw records into explained predictions.
type Pipeline struct {
	cfg     Config
	encoder *features.Encoder
	model   ml.Model
	classes []string
}

// New assembles a pipeline from a fitted encoder and model.
func New(cfg Config, enc *features.Encoder, model ml.Model) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if enc == nil || model == nil {
		return nil, fmt.Errorf("pipeline requires a fitted encoder and model")
	}
	classes := model.Classes()
	if len(classes) < 2 {
		return nil, fmt.Errorf("model reports %d classes: %w", len(classes), ml.ErrSingleClass)
	}
	if cfg.Bounds == nil {
		cfg.Bounds = features.DefaultBounds
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}

	return &Pipeline{
		cfg:     cfg,
		encoder: enc,
		model:   model,
		classes: classes,
	}, nil
}

// Train recodes and bins the training records, fits the encoder, fits the
// model once and returns the assembled pipeline. Records of people without
// earnings are dropped, as they are at serve time.
func Train(ctx context.Context, cfg Config, training []features.Record, labels []string, trainer ml.Trainer) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(training) != len(labels) {
		return nil, fmt.Errorf("got %d training records but %d labels", len(training), len(labels))
	}

	prepared := make([]features.Record, 0, len(training))
	kept := make([]string, 0, len(labels))
	skipped := 0
	for i, rec := range training {
		out, err := prepare(cfg, rec)
		if err != nil {
			var notEarning *NotEarningError
			if errors.As(err, &notEarning) {
				skipped++
				continue
			}
			return nil, fmt.Errorf("training record %d: %w", i, err)
		}
		prepared = append(prepared, out)
		kept = append(kept, labels[i])
	}
	if len(prepared) == 0 {
		return nil, features.ErrNoTrainingData
	}

	enc, err := features.Fit(cfg.specs(), prepared)
	if err != nil {
		return nil, fmt.Errorf("failed to fit encoder: %w", err)
	}
	X, err := enc.TransformAll(prepared)
	if err != nil {
		return nil, fmt.Errorf("failed to encode training data: %w", err)
	}

	start := time.Now()
	model, err := trainer.Fit(ctx, X, kept)
	if err != nil {
		return nil, fmt.Errorf("failed to fit model: %w", err)
	}
	elapsed := time.Since(start)
	if cfg.Metrics != nil {
		cfg.Metrics.ModelFitObserve(len(X), elapsed.Seconds())
	}

	log.Info().
		Int("rows", len(X)).
		Int("skipped_not_earning", skipped).
		Int("width", enc.Layout().Width()).
		Strs("classes", model.Classes()).
		Dur("fit_duration", elapsed).
		Msg("Prediction pipeline trained")

	return New(cfg, enc, model)
}

// prepare is the Raw to Recoded step shared by training and serving.
func prepare(cfg Config, rec features.Record) (features.Record, error) {
	out, err := cfg.Recoder.Recode(rec)
	if err != nil {
		return nil, err
	}
	if v, err := out.Category(features.FieldWorkclass); err == nil && v == NotEarningValue {
		return nil, &NotEarningError{Field: features.FieldWorkclass, Value: v}
	}
	return cfg.Binner.Apply(out)
}

// Prepare recodes and bins rec and checks the serve-time numeric bounds.
func (p *Pipeline) Prepare(rec features.Record) (features.Record, error) {
	out, err := prepare(p.cfg, rec)
	if err != nil {
		return nil, err
	}
	if err := features.CheckBounds(out, p.cfg.Bounds); err != nil {
		return nil, err
	}
	return out, nil
}

// Predict runs rec through every stage and returns the explained
// prediction. Typed validation errors are returned wrapped with the stage
// that raised them.
func (p *Pipeline) Predict(ctx context.Context, rec features.Record) (*Result, error) {
	start := time.Now()
	res, stage, err := p.run(ctx, rec)
	if err != nil {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.RejectionsInc(Reason(err))
		}
		log.Debug().
			Err(err).
			Str("stage", stage.String()).
			Str("reason", Reason(err)).
			Msg("Prediction rejected")
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.PredictionsInc()
		p.cfg.Metrics.PredictionLatencyObserve(time.Since(start).Seconds())
		p.cfg.Metrics.PredictionProbabilityObserve(res.ProbabilityPercent / 100)
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, rec features.Record) (*Result, Stage, error) {
	var (
		stage    = StageRaw
		prepared features.Record
		x        features.EncodedVector
		ev       ml.Evaluation
		classIdx int
		prob     float64
		attr     []float64
		baseline float64
		agg      Attribution
		err      error
	)

	for stage != StageDone {
		if err := ctx.Err(); err != nil {
			return nil, stage, err
		}

		switch stage {
		case StageRaw:
			prepared, err = p.Prepare(rec)
			if err != nil {
				return nil, StageRecoded, err
			}
			stage = StageRecoded

		case StageRecoded:
			x, err = p.encoder.Transform(prepared)
			if err != nil {
				return nil, StageEncoded, err
			}
			stage = StageEncoded

		case StageEncoded:
			ev, err = ml.Evaluate(ctx, p.model, x)
			if err != nil {
				return nil, StageClassified, err
			}
			classIdx, err = ml.ClassIndex(p.classes, ev.Label)
			if err != nil {
				return nil, StageClassified, err
			}
			if len(ev.Probabilities) != len(p.classes) {
				return nil, StageClassified, fmt.Errorf("model returned %d probabilities for %d classes",
					len(ev.Probabilities), len(p.classes))
			}
			prob = ev.Probabilities[classIdx]
			if prob < 0.5 {
				return nil, StageClassified, fmt.Errorf("%w: %q has %g", ErrInconsistentPrediction, ev.Label, prob)
			}
			stage = StageClassified

		case StageClassified:
			attr, baseline, err = ev.Explanation.ForClass(classIdx)
			if err != nil {
				return nil, StageExplained, err
			}
			if len(attr) != len(x) {
				return nil, StageExplained, fmt.Errorf("explainer returned %d attributions for %d columns", len(attr), len(x))
			}
			stage = StageExplained

		case StageExplained:
			agg, err = Aggregate(p.encoder.Layout(), attr)
			if err != nil {
				return nil, StageAggregated, err
			}
			if verifyAttribution {
				if err := checkLossless(agg, attr); err != nil {
					return nil, StageAggregated, err
				}
			}
			stage = StageAggregated

		case StageAggregated:
			stage = StageDone
		}
	}

	return &Result{
		ID:                 uuid.NewString(),
		Label:              ev.Label,
		ProbabilityPercent: prob * 100,
		Attributions:       agg,
		Baseline:           baseline,
		Input:              rec.Clone(),
		CreatedAt:          time.Now().UTC(),
	}, StageDone, nil
}

// PredictBatch predicts every record concurrently with bounded
// parallelism. It fails as a whole on the first rejected record.
func (p *Pipeline) PredictBatch(ctx context.Context, recs []features.Record) ([]*Result, error) {
	results := make([]*Result, len(recs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Parallelism)

	for i, rec := range recs {
		g.Go(func() error {
			res, err := p.Predict(ctx, rec)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Classes returns the model classes.
func (p *Pipeline) Classes() []string { return append([]string(nil), p.classes...) }

// Encoder returns the fitted encoder.
func (p *Pipeline) Encoder() *features.Encoder { return p.encoder }

// Model returns the fitted model.
func (p *Pipeline) Model() ml.Model { return p.model }

// Info describes the fitted pipeline.
type Info struct {
	VocabularyVersion string                           `json:"vocabulary_version"`
	Classes           []string                         `json:"classes"`
	EducationOrder    []string                         `json:"education_order"`
	Width             int                              `json:"width"`
	Spans             []features.Span                  `json:"spans"`
	Stats             map[string]features.NumericStats `json:"stats"`
}

// Info returns the layout and fit-time statistics of the pipeline.
func (p *Pipeline) Info() Info {
	layout := p.encoder.Layout()
	return Info{
		VocabularyVersion: p.cfg.Recoder.Version(),
		Classes:           p.Classes(),
		EducationOrder:    p.cfg.Binner.Order(),
		Width:             layout.Width(),
		Spans:             layout.Spans(),
		Stats:             p.encoder.Stats(),
	}
}

// Reason returns a short, stable label for a prediction error, suitable
// for metrics.
func Reason(err error) string {
	var notEarning *NotEarningError
	switch {
	case errors.As(err, &notEarning):
		return "not_earning"
	case errors.Is(err, ErrInconsistentPrediction):
		return "inconsistent_prediction"
	case errors.Is(err, ErrAttributionDrift):
		return "attribution_drift"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return features.Reason(err)
	}
}

// IsValidation reports whether err was caused by the input record rather
// than by the pipeline or the model.
func IsValidation(err error) bool {
	var notEarning *NotEarningError
	return errors.As(err, &notEarning) || features.IsValidation(err)
}
