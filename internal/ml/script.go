package ml

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

//go:embed income_model.py
var embeddedScript []byte

// ScriptConfig configures the external model bridge.
type ScriptConfig struct {
	// PythonPath is the interpreter. Empty means discover one.
	PythonPath string
	// ScriptPath is the model script. Empty means write the embedded
	// script next to ModelPath.
	ScriptPath string
	// ModelPath is where the fitted model is persisted by the script.
	ModelPath string
	// Timeout bounds every explain call.
	Timeout time.Duration
	// FitTimeout bounds the single fit call.
	FitTimeout time.Duration
	// Trees is the forest size. It is kept odd so that a vote cannot
	// split evenly between the two classes.
	Trees   int
	Metrics MetricsInterface
}

// DefaultTrees is the forest size used when ScriptConfig.Trees is unset.
const DefaultTrees = 101

type scriptRequest struct {
	Mode      string      `json:"mode"`
	ModelPath string      `json:"model_path"`
	Features  [][]float64 `json:"features"`
	Labels    []string    `json:"labels,omitempty"`
	Trees     int         `json:"n_estimators,omitempty"`
}

type scriptResponse struct {
	Classes       []string    `json:"classes"`
	Prediction    string      `json:"prediction"`
	Probabilities []float64   `json:"probabilities"`
	Attributions  [][]float64 `json:"attributions"`
	Baselines     []float64   `json:"baselines"`
	Error         string      `json:"error,omitempty"`
}

// ScriptTrainer fits a model by running an external script once.
type ScriptTrainer struct {
	cfg ScriptConfig
}

// NewScriptTrainer resolves the interpreter and the script. It returns an
// error wrapping ErrScriptUnavailable when either cannot be found so that
// callers can fall back to an in-process model.
func NewScriptTrainer(cfg ScriptConfig) (*ScriptTrainer, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: model path is required", ErrScriptUnavailable)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FitTimeout <= 0 {
		cfg.FitTimeout = 10 * time.Minute
	}
	if cfg.Trees <= 0 {
		cfg.Trees = DefaultTrees
	}
	if cfg.Trees%2 == 0 {
		return nil, fmt.Errorf("forest size %d must be odd", cfg.Trees)
	}

	if cfg.PythonPath == "" {
		p, err := findPython()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScriptUnavailable, err)
		}
		cfg.PythonPath = p
	} else if _, err := exec.LookPath(cfg.PythonPath); err != nil {
		return nil, fmt.Errorf("%w: interpreter %s: %v", ErrScriptUnavailable, cfg.PythonPath, err)
	}

	if cfg.ScriptPath == "" {
		cfg.ScriptPath = filepath.Join(filepath.Dir(cfg.ModelPath), "income_model.py")
		if err := writeEmbeddedScript(cfg.ScriptPath); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScriptUnavailable, err)
		}
	} else if _, err := os.Stat(cfg.ScriptPath); err != nil {
		return nil, fmt.Errorf("%w: script %s: %v", ErrScriptUnavailable, cfg.ScriptPath, err)
	}

	log.Info().
		Str("python_path", cfg.PythonPath).
		Str("script_path", cfg.ScriptPath).
		Str("model_path", cfg.ModelPath).
		Msg("Script model bridge ready")

	return &ScriptTrainer{cfg: cfg}, nil
}

// Fit runs the script in fit mode and returns a model bound to the
// persisted result.
func (t *ScriptTrainer) Fit(ctx context.Context, X [][]float64, y []string) (Model, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("no training rows")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("got %d rows but %d labels", len(X), len(y))
	}

	m := &ScriptModel{cfg: t.cfg, width: len(X[0])}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.FitTimeout)
	defer cancel()

	resp, err := m.run(ctx, scriptRequest{
		Mode:      "fit",
		ModelPath: t.cfg.ModelPath,
		Features:  X,
		Labels:    y,
		Trees:     t.cfg.Trees,
	})
	if err != nil {
		return nil, fmt.Errorf("script fit failed: %w", err)
	}
	if len(resp.Classes) < 2 {
		return nil, ErrSingleClass
	}
	m.classes = resp.Classes

	log.Info().
		Int("rows", len(X)).
		Int("columns", m.width).
		Strs("classes", m.classes).
		Msg("Script model fitted")

	return m, nil
}

// ScriptModel is a model hosted by an external process. Each evaluation
// starts a fresh process, so concurrent calls never share state.
type ScriptModel struct {
	cfg     ScriptConfig
	classes []string
	width   int
}

// Classes returns the class labels reported at fit time.
func (m *ScriptModel) Classes() []string { return append([]string(nil), m.classes...) }

// Predict returns the predicted class label.
func (m *ScriptModel) Predict(x []float64) (string, error) {
	ev, err := m.Evaluate(context.Background(), x)
	if err != nil {
		return "", err
	}
	return ev.Label, nil
}

// PredictProba returns class probabilities aligned with Classes.
func (m *ScriptModel) PredictProba(x []float64) ([]float64, error) {
	ev, err := m.Evaluate(context.Background(), x)
	if err != nil {
		return nil, err
	}
	return ev.Probabilities, nil
}

// Explain returns per-class SHAP values for x.
func (m *ScriptModel) Explain(x []float64) (Explanation, error) {
	ev, err := m.Evaluate(context.Background(), x)
	if err != nil {
		return Explanation{}, err
	}
	return ev.Explanation, nil
}

// Evaluate classifies and explains x with a single script call.
func (m *ScriptModel) Evaluate(ctx context.Context, x []float64) (Evaluation, error) {
	if len(x) != m.width {
		return Evaluation{}, fmt.Errorf("expected %d features, got %d", m.width, len(x))
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Evaluation{}, fmt.Errorf("feature %d is not finite", i)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	resp, err := m.run(ctx, scriptRequest{
		Mode:      "explain",
		ModelPath: m.cfg.ModelPath,
		Features:  [][]float64{x},
	})
	if err != nil {
		return Evaluation{}, err
	}
	if err := m.validate(resp); err != nil {
		m.failure()
		log.Error().Err(err).Msg("Invalid script model response")
		return Evaluation{}, err
	}

	return Evaluation{
		Label:         resp.Prediction,
		Probabilities: resp.Probabilities,
		Explanation: Explanation{
			Attributions: resp.Attributions,
			Baselines:    resp.Baselines,
		},
	}, nil
}

func (m *ScriptModel) validate(resp scriptResponse) error {
	if len(resp.Classes) > 0 && strings.Join(resp.Classes, "\x00") != strings.Join(m.classes, "\x00") {
		return fmt.Errorf("script classes %v differ from fitted classes %v", resp.Classes, m.classes)
	}
	if len(resp.Probabilities) != len(m.classes) {
		return fmt.Errorf("expected %d probabilities, got %d", len(m.classes), len(resp.Probabilities))
	}
	for i, p := range resp.Probabilities {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return fmt.Errorf("invalid probability %d: %f", i, p)
		}
	}
	if len(resp.Attributions) != len(m.classes) || len(resp.Baselines) != len(m.classes) {
		return fmt.Errorf("expected attributions and baselines for %d classes, got %d and %d",
			len(m.classes), len(resp.Attributions), len(resp.Baselines))
	}
	for c, attr := range resp.Attributions {
		if len(attr) != m.width {
			return fmt.Errorf("class %d: expected %d attributions, got %d", c, m.width, len(attr))
		}
	}
	return nil
}

func (m *ScriptModel) run(ctx context.Context, req scriptRequest) (scriptResponse, error) {
	start := time.Now()
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ScriptCallsInc()
		defer func() { m.cfg.Metrics.ScriptLatencyObserve(time.Since(start).Seconds()) }()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return scriptResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, m.cfg.PythonPath, m.cfg.ScriptPath)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			if m.cfg.Metrics != nil {
				m.cfg.Metrics.ScriptTimeoutsInc()
			}
			log.Error().
				Str("mode", req.Mode).
				Dur("elapsed", time.Since(start)).
				Msg("Script model timed out")
			return scriptResponse{}, fmt.Errorf("script %s timed out: %w", req.Mode, context.DeadlineExceeded)
		}
		m.failure()

		// The script reports its own failures on stdout before exiting.
		var resp scriptResponse
		if json.Unmarshal(stdout.Bytes(), &resp) == nil && resp.Error != "" {
			log.Error().Str("mode", req.Mode).Str("script_error", resp.Error).Msg("Script model returned error")
			return scriptResponse{}, fmt.Errorf("script error: %s", resp.Error)
		}

		log.Error().
			Err(err).
			Str("mode", req.Mode).
			Str("python_path", m.cfg.PythonPath).
			Str("script_path", m.cfg.ScriptPath).
			Str("stderr", stderr.String()).
			Msg("Script model execution failed")

		if strings.Contains(stderr.String(), "Permission denied") {
			return scriptResponse{}, fmt.Errorf("permission denied running script: %w", err)
		}
		return scriptResponse{}, fmt.Errorf("script execution failed: %w, stderr: %s", err, stderr.String())
	}

	var resp scriptResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		m.failure()
		log.Error().
			Err(err).
			Str("stdout", stdout.String()).
			Str("stderr", stderr.String()).
			Msg("Failed to parse script response")
		return scriptResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Error != "" {
		m.failure()
		return scriptResponse{}, fmt.Errorf("script error: %s", resp.Error)
	}

	log.Debug().
		Str("mode", req.Mode).
		Dur("elapsed", time.Since(start)).
		Msg("Script call succeeded")

	return resp, nil
}

func (m *ScriptModel) failure() {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ScriptFailuresInc()
	}
}

func writeEmbeddedScript(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create script directory: %w", err)
	}
	return os.WriteFile(path, embeddedScript, 0o755)
}

const probeImports = "import sys, sklearn, shap; print('Python', sys.version)"

func findPython() (string, error) {
	var candidates []string

	if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
		candidates = append(candidates,
			filepath.Join(venv, "bin", "python3"),
			filepath.Join(venv, "bin", "python"),
			filepath.Join(venv, "Scripts", "python.exe"),
		)
	}

	if execPath, err := os.Executable(); err == nil {
		dir := filepath.Dir(execPath)
		for _, root := range []string{dir, filepath.Dir(dir)} {
			candidates = append(candidates,
				filepath.Join(root, "venv", "bin", "python3"),
				filepath.Join(root, ".venv", "bin", "python3"),
			)
		}
	}

	for _, name := range []string{"python3", "python"} {
		if p, err := exec.LookPath(name); err == nil {
			candidates = append(candidates, p)
		}
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err != nil {
			continue
		}
		out, err := exec.Command(c, "-c", probeImports).Output()
		if err == nil && strings.Contains(string(out), "Python 3") {
			log.Info().Str("python_path", c).Msg("Using Python interpreter")
			return c, nil
		}
	}

	return "", fmt.Errorf("no Python 3 interpreter with scikit-learn and shap found")
}
