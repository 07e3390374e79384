package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"income-predictor/internal/features"
	"income-predictor/internal/pipeline"
)

func newResult(id string, ts time.Time) *pipeline.Result {
	return &pipeline.Result{
		ID:                 id,
		Label:              ">50K",
		ProbabilityPercent: 71.5,
		Attributions: pipeline.Attribution{
			{Feature: features.FieldEducation, Value: 0.4},
			{Feature: features.FieldAge, Value: -0.1},
		},
		Baseline: -1.2,
		Input: features.Record{
			features.FieldAge:     features.Num(42),
			features.FieldCountry: features.Cat("France"),
		},
		CreatedAt: ts,
	}
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	dbPath := filepath.Join(tempDir, DBFile)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	invalidPath := filepath.Join(t.TempDir(), "missing", "nested")

	_, err := New(invalidPath)
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestStorePrediction_RoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	res := newResult("a1", ts)
	if err := store.StorePrediction(res); err != nil {
		t.Fatalf("Failed to store prediction: %v", err)
	}

	got, err := store.GetPrediction("a1")
	if err != nil {
		t.Fatalf("Failed to get prediction: %v", err)
	}
	if got.Label != res.Label || got.ProbabilityPercent != res.ProbabilityPercent {
		t.Errorf("Prediction mismatch: got %+v", got)
	}
	if len(got.Attributions) != 2 || got.Attributions[0].Feature != features.FieldEducation {
		t.Errorf("Attributions not preserved: %+v", got.Attributions)
	}
	if got.Input[features.FieldCountry] != features.Cat("France") {
		t.Errorf("Input not preserved: %+v", got.Input)
	}
	if !got.CreatedAt.Equal(ts) {
		t.Errorf("Expected created at %v, got %v", ts, got.CreatedAt)
	}
}

func TestGetPrediction_NotFound(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	_, err = store.GetPrediction("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStorePrediction_RequiresID(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if err := store.StorePrediction(newResult("", time.Now())); err == nil {
		t.Error("Expected error for prediction without id")
	}
	if err := store.StorePrediction(nil); err == nil {
		t.Error("Expected error for nil prediction")
	}
}

func TestGetPredictionsInRange(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"p0", "p1", "p2", "p3"} {
		if err := store.StorePrediction(newResult(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Failed to store %s: %v", id, err)
		}
	}

	got, err := store.GetPredictionsInRange(base.Add(time.Minute), base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Range query failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 predictions, got %d", len(got))
	}
	if got[0].ID != "p1" || got[1].ID != "p2" {
		t.Errorf("Unexpected order: %s, %s", got[0].ID, got[1].ID)
	}

	n, err := store.Count()
	if err != nil || n != 4 {
		t.Errorf("Expected 4 stored predictions, got %d (%v)", n, err)
	}

	empty, err := store.GetPredictionsInRange(base.Add(time.Hour), base.Add(2*time.Hour))
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected empty range, got %d (%v)", len(empty), err)
	}
}
