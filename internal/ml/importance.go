package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// AttributionStats summarises the attributions served for one feature.
type AttributionStats struct {
	Name         string    `json:"name"`
	MeanAbsolute float64   `json:"mean_absolute"`
	Mean         float64   `json:"mean"`
	MinValue     float64   `json:"min_value"`
	MaxValue     float64   `json:"max_value"`
	UsageCount   int64     `json:"usage_count"`
	LastUpdated  time.Time `json:"last_updated"`
}

// AttributionTracker keeps a running global importance per feature, fed
// with the per-request attributions produced by the pipeline.
type AttributionTracker struct {
	mu       sync.RWMutex
	stats    map[string]*AttributionStats
	savePath string
}

// NewAttributionTracker creates a tracker for features. If savePath is set
// and holds previous data, it is loaded.
func NewAttributionTracker(features []string, savePath string) *AttributionTracker {
	t := &AttributionTracker{
		stats:    make(map[string]*AttributionStats, len(features)),
		savePath: savePath,
	}
	for _, name := range features {
		t.stats[name] = newAttributionStats(name)
	}

	if savePath != "" {
		if err := t.Load(); err != nil {
			log.Warn().Err(err).Str("path", savePath).Msg("Failed to load attribution data")
		}
	}
	return t
}

func newAttributionStats(name string) *AttributionStats {
	return &AttributionStats{
		Name:        name,
		MinValue:    math.Inf(1),
		MaxValue:    math.Inf(-1),
		LastUpdated: time.Now(),
	}
}

// finite returns a copy with the infinite bounds of an unused feature
// zeroed, since they do not survive JSON.
func (s *AttributionStats) finite() AttributionStats {
	c := *s
	if c.UsageCount == 0 {
		c.MinValue, c.MaxValue = 0, 0
	}
	return c
}

// Observe records one attribution per feature. names and values must have
// the same length.
func (t *AttributionTracker) Observe(names []string, values []float64) error {
	if len(names) != len(values) {
		return fmt.Errorf("got %d names but %d values", len(names), len(values))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for i, name := range names {
		v := values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		s, ok := t.stats[name]
		if !ok {
			s = newAttributionStats(name)
			t.stats[name] = s
		}
		s.UsageCount++
		n := float64(s.UsageCount)
		s.Mean += (v - s.Mean) / n
		s.MeanAbsolute += (math.Abs(v) - s.MeanAbsolute) / n
		s.MinValue = math.Min(s.MinValue, v)
		s.MaxValue = math.Max(s.MaxValue, v)
		s.LastUpdated = now
	}
	return nil
}

// Importance returns a copy of the current statistics.
func (t *AttributionTracker) Importance() map[string]AttributionStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]AttributionStats, len(t.stats))
	for name, s := range t.stats {
		out[name] = *s
	}
	return out
}

// TopFeatures returns the n features with the largest mean absolute
// attribution, most important first. Ties are broken by name.
func (t *AttributionTracker) TopFeatures(n int) []AttributionStats {
	t.mu.RLock()
	all := make([]AttributionStats, 0, len(t.stats))
	for _, s := range t.stats {
		all = append(all, s.finite())
	}
	t.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].MeanAbsolute != all[j].MeanAbsolute {
			return all[i].MeanAbsolute > all[j].MeanAbsolute
		}
		return all[i].Name < all[j].Name
	})

	if n < 0 || n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// Save writes the statistics to the save path as JSON.
func (t *AttributionTracker) Save() error {
	if t.savePath == "" {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(t.savePath), 0o755); err != nil {
		return err
	}

	out := make(map[string]AttributionStats, len(t.stats))
	for name, s := range t.stats {
		out[name] = s.finite()
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.savePath, data, 0o600)
}

// Load replaces the statistics with those stored at the save path. A
// missing file is not an error.
func (t *AttributionTracker) Load() error {
	if t.savePath == "" {
		return nil
	}

	data, err := os.ReadFile(t.savePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var loaded map[string]*AttributionStats
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse attribution data: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for name, s := range loaded {
		if s == nil {
			continue
		}
		if s.UsageCount == 0 {
			s.MinValue, s.MaxValue = math.Inf(1), math.Inf(-1)
		}
		t.stats[name] = s
	}
	return nil
}

// Reset clears all statistics.
func (t *AttributionTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name := range t.stats {
		t.stats[name] = newAttributionStats(name)
	}
}
