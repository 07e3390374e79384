package features

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed vocab.yaml
var defaultVocabulary []byte

// TableSpec declares the recoding rule of one field.
type TableSpec struct {
	Sources     []string            `yaml:"sources"`
	Targets     []string            `yaml:"targets,omitempty"`
	Default     string              `yaml:"default,omitempty"`
	Passthrough bool                `yaml:"passthrough,omitempty"`
	Open        bool                `yaml:"open,omitempty"`
	Groups      map[string][]string `yaml:"groups,omitempty"`
}

// Vocabulary is the versioned set of recoding tables.
type Vocabulary struct {
	Version string               `yaml:"version"`
	Tables  map[string]TableSpec `yaml:"tables"`
}

// DefaultVocabulary returns the vocabulary compiled into the binary.
func DefaultVocabulary() (Vocabulary, error) {
	return ParseVocabulary(defaultVocabulary)
}

// LoadVocabulary reads a vocabulary YAML file.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("failed to read vocabulary file %s: %w", path, err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary decodes and validates a vocabulary document.
func ParseVocabulary(data []byte) (Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("failed to parse vocabulary: %w", err)
	}
	if err := v.Validate(); err != nil {
		return Vocabulary{}, fmt.Errorf("vocabulary validation failed: %w", err)
	}
	return v, nil
}

// Validate checks that every table is total over its declared sources.
func (v Vocabulary) Validate() error {
	if v.Version == "" {
		return fmt.Errorf("vocabulary version is required")
	}
	if len(v.Tables) == 0 {
		return fmt.Errorf("vocabulary declares no tables")
	}
	for _, field := range v.fields() {
		if err := v.Tables[field].validate(); err != nil {
			return fmt.Errorf("table %s: %w", field, err)
		}
	}
	return nil
}

func (v Vocabulary) fields() []string {
	out := make([]string, 0, len(v.Tables))
	for f := range v.Tables {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (t TableSpec) validate() error {
	if len(t.Sources) == 0 {
		return fmt.Errorf("no sources declared")
	}
	sources, err := toSet(t.Sources, "source")
	if err != nil {
		return err
	}

	var targets map[string]bool
	if t.Passthrough {
		if len(t.Targets) > 0 || t.Default != "" {
			return fmt.Errorf("passthrough tables take neither targets nor a default")
		}
		// A passthrough table may only collapse onto values it already knows.
		targets = sources
	} else {
		if len(t.Targets) == 0 {
			return fmt.Errorf("no targets declared")
		}
		if targets, err = toSet(t.Targets, "target"); err != nil {
			return err
		}
		if !targets[t.Default] {
			return fmt.Errorf("default %q is not a declared target", t.Default)
		}
	}
	if t.Open && t.Passthrough {
		return fmt.Errorf("passthrough tables cannot be open")
	}

	seen := make(map[string]string)
	for target, members := range t.Groups {
		if !targets[target] {
			return fmt.Errorf("group target %q is not a declared target", target)
		}
		for _, m := range members {
			if !sources[m] {
				return fmt.Errorf("group %q member %q is not a declared source", target, m)
			}
			if prev, dup := seen[m]; dup {
				return fmt.Errorf("source %q is mapped to both %q and %q", m, prev, target)
			}
			seen[m] = target
		}
	}
	return nil
}

// fallback returns the target for values outside the declared sources.
// Only open tables have one.
func (t TableSpec) fallback() (string, bool) {
	if !t.Open {
		return "", false
	}
	return t.Default, true
}

// lookup expands the table into a total map over every legal input.
func (t TableSpec) lookup() map[string]string {
	out := make(map[string]string, len(t.Sources)+len(t.Targets))
	for _, s := range t.Sources {
		if t.Passthrough {
			out[s] = s
		} else {
			out[s] = t.Default
		}
	}
	for target, members := range t.Groups {
		for _, m := range members {
			out[m] = target
		}
	}
	for _, target := range t.Targets {
		out[target] = target
	}
	return out
}

func toSet(values []string, what string) (map[string]bool, error) {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v == "" {
			return nil, fmt.Errorf("empty %s", what)
		}
		if set[v] {
			return nil, fmt.Errorf("duplicate %s %q", what, v)
		}
		set[v] = true
	}
	return set, nil
}
