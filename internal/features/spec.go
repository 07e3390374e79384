package features

import "fmt"

// Kind selects the encoding strategy of a column.
type Kind int

const (
	Numeric Kind = iota
	Categorical
	Ordinal
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	case Ordinal:
		return "ordinal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText lets Kind render by name in JSON and YAML.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// FeatureSpec declares how one record field is encoded. Categories is the
// ascending category order and is required for Ordinal columns only.
type FeatureSpec struct {
	Name       string   `json:"name"`
	Kind       Kind     `json:"kind"`
	Categories []string `json:"categories,omitempty"`
}

// DefaultSpecs declares the income record. educationOrder is the ordinal
// order of the education buckets, usually Binner.Order().
func DefaultSpecs(educationOrder []string) []FeatureSpec {
	return []FeatureSpec{
		{Name: FieldAge, Kind: Numeric},
		{Name: FieldWorkclass, Kind: Categorical},
		{Name: FieldEducation, Kind: Ordinal, Categories: educationOrder},
		{Name: FieldMaritalStatus, Kind: Categorical},
		{Name: FieldOccupation, Kind: Categorical},
		{Name: FieldRelationship, Kind: Categorical},
		{Name: FieldEthnicGroup, Kind: Categorical},
		{Name: FieldSex, Kind: Categorical},
		{Name: FieldCapitalGain, Kind: Numeric},
		{Name: FieldCapitalLoss, Kind: Numeric},
		{Name: FieldHoursPerWeek, Kind: Numeric},
		{Name: FieldCountry, Kind: Categorical},
	}
}

// blockOrder is the order in which kinds are laid out in the vector.
var blockOrder = []Kind{Ordinal, Numeric, Categorical}

func validateSpecs(specs []FeatureSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("no feature specs declared")
	}
	names := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return fmt.Errorf("feature spec without name")
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate feature spec %q", s.Name)
		}
		names[s.Name] = true

		switch s.Kind {
		case Ordinal:
			if len(s.Categories) == 0 {
				return &CategorySpecMismatchError{Field: s.Name}
			}
			seen := make(map[string]bool, len(s.Categories))
			for _, c := range s.Categories {
				if seen[c] {
					return fmt.Errorf("feature %q: duplicate ordinal category %q", s.Name, c)
				}
				seen[c] = true
			}
		case Numeric, Categorical:
			if len(s.Categories) > 0 {
				return fmt.Errorf("feature %q: categories are only valid for ordinal columns", s.Name)
			}
		default:
			return fmt.Errorf("feature %q: unknown kind %v", s.Name, s.Kind)
		}
	}
	return nil
}

// orderSpecs returns specs grouped ordinal, numeric, categorical with the
// declaration order kept inside each block.
func orderSpecs(specs []FeatureSpec) []FeatureSpec {
	out := make([]FeatureSpec, 0, len(specs))
	for _, k := range blockOrder {
		for _, s := range specs {
			if s.Kind == k {
				out = append(out, s)
			}
		}
	}
	return out
}
