package features

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawRecord() Record {
	return Record{
		FieldAge:           Num(39),
		FieldWorkclass:     Cat("State-gov"),
		FieldEducation:     Num(13),
		FieldMaritalStatus: Cat("Never-married"),
		FieldOccupation:    Cat("Adm-clerical"),
		FieldRelationship:  Cat("Not-in-family"),
		FieldEthnicGroup:   Cat("White"),
		FieldSex:           Cat("Male"),
		FieldCountry:       Cat("United-States"),
		FieldCapitalGain:   Num(2174),
		FieldCapitalLoss:   Num(0),
		FieldHoursPerWeek:  Num(40),
	}
}

func TestDefaultVocabulary_Valid(t *testing.T) {
	v, err := DefaultVocabulary()
	require.NoError(t, err)
	assert.NotEmpty(t, v.Version)
	assert.Contains(t, v.Tables, FieldCountry)
	assert.Contains(t, v.Tables, FieldMaritalStatus)
}

func TestRecoder_Country(t *testing.T) {
	r, err := DefaultRecoder()
	require.NoError(t, err)

	tests := []struct {
		country string
		want    string
	}{
		{"France", "Developed"},
		{"United-States", "Developed"},
		{"Holand-Netherlands", "Developed"},
		{"Mexico", "Developing"},
		{"India", "Developing"},
		{"Outlying-US(Guam-USVI-etc)", "Developing"},
		{"Developed", "Developed"},
		{"Developing", "Developing"},
	}
	for _, tt := range tests {
		t.Run(tt.country, func(t *testing.T) {
			got, err := r.RecodeValue(FieldCountry, tt.country)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecoder_Collapses(t *testing.T) {
	r, err := DefaultRecoder()
	require.NoError(t, err)

	tests := []struct {
		field string
		in    string
		want  string
	}{
		{FieldMaritalStatus, "Married-civ-spouse", "Married"},
		{FieldMaritalStatus, "Married-AF-spouse", "Married"},
		{FieldMaritalStatus, "Married-spouse-absent", "Single"},
		{FieldMaritalStatus, "Divorced", "Single"},
		{FieldMaritalStatus, "Single", "Single"},
		{FieldRelationship, "Husband", "Family"},
		{FieldRelationship, "Own-child", "Family"},
		{FieldRelationship, "Unmarried", "Not-in-Family"},
		{FieldRelationship, "Not-in-family", "Not-in-Family"},
		{FieldWorkclass, "Never-worked", "Without-pay"},
		{FieldWorkclass, "Private", "Private"},
		{FieldWorkclass, "Without-pay", "Without-pay"},
		{FieldOccupation, "Sales", "Sales"},
	}
	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.in, func(t *testing.T) {
			got, err := r.RecodeValue(tt.field, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecoder_UnlistedCountryIsDeveloping(t *testing.T) {
	r, err := DefaultRecoder()
	require.NoError(t, err)

	for _, country := range []string{"Spain", "Brazil", "Australia", "Atlantis"} {
		got, err := r.RecodeValue(FieldCountry, country)
		require.NoError(t, err, country)
		assert.Equal(t, "Developing", got, country)
	}

	rec := rawRecord()
	rec[FieldCountry] = Cat(" Spain ")
	out, err := r.Recode(rec)
	require.NoError(t, err)
	assert.Equal(t, Cat("Developing"), out[FieldCountry])

	targets, err := r.Targets(FieldCountry)
	require.NoError(t, err)
	assert.Equal(t, []string{"Developed", "Developing"}, targets)
}

func TestRecoder_UnknownCategory(t *testing.T) {
	r, err := DefaultRecoder()
	require.NoError(t, err)

	tests := []struct {
		field string
		value string
	}{
		{FieldWorkclass, "Freelance"},
		{FieldMaritalStatus, "Engaged"},
		{FieldOccupation, "Astronaut"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			rec := rawRecord()
			rec[tt.field] = Cat(tt.value)

			_, err := r.Recode(rec)
			var unknown *UnknownCategoryError
			require.True(t, errors.As(err, &unknown), "expected UnknownCategoryError, got %v", err)
			assert.Equal(t, tt.field, unknown.Field)
			assert.Equal(t, tt.value, unknown.Value)
		})
	}
}

func TestParseVocabulary_OpenTable(t *testing.T) {
	doc := "version: v1\ntables:\n  c:\n    targets: [A, B]\n    default: B\n    open: true\n    sources: [x, y]\n    groups:\n      A: [x]\n"
	v, err := ParseVocabulary([]byte(doc))
	require.NoError(t, err)
	r, err := NewRecoder(v)
	require.NoError(t, err)

	got, err := r.RecodeValue("c", "x")
	require.NoError(t, err)
	assert.Equal(t, "A", got)
	got, err = r.RecodeValue("c", "z")
	require.NoError(t, err)
	assert.Equal(t, "B", got)
}

func TestRecoder_MissingField(t *testing.T) {
	r, err := DefaultRecoder()
	require.NoError(t, err)

	rec := rawRecord()
	delete(rec, FieldRelationship)

	_, err = r.Recode(rec)
	var missing *MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, FieldRelationship, missing.Field)
}

func TestRecoder_TrimsPadding(t *testing.T) {
	r, err := DefaultRecoder()
	require.NoError(t, err)

	rec := rawRecord()
	rec[FieldCountry] = Cat(" Germany")
	rec[FieldMaritalStatus] = Cat(" Married-civ-spouse")

	out, err := r.Recode(rec)
	require.NoError(t, err)
	assert.Equal(t, Cat("Developed"), out[FieldCountry])
	assert.Equal(t, Cat("Married"), out[FieldMaritalStatus])
}

func TestRecoder_DeterministicAndPure(t *testing.T) {
	r, err := DefaultRecoder()
	require.NoError(t, err)

	rec := rawRecord()
	first, err := r.Recode(rec)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := r.Recode(rec)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// Input is left untouched.
	assert.Equal(t, Cat("United-States"), rec[FieldCountry])
	assert.Equal(t, Num(39), first[FieldAge])
}

func TestRecoder_TotalOverVocabulary(t *testing.T) {
	v, err := DefaultVocabulary()
	require.NoError(t, err)
	r, err := NewRecoder(v)
	require.NoError(t, err)

	for field, table := range v.Tables {
		targets, err := r.Targets(field)
		require.NoError(t, err)
		for _, src := range table.Sources {
			got, err := r.RecodeValue(field, src)
			require.NoError(t, err, "field %s source %s", field, src)
			assert.Contains(t, targets, got)
		}
	}
}

func TestParseVocabulary_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing version", "tables:\n  sex:\n    passthrough: true\n    sources: [Male]\n"},
		{"no tables", "version: v1\n"},
		{"default not a target", "version: v1\ntables:\n  c:\n    targets: [A, B]\n    default: C\n    sources: [x]\n"},
		{"group member not a source", "version: v1\ntables:\n  c:\n    targets: [A, B]\n    default: B\n    sources: [x]\n    groups:\n      A: [y]\n"},
		{"source in two groups", "version: v1\ntables:\n  c:\n    targets: [A, B]\n    default: B\n    sources: [x]\n    groups:\n      A: [x]\n      B: [x]\n"},
		{"duplicate source", "version: v1\ntables:\n  c:\n    passthrough: true\n    sources: [x, x]\n"},
		{"passthrough with default", "version: v1\ntables:\n  c:\n    passthrough: true\n    default: x\n    sources: [x]\n"},
		{"open passthrough", "version: v1\ntables:\n  c:\n    passthrough: true\n    open: true\n    sources: [x]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVocabulary([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
