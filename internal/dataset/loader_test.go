package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"income-predictor/internal/features"
)

const header = "Age,Workclass,Education,Education-Num,Marital Status,Occupation,Relationship,Ethnic group,Sex,Capital Gain,Capital Loss,Hours per week,Country,Income\n"

func TestReadCSV(t *testing.T) {
	data := header +
		"39, State-gov, Bachelors,13, Never-married, Adm-clerical, Not-in-family, White, Male,2174,0,40, United-States, <=50K\n" +
		"50, Self-emp-not-inc, Bachelors,13, Married-civ-spouse, Exec-managerial, Husband, White, Male,0,0,13, United-States, >50K.\n" +
		"20, Never-worked, HS-grad,9, Never-married, ?, Own-child, White, Female,0,0,20, United-States, <=50K\n" +
		"38, Private, HS-grad,9, Divorced, ?, Not-in-family, White, Male,0,0,40, United-States, <=50K\n" +
		"28, Private, 11th,seven, Married-civ-spouse, Prof-specialty, Wife, Black, Female,0,0,40, Cuba, <=50K\n"

	ds, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 5, ds.Rows)
	assert.Equal(t, 3, ds.Skipped)
	require.Len(t, ds.Records, 2)
	assert.Equal(t, []string{"<=50K", ">50K"}, ds.Labels)

	rec := ds.Records[0]
	assert.Equal(t, features.Num(39), rec[features.FieldAge])
	assert.Equal(t, features.Cat("State-gov"), rec[features.FieldWorkclass])
	assert.Equal(t, features.Num(13), rec[features.FieldEducation])
	assert.Equal(t, features.Cat("United-States"), rec[features.FieldCountry])
	assert.Equal(t, features.Num(2174), rec[features.FieldCapitalGain])
	assert.Len(t, rec, len(features.Fields))
}

func TestReadCSV_EducationLabels(t *testing.T) {
	data := "Age,Workclass,Education,Marital Status,Occupation,Relationship,Ethnic group,Sex,Capital Gain,Capital Loss,Hours per week,Country,Income\n" +
		"39,Private,Masters,Divorced,Sales,Unmarried,White,Female,0,0,40,France,>50K\n" +
		"39,Private,Above-grad,Divorced,Sales,Unmarried,White,Female,0,0,40,France,>50K\n"

	ds, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, ds.Records, 2)
	assert.Equal(t, features.Num(14), ds.Records[0][features.FieldEducation])
	assert.Equal(t, features.Cat("Above-grad"), ds.Records[1][features.FieldEducation])
}

func TestReadCSV_MissingColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Age,Workclass\n39,Private\n"))
	assert.Error(t, err)

	noEducation := "Age,Workclass,Marital Status,Occupation,Relationship,Ethnic group,Sex,Capital Gain,Capital Loss,Hours per week,Country,Income\n"
	_, err = ReadCSV(strings.NewReader(noEducation))
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestReadCSV_RaggedRow(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(header + "39,State-gov\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestEducationCodes_MatchBinner(t *testing.T) {
	b, err := features.NewEducationBinner()
	require.NoError(t, err)

	for label, code := range EducationCodes {
		bucket, err := b.Bin(code)
		require.NoError(t, err, label)
		if label == "HS-grad" || label == "Some-college" {
			assert.Equal(t, label, bucket.Label)
		}
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clean_data.csv")
	data := header + "39, State-gov, Bachelors,13, Never-married, Adm-clerical, Not-in-family, White, Male,2174,0,40, United-States, <=50K\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	ds, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Len(t, ds.Records, 1)

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, ">50K", NormalizeLabel(" >50K."))
	assert.Equal(t, "<=50K", NormalizeLabel("<=50K"))
}
