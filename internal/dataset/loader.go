// Package dataset loads the cleaned census training data.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"income-predictor/internal/features"
)

// CSV column headers.
const (
	ColAge           = "Age"
	ColWorkclass     = "Workclass"
	ColEducation     = "Education"
	ColEducationNum  = "Education-Num"
	ColMaritalStatus = "Marital Status"
	ColOccupation    = "Occupation"
	ColRelationship  = "Relationship"
	ColEthnicGroup   = "Ethnic group"
	ColSex           = "Sex"
	ColCapitalGain   = "Capital Gain"
	ColCapitalLoss   = "Capital Loss"
	ColHoursPerWeek  = "Hours per week"
	ColCountry       = "Country"
	ColIncome        = "Income"
)

var categoricalColumns = map[string]string{
	ColWorkclass:     features.FieldWorkclass,
	ColMaritalStatus: features.FieldMaritalStatus,
	ColOccupation:    features.FieldOccupation,
	ColRelationship:  features.FieldRelationship,
	ColEthnicGroup:   features.FieldEthnicGroup,
	ColSex:           features.FieldSex,
	ColCountry:       features.FieldCountry,
}

var numericColumns = map[string]string{
	ColAge:          features.FieldAge,
	ColCapitalGain:  features.FieldCapitalGain,
	ColCapitalLoss:  features.FieldCapitalLoss,
	ColHoursPerWeek: features.FieldHoursPerWeek,
}

// EducationCodes maps census education labels onto their ordinal code.
var EducationCodes = map[string]int{
	"Preschool":    1,
	"1st-4th":      2,
	"5th-6th":      3,
	"7th-8th":      4,
	"9th":          5,
	"10th":         6,
	"11th":         7,
	"12th":         8,
	"HS-grad":      9,
	"Some-college": 10,
	"Assoc-voc":    11,
	"Assoc-acdm":   12,
	"Bachelors":    13,
	"Masters":      14,
	"Prof-school":  15,
	"Doctorate":    16,
}

// notEarning lists the workclass values excluded from training.
var notEarning = map[string]bool{
	"Never-worked": true,
	"Without-pay":  true,
}

// Dataset is a labelled training set.
type Dataset struct {
	Records []features.Record
	Labels  []string
	// Rows is the number of data rows read, including skipped ones.
	Rows int
	// Skipped counts rows dropped because of the workclass filter, a
	// missing value or an unparsable number.
	Skipped int
}

// LoadCSV reads a training CSV file.
func LoadCSV(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	ds, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.Info().
		Str("file", path).
		Int("rows", ds.Rows).
		Int("records", len(ds.Records)).
		Int("skipped", ds.Skipped).
		Msg("Training data loaded")

	return ds, nil
}

// ReadCSV reads training rows from r. The header selects columns by exact
// name; Education-Num is preferred over Education when both are present.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	indices := make(map[string]int, len(header))
	for i, col := range header {
		indices[strings.TrimSpace(col)] = i
	}

	required := []string{ColIncome}
	for col := range categoricalColumns {
		required = append(required, col)
	}
	for col := range numericColumns {
		required = append(required, col)
	}
	for _, col := range required {
		if _, ok := indices[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	_, hasNum := indices[ColEducationNum]
	_, hasLabel := indices[ColEducation]
	if !hasNum && !hasLabel {
		return nil, fmt.Errorf("missing column %q or %q", ColEducationNum, ColEducation)
	}

	ds := &Dataset{}
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ds.Rows++

		rec, label, ok := parseRow(row, indices, hasNum)
		if !ok {
			ds.Skipped++
			continue
		}
		ds.Records = append(ds.Records, rec)
		ds.Labels = append(ds.Labels, label)
	}
	return ds, nil
}

func parseRow(row []string, indices map[string]int, hasNum bool) (features.Record, string, bool) {
	cell := func(col string) string {
		return strings.TrimSpace(row[indices[col]])
	}

	rec := make(features.Record, len(features.Fields))
	for col, field := range categoricalColumns {
		v := cell(col)
		if v == "" || v == "?" {
			return nil, "", false
		}
		rec[field] = features.Cat(v)
	}
	if notEarning[rec[features.FieldWorkclass].String()] {
		return nil, "", false
	}

	for col, field := range numericColumns {
		f, err := strconv.ParseFloat(cell(col), 64)
		if err != nil {
			return nil, "", false
		}
		rec[field] = features.Num(f)
	}

	if hasNum {
		code, err := strconv.Atoi(cell(ColEducationNum))
		if err != nil {
			return nil, "", false
		}
		rec[features.FieldEducation] = features.Num(float64(code))
	} else {
		label := cell(ColEducation)
		if code, ok := EducationCodes[label]; ok {
			rec[features.FieldEducation] = features.Num(float64(code))
		} else if label != "" && label != "?" {
			// Already binned.
			rec[features.FieldEducation] = features.Cat(label)
		} else {
			return nil, "", false
		}
	}

	label := NormalizeLabel(cell(ColIncome))
	if label == "" {
		return nil, "", false
	}
	return rec, label, true
}

// NormalizeLabel strips the trailing period used by the census test split.
func NormalizeLabel(s string) string {
	return strings.TrimSuffix(strings.TrimSpace(s), ".")
}
