package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"income-predictor/internal/features"
)

// Result is the outcome of one prediction.
type Result struct {
	ID                 string          `json:"id"`
	Label              string          `json:"result"`
	ProbabilityPercent float64         `json:"prediction_prob"`
	Attributions       Attribution     `json:"attributions"`
	Baseline           float64         `json:"baseline"`
	Artifact           string          `json:"pic_name,omitempty"`
	Input              features.Record `json:"input,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Summary renders the result as a sentence, with the probability rounded
// to four decimals.
func (r *Result) Summary() string { return r.SummaryAs(r.Label) }

// SummaryAs is Summary with the label replaced by group.
func (r *Result) SummaryAs(group string) string {
	p := strconv.FormatFloat(math.Round(r.ProbabilityPercent*1e4)/1e4, 'f', -1, 64)
	return fmt.Sprintf("With the probability of %s%% your income would be %s", p, group)
}
