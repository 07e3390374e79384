package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"income-predictor/internal/api"
	"income-predictor/internal/common"
	"income-predictor/internal/features"
	"income-predictor/internal/pipeline"
)

func main() {
	var (
		addr    = flag.String("addr", "http://127.0.0.1:8080", "prediction server base URL")
		timeout = flag.Duration("timeout", 10*time.Second, "request timeout")
		query   = flag.Bool("query", false, "use the query-string endpoint instead of POST /predict")
		stream  = flag.Bool("ws", false, "send the record over the WebSocket stream")
		verbose = flag.Bool("v", false, "print per-feature attributions")

		age          = flag.Float64("age", 39, "age in years")
		workclass    = flag.String("workclass", "Private", "workclass")
		education    = flag.String("education", "Bachelors", "education label or code 1-16")
		marital      = flag.String("marital-status", "Never-married", "marital status")
		occupation   = flag.String("occupation", "Adm-clerical", "occupation")
		relationship = flag.String("relationship", "Not-in-family", "relationship")
		ethnicGroup  = flag.String("ethnic-group", "White", "ethnic group")
		sex          = flag.String("sex", "Male", "sex")
		country      = flag.String("country", "United-States", "country")
		capitalGain  = flag.Float64("capital-gain", 0, "capital gain")
		capitalLoss  = flag.Float64("capital-loss", 0, "capital loss")
		hours        = flag.Float64("hours-per-week", 40, "working hours per week")
	)
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	num := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	rec := api.RecordFromQuery(url.Values{
		features.FieldAge:           {num(*age)},
		features.FieldWorkclass:     {*workclass},
		features.FieldEducation:     {*education},
		features.FieldMaritalStatus: {*marital},
		features.FieldOccupation:    {*occupation},
		features.FieldRelationship:  {*relationship},
		features.FieldEthnicGroup:   {*ethnicGroup},
		features.FieldSex:           {*sex},
		features.FieldCountry:       {*country},
		features.FieldCapitalGain:   {num(*capitalGain)},
		features.FieldCapitalLoss:   {num(*capitalLoss)},
		features.FieldHoursPerWeek:  {num(*hours)},
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := api.NewClient(*addr, *timeout)

	if *stream {
		out, err := client.Stream(ctx, []features.Record{rec})
		if err != nil {
			log.Fatal().Err(err).Msg("Stream failed")
		}
		for _, r := range out {
			if r.Error != nil {
				log.Fatal().Str("field", r.Error.Field).Str("reason", r.Error.Reason).Msg(r.Error.Error)
			}
			fmt.Println(r.Prediction.SummaryAs(incomeGroup(r.Prediction.Label)))
			if *verbose {
				printAttributions(r.Prediction.Attributions, r.Prediction.Baseline)
			}
		}
		return
	}

	predict := client.Predict
	if *query {
		predict = client.PredictIndividual
	}
	res, err := predict(ctx, rec)
	if err != nil {
		log.Fatal().Err(err).Msg("Prediction failed")
	}

	fmt.Println(res.SummaryAs(incomeGroup(res.Label)))
	if *verbose {
		printAttributions(res.Attributions, res.Baseline)
	}
}

// incomeGroup phrases a label the way the dashboard does.
func incomeGroup(label string) string {
	switch label {
	case common.LabelAtMost50K:
		return "50K or below"
	case common.LabelAbove50K:
		return "above 50K"
	default:
		return label
	}
}

func printAttributions(attr pipeline.Attribution, baseline float64) {
	fmt.Printf("%-16s %10.4f\n", "baseline", baseline)
	for _, a := range attr {
		fmt.Printf("%-16s %+10.4f\n", a.Feature, a.Value)
	}
}
