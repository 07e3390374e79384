package main

import (
	"encoding/json"
	"flag"
	"io"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"income-predictor/internal/pipeline"
	"income-predictor/internal/storage"
)

func main() {
	var (
		dataPath   = flag.String("data", "data", "directory holding the prediction log")
		outputPath = flag.String("output", "predictions.jsonl", "output file, - for stdout")
		days       = flag.Int("days", 30, "number of days to export (0 for all)")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// The server holds the database lock while running.
	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open prediction log")
	}
	defer store.Close()

	end := time.Now()
	start := time.Unix(0, 0)
	if *days > 0 {
		start = end.AddDate(0, 0, -*days)
	}

	results, err := store.GetPredictionsInRange(start, end)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read prediction log")
	}
	if len(results) == 0 {
		log.Warn().Msg("No predictions found in range")
	}

	var out io.Writer = os.Stdout
	if *outputPath != "-" {
		f, err := os.Create(*outputPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create output file")
		}
		defer f.Close()
		out = f
	}

	// Newline-delimited for pandas.read_json(lines=True).
	enc := json.NewEncoder(out)
	for _, res := range results {
		if err := enc.Encode(res); err != nil {
			log.Fatal().Err(err).Msg("Failed to write prediction")
		}
	}

	logSummary(results)
}

func logSummary(results []*pipeline.Result) {
	if len(results) == 0 {
		return
	}

	byLabel := make(map[string]int)
	var probSum float64
	for _, res := range results {
		byLabel[res.Label]++
		probSum += res.ProbabilityPercent
	}

	ev := log.Info().
		Int("predictions", len(results)).
		Time("first", results[0].CreatedAt).
		Time("last", results[len(results)-1].CreatedAt).
		Float64("mean_probability", math.Round(probSum/float64(len(results))*1e4)/1e4)
	for label, n := range byLabel {
		ev = ev.Int(label, n)
	}
	ev.Msg("Predictions exported")
}
