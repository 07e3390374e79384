package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"income-predictor/internal/api"
	"income-predictor/internal/cfg"
	"income-predictor/internal/common"
	"income-predictor/internal/dataset"
	"income-predictor/internal/features"
	"income-predictor/internal/metrics"
	"income-predictor/internal/ml"
	"income-predictor/internal/pipeline"
	"income-predictor/internal/storage"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Config load failed")
	}
	zerolog.SetGlobalLevel(c.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	p, err := trainPipeline(ctx, c, mw)
	if err != nil {
		log.Fatal().Err(err).Msg("Pipeline training failed")
	}

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	tracker := ml.NewAttributionTracker(p.Encoder().Layout().Features(), c.ImportancePath)
	defer func() {
		if err := tracker.Save(); err != nil {
			log.Error().Err(err).Msg("Failed to save attribution importance")
		}
	}()

	serverCfg := api.Config{
		Port:           c.ServerPort,
		RequestTimeout: c.RequestTimeout,
		Tracker:        tracker,
		Metrics:        mw,
		Gatherer:       prometheus.DefaultGatherer,
	}
	if store != nil {
		serverCfg.Log = store
	}
	server := api.NewServer(p, serverCfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}
}

// trainPipeline loads the training data and fits the pipeline once.
func trainPipeline(ctx context.Context, c cfg.Settings, mw *metrics.MetricsWrapper) (*pipeline.Pipeline, error) {
	ds, err := dataset.LoadCSV(c.TrainingDataPath)
	if err != nil {
		return nil, err
	}

	recoder, err := initializeRecoder(c)
	if err != nil {
		return nil, err
	}
	binner, err := features.NewEducationBinner()
	if err != nil {
		return nil, err
	}

	pcfg := pipeline.Config{
		Recoder:     recoder,
		Binner:      binner,
		Parallelism: c.Parallelism,
		Metrics:     mw,
	}
	return pipeline.Train(ctx, pcfg, ds.Records, ds.Labels, initializeTrainer(c, mw))
}

// initializeRecoder uses the vocabulary file when one is configured and
// the embedded tables otherwise.
func initializeRecoder(c cfg.Settings) (*features.Recoder, error) {
	if c.VocabularyPath == "" {
		return features.DefaultRecoder()
	}
	v, err := features.LoadVocabulary(c.VocabularyPath)
	if err != nil {
		return nil, err
	}
	return features.NewRecoder(v)
}

// initializeTrainer picks the model backend, falling back to the
// in-process logistic model when the script bridge is unavailable.
func initializeTrainer(c cfg.Settings, mw *metrics.MetricsWrapper) ml.Trainer {
	logistic := ml.LogisticTrainer{
		LearningRate: c.LearningRate,
		Epochs:       c.Epochs,
		L2:           c.L2,
	}
	if c.ModelBackend != common.BackendScript {
		return logistic
	}

	script, err := ml.NewScriptTrainer(ml.ScriptConfig{
		PythonPath: c.PythonPath,
		ScriptPath: c.ScriptPath,
		ModelPath:  c.ModelPath,
		Timeout:    c.ScriptTimeout,
		FitTimeout: c.FitTimeout,
		Metrics:    mw,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Script model unavailable, using logistic model")
		return logistic
	}
	return script
}

// initializeStorage initializes the prediction log if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("Storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}
