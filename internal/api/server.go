// Package api serves income predictions over HTTP and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"income-predictor/internal/dataset"
	"income-predictor/internal/features"
	"income-predictor/internal/ml"
	"income-predictor/internal/pipeline"
	"income-predictor/internal/storage"
)

// Predictor is the part of the prediction pipeline the server uses.
type Predictor interface {
	Predict(ctx context.Context, rec features.Record) (*pipeline.Result, error)
	Info() pipeline.Info
}

// PredictionLog persists served predictions.
type PredictionLog interface {
	StorePrediction(res *pipeline.Result) error
	GetPrediction(id string) (*pipeline.Result, error)
}

// MetricsInterface is the transport metrics the server reports.
type MetricsInterface interface {
	HTTPRequestInc(route string, code int)
	WSConnectionsAdd(delta float64)
	StoreErrorsInc()
}

// Config holds the optional collaborators of a Server.
type Config struct {
	Port           int
	RequestTimeout time.Duration
	Log            PredictionLog
	Tracker        *ml.AttributionTracker
	Metrics        MetricsInterface
	Gatherer       prometheus.Gatherer
}

// Server exposes a Predictor over HTTP.
type Server struct {
	predictor Predictor
	cfg       Config
	started   time.Time
	upgrader  websocket.Upgrader
	handler   http.Handler
	server    *http.Server
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status      string  `json:"status"`
	Uptime      float64 `json:"uptime_seconds"`
	Predictions int     `json:"stored_predictions,omitempty"`
}

// NewServer creates a server for p listening on cfg.Port.
func NewServer(p Predictor, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		predictor: p,
		cfg:       cfg,
		started:   time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /predict_individual_income/{$}", s.handlePredictQuery)
	// Route spelling served by earlier releases.
	mux.HandleFunc("GET /predict_induvidual_income/{$}", s.handlePredictQuery)
	mux.HandleFunc("POST /predict", s.handlePredict)
	mux.HandleFunc("GET /predictions/{id}", s.handleGetPrediction)
	mux.HandleFunc("GET /ws/predict", s.handleStream)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /model/info", s.handleModelInfo)
	mux.HandleFunc("GET /importance", s.handleImportance)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	s.handler = mux

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins serving HTTP requests
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting prediction server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handlePredictQuery(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, "/predict_individual_income/", RecordFromQuery(r.URL.Query()))
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var rec features.Record
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(&rec); err != nil {
		s.writeJSON(w, "/predict", http.StatusBadRequest,
			ErrorResponse{Error: fmt.Sprintf("invalid request: %v", err), Reason: "bad_request"})
		return
	}
	s.serve(w, r, "/predict", NormalizeRecord(rec))
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, route string, rec features.Record) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.predict(ctx, rec)
	if err != nil {
		s.writeError(w, route, err)
		return
	}
	s.writeJSON(w, route, http.StatusOK, res)
}

// predict runs one record through the pipeline and records the outcome.
func (s *Server) predict(ctx context.Context, rec features.Record) (*pipeline.Result, error) {
	res, err := s.predictor.Predict(ctx, rec)
	if err != nil {
		if pipeline.IsValidation(err) {
			log.Debug().Err(err).Str("reason", pipeline.Reason(err)).Msg("Prediction rejected")
		} else {
			log.Error().Err(err).Msg("Prediction failed")
		}
		return nil, err
	}

	if s.cfg.Tracker != nil {
		if err := s.cfg.Tracker.Observe(res.Attributions.Names(), res.Attributions.Values()); err != nil {
			log.Warn().Err(err).Msg("Failed to track attributions")
		}
	}

	if s.cfg.Log != nil {
		res.Artifact = "/predictions/" + res.ID
		if err := s.cfg.Log.StorePrediction(res); err != nil {
			res.Artifact = ""
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.StoreErrorsInc()
			}
			log.Error().Err(err).Str("id", res.ID).Msg("Failed to store prediction")
		}
	}

	return res, nil
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	const route = "/predictions"
	if s.cfg.Log == nil {
		s.writeJSON(w, route, http.StatusNotFound, ErrorResponse{Error: "prediction log disabled"})
		return
	}

	res, err := s.cfg.Log.GetPrediction(r.PathValue("id"))
	if err != nil {
		s.writeError(w, route, err)
		return
	}
	s.writeJSON(w, route, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Seconds(),
	}
	if counter, ok := s.cfg.Log.(interface{ Count() (int, error) }); ok {
		if n, err := counter.Count(); err == nil {
			health.Predictions = n
		}
	}
	s.writeJSON(w, "/health", http.StatusOK, health)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "/model/info", http.StatusOK, s.predictor.Info())
}

func (s *Server) handleImportance(w http.ResponseWriter, r *http.Request) {
	const route = "/importance"
	if s.cfg.Tracker == nil {
		s.writeJSON(w, route, http.StatusNotFound, ErrorResponse{Error: "attribution tracking disabled"})
		return
	}

	n := -1
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			s.writeJSON(w, route, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid n %q", v)})
			return
		}
		n = parsed
	}
	s.writeJSON(w, route, http.StatusOK, s.cfg.Tracker.TopFeatures(n))
}

func (s *Server) writeError(w http.ResponseWriter, route string, err error) {
	s.writeJSON(w, route, MapHTTPStatus(err), newErrorResponse(err))
}

func newErrorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Error: err.Error(), Reason: pipeline.Reason(err)}
	var fe features.FieldError
	if errors.As(err, &fe) {
		resp.Field = fe.FieldName()
	}
	return resp
}

func (s *Server) writeJSON(w http.ResponseWriter, route string, status int, body any) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.HTTPRequestInc(route, status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Str("route", route).Msg("Failed to write response")
	}
}

// MapHTTPStatus maps a prediction error to an HTTP status code. Errors
// caused by the input record map to 422; everything else is a server
// fault.
func MapHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case pipeline.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RecordFromQuery builds a record from query parameters named after the
// record fields. Values that parse as numbers become numbers; everything
// else is kept as a category and left to the pipeline to validate.
func RecordFromQuery(q map[string][]string) features.Record {
	rec := make(features.Record, len(features.Fields))
	for _, field := range features.Fields {
		vs, ok := q[field]
		if !ok || len(vs) == 0 {
			continue
		}
		v := strings.TrimSpace(vs[0])
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			rec[field] = features.Num(f)
		} else {
			rec[field] = features.Cat(v)
		}
	}
	return NormalizeRecord(rec)
}

// NormalizeRecord converts a census education label such as "Bachelors"
// into its ordinal code. Other values are returned unchanged.
func NormalizeRecord(rec features.Record) features.Record {
	v, ok := rec[features.FieldEducation]
	if !ok {
		return rec
	}
	label, isCat := v.Category()
	if !isCat {
		return rec
	}
	code, known := dataset.EducationCodes[strings.TrimSpace(label)]
	if !known {
		return rec
	}
	out := rec.Clone()
	out[features.FieldEducation] = features.Num(float64(code))
	return out
}
