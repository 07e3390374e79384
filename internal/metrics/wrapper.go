package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the narrow interfaces consumed by the
// pipeline, the model bridge and the API.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) PredictionsInc() {
	w.m.PredictionsTotal.Inc()
}

func (w *MetricsWrapper) RejectionsInc(reason string) {
	w.m.RejectionsTotal.WithLabelValues(reason).Inc()
}

func (w *MetricsWrapper) PredictionLatencyObserve(v float64) {
	w.m.PredictionLatency.Observe(v)
}

func (w *MetricsWrapper) PredictionProbabilityObserve(v float64) {
	w.m.PredictionProbability.Observe(v)
}

func (w *MetricsWrapper) ModelFitObserve(rows int, seconds float64) {
	w.m.ModelFitRows.Set(float64(rows))
	w.m.ModelFitDuration.Set(seconds)
}

func (w *MetricsWrapper) ScriptCallsInc() {
	w.m.ScriptCalls.Inc()
}

func (w *MetricsWrapper) ScriptFailuresInc() {
	w.m.ScriptFailures.Inc()
}

func (w *MetricsWrapper) ScriptTimeoutsInc() {
	w.m.ScriptTimeouts.Inc()
}

func (w *MetricsWrapper) ScriptLatencyObserve(v float64) {
	w.m.ScriptLatency.Observe(v)
}

func (w *MetricsWrapper) HTTPRequestInc(route string, code int) {
	w.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (w *MetricsWrapper) WSConnectionsAdd(delta float64) {
	w.m.WSConnections.Add(delta)
}

func (w *MetricsWrapper) StoreErrorsInc() {
	w.m.StoreErrors.Inc()
}
