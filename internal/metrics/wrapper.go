package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// MetricsWrapper adapts Metrics to the narrow interface the serving layer uses.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) PredictionsAdd(n int) {
	w.m.PredictionsTotal.Add(float64(n))
}

func (w *MetricsWrapper) PredictionFailuresInc() {
	w.m.PredictionFailures.Inc()
}

func (w *MetricsWrapper) ValidationFailuresInc() {
	w.m.ValidationFailures.Inc()
}

func (w *MetricsWrapper) LatencyObserve(seconds float64) {
	w.m.PredictionLatency.Observe(seconds)
}

func (w *MetricsWrapper) ProbabilityObserve(p float64) {
	w.m.ChurnProbability.Observe(p)
}

func (w *MetricsWrapper) RiskLevelInc(level string) {
	w.m.RiskLevels.WithLabelValues(level).Inc()
}

func (w *MetricsWrapper) BatchSizeObserve(n int) {
	w.m.BatchSize.Observe(float64(n))
}

func (w *MetricsWrapper) CacheHitInc() {
	w.m.CacheHits.Inc()
}

func (w *MetricsWrapper) CacheMissInc() {
	w.m.CacheMisses.Inc()
}

func (w *MetricsWrapper) ModelLoadedSet(loaded bool) {
	if loaded {
		w.m.ModelLoaded.Set(1)
		return
	}
	w.m.ModelLoaded.Set(0)
}

func (w *MetricsWrapper) ModelAgeSet(seconds float64) {
	w.m.ModelAge.Set(seconds)
}

// StreamClients exposes the stats stream gauge to the HTTP layer.
func (w *MetricsWrapper) StreamClients() MetricsGauge {
	return &GaugeWrapper{w.m.StreamClients}
}

// RateLimited returns the rejection counter for a route.
func (w *MetricsWrapper) RateLimited(route string) MetricsCounter {
	return &CounterWrapper{w.m.RateLimited.WithLabelValues(route)}
}

// ObserveRequest records one finished HTTP request.
func (w *MetricsWrapper) ObserveRequest(route, code string, seconds float64) {
	w.m.HTTPRequests.WithLabelValues(route, code).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Histogram
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}
