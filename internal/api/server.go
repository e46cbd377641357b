// Package api exposes the prediction service over HTTP.
//
// Routes:
//
//	GET  /                     service information
//	GET  /health               liveness and model status
//	GET  /model/info           loaded model metadata
//	POST /predict              single customer prediction
//	POST /predict/batch        up to MaxBatchSize customers
//	GET  /predict/probability  quick probability check from query parameters
//	GET  /metrics              Prometheus metrics
//	GET  /ws/stats             WebSocket stream of serving statistics
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"hypo-churn/internal/cfg"
	"hypo-churn/internal/metrics"
	"hypo-churn/internal/serving"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Route names, also used as metric labels and rate-limit keys.
const (
	RouteRoot        = "root"
	RouteHealth      = "health"
	RouteModelInfo   = "model_info"
	RoutePredict     = "predict"
	RouteBatch       = "predict_batch"
	RouteProbability = "predict_probability"
	RouteMetrics     = "metrics"
	RouteStats       = "stats_stream"
)

// Metrics is the part of the metrics wrapper the HTTP layer records into.
type Metrics interface {
	ObserveRequest(route, code string, seconds float64)
	RateLimited(route string) metrics.MetricsCounter
	StreamClients() metrics.MetricsGauge
}

// Server is the HTTP front of a serving.Service.
type Server struct {
	svc      *serving.Service
	settings cfg.Settings
	metrics  Metrics
	gatherer prometheus.Gatherer
	limiter  *RateLimiter
	stream   *StatsStream
	router   *mux.Router
	server   *http.Server
}

// New wires routes and middleware. A nil gatherer serves the default
// Prometheus registry; nil metrics are discarded.
func New(svc *serving.Service, settings cfg.Settings, m Metrics, gatherer prometheus.Gatherer) *Server {
	if m == nil {
		m = noopMetrics{}
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		svc:      svc,
		settings: settings,
		metrics:  m,
		gatherer: gatherer,
		stream:   NewStatsStream(svc.Stats, settings.StatsInterval, settings.AllowedOrigins, m.StreamClients()),
	}
	if settings.RateLimitEnabled {
		s.limiter = NewRateLimiter(routeLimits(settings.RateLimits))
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet).Name(RouteRoot)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet).Name(RouteHealth)
	r.HandleFunc("/model/info", s.handleModelInfo).Methods(http.MethodGet).Name(RouteModelInfo)
	r.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost).Name(RoutePredict)
	r.HandleFunc("/predict/batch", s.handlePredictBatch).Methods(http.MethodPost).Name(RouteBatch)
	r.HandleFunc("/predict/probability", s.handleProbability).Methods(http.MethodGet).Name(RouteProbability)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet).Name(RouteMetrics)
	r.HandleFunc("/ws/stats", s.stream.handleWebSocket).Methods(http.MethodGet).Name(RouteStats)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "Resource not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed", Message: "Method not allowed"})
	})

	r.Use(requestIDMiddleware, s.observe, recoveryMiddleware, s.rateLimit)
	s.router = r

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", settings.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      settings.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the full handler chain. Security headers and CORS wrap the
// router so they also apply to preflight and unmatched requests.
func (s *Server) Handler() http.Handler {
	return securityHeadersMiddleware(corsMiddleware(s.settings.AllowedOrigins)(s.router))
}

func routeLimits(l cfg.RateLimits) map[string]int {
	return map[string]int{
		RouteRoot:        l.Root,
		RouteHealth:      l.Health,
		RouteModelInfo:   l.ModelInfo,
		RoutePredict:     l.Predict,
		RouteBatch:       l.Batch,
		RouteProbability: l.Probability,
	}
}

// Start serves until ctx is cancelled or the listener fails. Background
// workers stop with ctx.
func (s *Server) Start(ctx context.Context) error {
	go s.stream.Run(ctx)
	if s.limiter != nil {
		go s.limiter.cleanupLoop(ctx)
	}

	log.Info().
		Str("addr", s.server.Addr).
		Bool("model_loaded", s.svc.ModelLoaded()).
		Bool("rate_limit", s.limiter != nil).
		Msg("Starting prediction API")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRequest(string, string, float64)     {}
func (noopMetrics) RateLimited(string) metrics.MetricsCounter { return noopCounter{} }
func (noopMetrics) StreamClients() metrics.MetricsGauge       { return nil }

type noopCounter struct{}

func (noopCounter) Inc() {}
