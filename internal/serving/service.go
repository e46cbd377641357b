// Package serving turns validated customer records into churn predictions
// using a loaded model artifact.
package serving

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"hypo-churn/internal/cfg"
	"hypo-churn/internal/dataset"
	"hypo-churn/internal/ml"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

var (
	// ErrModelUnavailable is returned by every prediction call when no model is loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrEmptyBatch is returned for a batch with no records.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrBatchTooLarge is returned when a batch exceeds the configured maximum.
	// The whole batch is rejected.
	ErrBatchTooLarge = errors.New("batch too large")
	// ErrEmptyAggregate is returned when no record of a batch could be predicted.
	ErrEmptyAggregate = errors.New("no successful predictions to aggregate")
)

// MetricsInterface is the subset of the Prometheus wrapper used while serving.
type MetricsInterface interface {
	PredictionsAdd(n int)
	PredictionFailuresInc()
	ValidationFailuresInc()
	LatencyObserve(seconds float64)
	ProbabilityObserve(p float64)
	RiskLevelInc(level string)
	BatchSizeObserve(n int)
	CacheHitInc()
	CacheMissInc()
	ModelLoadedSet(loaded bool)
	ModelAgeSet(seconds float64)
}

// Options configures a Service. A nil Model yields a service whose
// prediction calls all fail with ErrModelUnavailable.
type Options struct {
	Model        ml.Model
	FeatureNames []string
	ModelName    string
	ModelVersion string
	TrainedAt    time.Time

	Schema       Schema
	RiskLevels   []cfg.RiskLevel
	MaxBatchSize int
	CacheSize    int
	CacheTTL     time.Duration
	Metrics      MetricsInterface
}

// OptionsFromArtifact fills the model fields of Options from a loaded artifact.
func OptionsFromArtifact(a *ml.Artifact, opts Options) Options {
	if a == nil {
		return opts
	}
	opts.Model = a.Model
	opts.FeatureNames = a.FeatureNames
	opts.ModelName = a.Name
	opts.ModelVersion = a.Version
	opts.TrainedAt = a.CreatedAt
	return opts
}

// Service validates records, runs the model and maps probabilities to risk
// levels. The model is shared read-only; a Service is safe for concurrent use.
type Service struct {
	opts  Options
	cache *expirable.LRU[string, PredictionResult]
	stats serviceStats
}

type serviceStats struct {
	startTime   time.Time
	requests    atomic.Int64
	predictions atomic.Int64
	failures    atomic.Int64
	invalid     atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	latencyNs   atomic.Int64
}

// NewService builds a service. Missing schema and risk levels fall back to
// the defaults.
func NewService(opts Options) *Service {
	if opts.Schema == nil {
		opts.Schema = DefaultSchema()
	}
	if len(opts.RiskLevels) == 0 {
		opts.RiskLevels = cfg.DefaultRiskLevels()
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 100
	}

	s := &Service{opts: opts}
	s.stats.startTime = time.Now()
	if opts.CacheSize > 0 {
		s.cache = expirable.NewLRU[string, PredictionResult](opts.CacheSize, nil, opts.CacheTTL)
	}

	if opts.Metrics != nil {
		opts.Metrics.ModelLoadedSet(opts.Model != nil)
		if opts.Model != nil && !opts.TrainedAt.IsZero() {
			opts.Metrics.ModelAgeSet(time.Since(opts.TrainedAt).Seconds())
		}
	}

	if opts.Model == nil {
		log.Warn().Msg("serving without a model, predictions will be refused")
	} else {
		log.Info().
			Str("model", opts.ModelName).
			Str("version", opts.ModelVersion).
			Str("type", opts.Model.Type()).
			Int("features", len(opts.FeatureNames)).
			Msg("Prediction service ready")
	}
	return s
}

// ModelLoaded reports whether predictions can be served.
func (s *Service) ModelLoaded() bool {
	return s.opts.Model != nil
}

// MaxBatchSize returns the largest accepted batch.
func (s *Service) MaxBatchSize() int {
	return s.opts.MaxBatchSize
}

// Predict validates one record and returns its prediction.
func (s *Service) Predict(ctx context.Context, rec CustomerRecord) (PredictionResult, error) {
	s.stats.requests.Add(1)
	if s.opts.Model == nil {
		return PredictionResult{}, ErrModelUnavailable
	}
	if err := ctx.Err(); err != nil {
		return PredictionResult{}, err
	}

	customer, err := s.prepare(rec)
	if err != nil {
		return PredictionResult{}, err
	}

	key := s.cacheKey(customer)
	if result, ok := s.cached(key); ok {
		return result, nil
	}

	results, err := s.run([]*Customer{customer})
	if err != nil {
		return PredictionResult{}, err
	}
	s.remember(key, results[0])
	return results[0], nil
}

// BatchItem is the outcome of one record of a batch: either a prediction or
// the reason the record was rejected. Index is the record's input position.
type BatchItem struct {
	Index int `json:"index"`
	*PredictionResult
	Error *ValidationError `json:"error,omitempty"`
}

// BatchResult holds per-record outcomes in input order and aggregates over
// the successfully predicted records.
type BatchResult struct {
	Predictions    []BatchItem `json:"predictions"`
	TotalCustomers int         `json:"total_customers"`
	ChurnedCount   int         `json:"churned_count"`
	ChurnRate      float64     `json:"churn_rate"`
	FailedCount    int         `json:"failed_count"`
}

// PredictBatch predicts every valid record with a single model call. Invalid
// records are reported in place and left out of the aggregates. When no
// record is valid the per-record outcomes are still returned together with
// ErrEmptyAggregate.
func (s *Service) PredictBatch(ctx context.Context, recs []CustomerRecord) (*BatchResult, error) {
	s.stats.requests.Add(1)
	if s.opts.Model == nil {
		return nil, ErrModelUnavailable
	}
	if len(recs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(recs) > s.opts.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d records, maximum is %d", ErrBatchTooLarge, len(recs), s.opts.MaxBatchSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.BatchSizeObserve(len(recs))
	}

	out := &BatchResult{Predictions: make([]BatchItem, len(recs))}
	var valid []*Customer
	var positions []int
	for i, rec := range recs {
		out.Predictions[i].Index = i
		customer, err := s.prepare(rec)
		if err != nil {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				return nil, err
			}
			out.Predictions[i].Error = verr
			out.FailedCount++
			continue
		}
		valid = append(valid, customer)
		positions = append(positions, i)
	}

	if len(valid) > 0 {
		results, err := s.run(valid)
		if err != nil {
			return nil, err
		}
		for j, pos := range positions {
			r := results[j]
			out.Predictions[pos].PredictionResult = &r
		}
	}

	total, churned, rate, err := Aggregate(out.Predictions)
	if err != nil {
		return out, err
	}
	out.TotalCustomers, out.ChurnedCount, out.ChurnRate = total, churned, rate
	return out, nil
}

// Aggregate counts successful predictions and churned ones. It fails with
// ErrEmptyAggregate when there are none, since the churn rate is undefined.
func Aggregate(items []BatchItem) (total, churned int, rate float64, err error) {
	for _, item := range items {
		if item.PredictionResult == nil {
			continue
		}
		total++
		if item.Prediction == 1 {
			churned++
		}
	}
	if total == 0 {
		return 0, 0, 0, ErrEmptyAggregate
	}
	return total, churned, float64(churned) / float64(total), nil
}

func (s *Service) prepare(rec CustomerRecord) (*Customer, error) {
	customer, err := s.opts.Schema.Validate(rec)
	if err != nil {
		s.stats.invalid.Add(1)
		if s.opts.Metrics != nil {
			s.opts.Metrics.ValidationFailuresInc()
		}
		return nil, err
	}
	customer.Derive()
	return customer, nil
}

// run predicts customers in one model call.
func (s *Service) run(customers []*Customer) ([]PredictionResult, error) {
	start := time.Now()

	rows := make([][]float64, len(customers))
	for i, c := range customers {
		rows[i] = dataset.AlignRow(c.FeatureValues(dataset.OneHotName), s.opts.FeatureNames)
	}

	proba, err := s.opts.Model.PredictProba(rows)
	if err != nil {
		s.stats.failures.Add(1)
		if s.opts.Metrics != nil {
			s.opts.Metrics.PredictionFailuresInc()
		}
		log.Error().Err(err).Int("rows", len(rows)).Msg("model prediction failed")
		return nil, fmt.Errorf("predict: %w", err)
	}

	results := make([]PredictionResult, len(proba))
	for i, p := range proba {
		label := 0
		if p >= ml.DecisionThreshold {
			label = 1
		}
		results[i] = newResult(p, label, s.opts.RiskLevels)
	}

	elapsed := time.Since(start)
	s.stats.predictions.Add(int64(len(results)))
	s.stats.latencyNs.Add(elapsed.Nanoseconds())
	if m := s.opts.Metrics; m != nil {
		m.PredictionsAdd(len(results))
		m.LatencyObserve(elapsed.Seconds())
		for _, r := range results {
			m.ProbabilityObserve(r.ChurnProbability)
			m.RiskLevelInc(r.RiskLevel)
		}
	}
	return results, nil
}

func (s *Service) cacheKey(c *Customer) string {
	if s.cache == nil {
		return ""
	}
	// encoding/json sorts map keys, which makes the encoding canonical.
	key, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(key)
}

func (s *Service) cached(key string) (PredictionResult, bool) {
	if key == "" {
		return PredictionResult{}, false
	}
	result, ok := s.cache.Get(key)
	if ok {
		s.stats.cacheHits.Add(1)
		if s.opts.Metrics != nil {
			s.opts.Metrics.CacheHitInc()
		}
		return result, true
	}
	s.stats.cacheMisses.Add(1)
	if s.opts.Metrics != nil {
		s.opts.Metrics.CacheMissInc()
	}
	return PredictionResult{}, false
}

func (s *Service) remember(key string, r PredictionResult) {
	if key != "" {
		s.cache.Add(key, r)
	}
}

// ModelInfo describes the loaded model.
type ModelInfo struct {
	ModelName     string    `json:"model_name"`
	ModelType     string    `json:"model_type"`
	Version       string    `json:"version"`
	FeaturesCount int       `json:"features_count"`
	FeatureNames  []string  `json:"feature_names"`
	TrainedAt     time.Time `json:"trained_at"`
	Available     bool      `json:"available"`
}

// Info returns metadata of the loaded model, or ErrModelUnavailable.
func (s *Service) Info() (ModelInfo, error) {
	if s.opts.Model == nil {
		return ModelInfo{}, ErrModelUnavailable
	}
	return ModelInfo{
		ModelName:     s.opts.ModelName,
		ModelType:     s.opts.Model.Type(),
		Version:       s.opts.ModelVersion,
		FeaturesCount: len(s.opts.FeatureNames),
		FeatureNames:  s.opts.FeatureNames,
		TrainedAt:     s.opts.TrainedAt,
		Available:     true,
	}, nil
}

// Stats is a point-in-time view of serving activity.
type Stats struct {
	ModelLoaded      bool      `json:"model_loaded"`
	Requests         int64     `json:"requests"`
	Predictions      int64     `json:"predictions"`
	Failures         int64     `json:"failures"`
	ValidationErrors int64     `json:"validation_errors"`
	CacheHitRate     float64   `json:"cache_hit_rate"`
	AverageLatencyMs float64   `json:"average_latency_ms"`
	UptimeSeconds    float64   `json:"uptime_seconds"`
	Timestamp        time.Time `json:"timestamp"`
}

// Stats returns current counters.
func (s *Service) Stats() Stats {
	st := Stats{
		ModelLoaded:      s.ModelLoaded(),
		Requests:         s.stats.requests.Load(),
		Predictions:      s.stats.predictions.Load(),
		Failures:         s.stats.failures.Load(),
		ValidationErrors: s.stats.invalid.Load(),
		UptimeSeconds:    time.Since(s.stats.startTime).Seconds(),
		Timestamp:        time.Now(),
	}
	hits, misses := s.stats.cacheHits.Load(), s.stats.cacheMisses.Load()
	if hits+misses > 0 {
		st.CacheHitRate = float64(hits) / float64(hits+misses)
	}
	if st.Predictions > 0 {
		st.AverageLatencyMs = float64(s.stats.latencyNs.Load()) / float64(st.Predictions) / 1e6
	}
	return st
}
