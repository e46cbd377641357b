package serving

import (
	"encoding/json"
	"errors"
	"sync"

	"hypo-churn/internal/ml"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu                 sync.Mutex
	predictions        int
	failures           int
	validationFailures int
	latencySum         float64
	probabilities      []float64
	riskLevels         map[string]int
	batchSizes         []int
	cacheHits          int
	cacheMisses        int
	modelLoaded        bool
	modelAge           float64
}

func (m *MockMetrics) PredictionsAdd(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions += n
}

func (m *MockMetrics) PredictionFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) ValidationFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validationFailures++
}

func (m *MockMetrics) LatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) ProbabilityObserve(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probabilities = append(m.probabilities, p)
}

func (m *MockMetrics) RiskLevelInc(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.riskLevels == nil {
		m.riskLevels = make(map[string]int)
	}
	m.riskLevels[level]++
}

func (m *MockMetrics) BatchSizeObserve(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSizes = append(m.batchSizes, n)
}

func (m *MockMetrics) CacheHitInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
}

func (m *MockMetrics) CacheMissInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheMisses++
}

func (m *MockMetrics) ModelLoadedSet(loaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelLoaded = loaded
}

func (m *MockMetrics) ModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

// ageModel scores churn as Age/100, or a fixed error when failing is set.
type ageModel struct {
	calls   int
	rows    [][]float64
	failing bool
}

var testFeatureNames = []string{"Age", "credit_score", "Geography_Germany", "Gender_Male", "ltv_ratio", "balance_per_product"}

func (m *ageModel) Type() string                         { return "age_stub" }
func (m *ageModel) Train([][]float64, []int) error       { return nil }
func (m *ageModel) NumFeatures() int                     { return len(testFeatureNames) }
func (m *ageModel) MarshalJSON() ([]byte, error)         { return json.Marshal(struct{}{}) }
func (m *ageModel) UnmarshalJSON([]byte) error           { return nil }
func (m *ageModel) Predict(f [][]float64) ([]int, error) { return nil, errors.New("unused") }

func (m *ageModel) PredictProba(features [][]float64) ([]float64, error) {
	m.calls++
	m.rows = append(m.rows, features...)
	if m.failing {
		return nil, ml.ErrFeatureMismatch
	}
	out := make([]float64, len(features))
	for i, row := range features {
		out[i] = row[0] / 100
	}
	return out, nil
}

// validRecord mirrors a decoded JSON request body.
func validRecord(age float64) CustomerRecord {
	return CustomerRecord{
		"credit_score":             650.0,
		"Geography":                "Germany",
		"Gender":                   "Female",
		"Age":                      age,
		"loan_age_years":           2.0,
		"outstanding_loan_balance": 0.0,
		"num_bank_products":        1.0,
		"has_credit_card":          1.0,
		"online_banking_active":    1.0,
		"annual_income":            101348.88,
	}
}

func newTestService(model ml.Model, metrics *MockMetrics, cacheSize int) *Service {
	opts := Options{
		Model:        model,
		FeatureNames: testFeatureNames,
		ModelName:    "test_model",
		ModelVersion: "v1",
		MaxBatchSize: 3,
		CacheSize:    cacheSize,
	}
	if metrics != nil {
		opts.Metrics = metrics
	}
	return NewService(opts)
}
