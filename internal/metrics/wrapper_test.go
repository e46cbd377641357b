package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

func TestNewWrapper(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_PredictionCounters(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	if initial := testutil.ToFloat64(metrics.PredictionsTotal); initial != 0 {
		t.Errorf("Expected initial counter value 0, got %f", initial)
	}

	wrapper.PredictionsAdd(1)
	wrapper.PredictionsAdd(4)
	if got := testutil.ToFloat64(metrics.PredictionsTotal); got != 5 {
		t.Errorf("Expected 5 predictions, got %f", got)
	}

	wrapper.PredictionFailuresInc()
	if got := testutil.ToFloat64(metrics.PredictionFailures); got != 1 {
		t.Errorf("Expected 1 prediction failure, got %f", got)
	}

	wrapper.ValidationFailuresInc()
	wrapper.ValidationFailuresInc()
	if got := testutil.ToFloat64(metrics.ValidationFailures); got != 2 {
		t.Errorf("Expected 2 validation failures, got %f", got)
	}
}

func TestMetricsWrapper_RiskLevels(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	wrapper.RiskLevelInc("Low")
	wrapper.RiskLevelInc("High")
	wrapper.RiskLevelInc("High")

	if got := testutil.ToFloat64(metrics.RiskLevels.WithLabelValues("High")); got != 2 {
		t.Errorf("Expected 2 High predictions, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.RiskLevels.WithLabelValues("Low")); got != 1 {
		t.Errorf("Expected 1 Low prediction, got %f", got)
	}
}

func TestMetricsWrapper_ModelGauges(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	wrapper.ModelLoadedSet(true)
	if got := testutil.ToFloat64(metrics.ModelLoaded); got != 1 {
		t.Errorf("Expected model loaded gauge 1, got %f", got)
	}
	wrapper.ModelLoadedSet(false)
	if got := testutil.ToFloat64(metrics.ModelLoaded); got != 0 {
		t.Errorf("Expected model loaded gauge 0, got %f", got)
	}

	wrapper.ModelAgeSet(3600)
	if got := testutil.ToFloat64(metrics.ModelAge); got != 3600 {
		t.Errorf("Expected model age 3600, got %f", got)
	}
}

func TestMetricsWrapper_CacheAndHTTP(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	wrapper.CacheHitInc()
	wrapper.CacheMissInc()
	wrapper.CacheMissInc()
	if got := testutil.ToFloat64(metrics.CacheHits); got != 1 {
		t.Errorf("Expected 1 cache hit, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.CacheMisses); got != 2 {
		t.Errorf("Expected 2 cache misses, got %f", got)
	}

	wrapper.ObserveRequest("/predict", "200", 0.01)
	wrapper.ObserveRequest("/predict", "422", 0.02)
	if got := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/predict", "200")); got != 1 {
		t.Errorf("Expected 1 successful request, got %f", got)
	}

	wrapper.RateLimited("/predict").Inc()
	if got := testutil.ToFloat64(metrics.RateLimited.WithLabelValues("/predict")); got != 1 {
		t.Errorf("Expected 1 rate limited request, got %f", got)
	}

	clients := wrapper.StreamClients()
	clients.Add(2)
	clients.Add(-1)
	if got := testutil.ToFloat64(metrics.StreamClients); got != 1 {
		t.Errorf("Expected 1 stream client, got %f", got)
	}
}

func TestMetrics_GetErrorRate(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	if rate := metrics.GetErrorRate(); rate != 0 {
		t.Errorf("Expected error rate 0 without predictions, got %f", rate)
	}

	wrapper.PredictionsAdd(8)
	wrapper.PredictionFailuresInc()
	wrapper.PredictionFailuresInc()

	if rate := metrics.GetErrorRate(); rate != 0.25 {
		t.Errorf("Expected error rate 0.25, got %f", rate)
	}
}

func TestCounterWrapper_DirectUsage(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter for unit tests",
	})

	wrapper := &CounterWrapper{c: counter}

	wrapper.Inc()
	if value := testutil.ToFloat64(counter); value != 1 {
		t.Errorf("Expected counter value 1, got %f", value)
	}
}

func TestGaugeWrapper_DirectUsage(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "Test gauge for unit tests",
	})

	wrapper := &GaugeWrapper{g: gauge}

	wrapper.Set(42.0)
	if value := testutil.ToFloat64(gauge); value != 42.0 {
		t.Errorf("Expected gauge value 42.0, got %f", value)
	}

	wrapper.Add(8.0)
	if value := testutil.ToFloat64(gauge); value != 50.0 {
		t.Errorf("Expected gauge value 50.0 after add, got %f", value)
	}
}

func TestHistogramWrapper_DirectUsage(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_histogram",
		Help:    "Test histogram for unit tests",
		Buckets: prometheus.DefBuckets,
	})

	wrapper := &HistogramWrapper{h: histogram}
	wrapper.Observe(0.5)

	if count := testutil.CollectAndCount(histogram); count != 1 {
		t.Errorf("Expected 1 collected histogram, got %d", count)
	}
}

func TestMetricsWrapper_ConcurrentAccess(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				wrapper.PredictionsAdd(1)
				wrapper.LatencyObserve(0.01)
				wrapper.RiskLevelInc("Medium")
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	expected := 1000.0 // 10 goroutines * 100 increments
	if got := testutil.ToFloat64(metrics.PredictionsTotal); got != expected {
		t.Errorf("Expected %f predictions after concurrent access, got %f", expected, got)
	}
	if got := testutil.ToFloat64(metrics.RiskLevels.WithLabelValues("Medium")); got != expected {
		t.Errorf("Expected %f Medium predictions after concurrent access, got %f", expected, got)
	}
}

func BenchmarkMetricsWrapper_PredictionsAdd(b *testing.B) {
	wrapper := NewWrapper(newTestMetrics())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.PredictionsAdd(1)
	}
}

func BenchmarkMetricsWrapper_RiskLevelInc(b *testing.B) {
	wrapper := NewWrapper(newTestMetrics())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.RiskLevelInc("Low")
	}
}
