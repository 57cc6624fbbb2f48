package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cryptocast"

// Register registers c on reg. If an equal collector is already registered the existing
// one is returned, so packages can be constructed more than once against one registry.
func Register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions  *prometheus.CounterVec
	missingRange *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	reloads      *prometheus.CounterVec
	modelsLoaded prometheus.Gauge
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a Prometheus metrics recorder on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Recorder{
		predictions: Register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Predictions served by symbol and result",
			},
			[]string{"symbol", "result"},
		)),
		missingRange: Register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "missing_range_total",
				Help:      "Normalization calls on a feature without a configured range",
			},
			[]string{"op", "feature"},
		)),
		errorsTotal: Register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		)),
		cacheLookups: Register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Prediction cache lookups by result",
			},
			[]string{"result"},
		)),
		reloads: Register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_reloads_total",
				Help:      "Model registry reloads by result",
			},
			[]string{"result"},
		)),
		modelsLoaded: Register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "models_loaded",
				Help:      "Number of models in the active registry snapshot",
			},
		)),
		lastPrice: Register(reg, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_predicted_price",
				Help:      "Last predicted close price for a symbol",
			},
			[]string{"symbol"},
		)),
		latency: Register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		)),
	}
}

// RecordPrediction counts a prediction outcome.
func (r *Recorder) RecordPrediction(symbol, result string) {
	r.predictions.WithLabelValues(symbol, result).Inc()
}

// RecordMissingRange counts a normalization fallback to identity.
func (r *Recorder) RecordMissingRange(op, feature string) {
	r.missingRange.WithLabelValues(op, feature).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// RecordReload records a registry reload and the resulting model count.
func (r *Recorder) RecordReload(result string, models int) {
	r.reloads.WithLabelValues(result).Inc()
	if result == "ok" {
		r.modelsLoaded.Set(float64(models))
	}
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
