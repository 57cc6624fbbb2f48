package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CryptoCast/internal/domain/models"
	domsvc "CryptoCast/internal/domain/service"
	"CryptoCast/internal/services/forecast"
	"CryptoCast/pkg/cache"
)

type regressorFunc func(ctx context.Context, f []float64) (float64, error)

func (fn regressorFunc) Infer(ctx context.Context, f []float64) (float64, error) { return fn(ctx, f) }

type stubRegistry struct {
	models map[string]domsvc.Regressor
	gen    uint64
}

func (r *stubRegistry) Load(symbol string) (domsvc.Regressor, error) {
	m, ok := r.models[symbol]
	if !ok {
		return nil, &forecast.UnknownSymbolError{Symbol: symbol}
	}
	return m, nil
}

func (r *stubRegistry) Available() []string {
	out := make([]string, 0, len(r.models))
	for k := range r.models {
		out = append(out, k)
	}
	return out
}

func (r *stubRegistry) Generation() uint64  { return r.gen }
func (r *stubRegistry) LoadedAt() time.Time { return time.Time{} }

type fakeMetrics struct {
	mu      sync.Mutex
	results []string
	errors  []string
	hits    int
	misses  int
	reloads []string
}

func (m *fakeMetrics) RecordPrediction(_, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}
func (m *fakeMetrics) RecordMissingRange(_, _ string) {}
func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, kind)
}
func (m *fakeMetrics) RecordCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}
func (m *fakeMetrics) RecordReload(result string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloads = append(m.reloads, result)
}
func (m *fakeMetrics) RecordLastPrice(string, float64) {}
func (m *fakeMetrics) RecordLatency(string, float64) {}

type memRecorder struct {
	events []*models.PredictionEvent
	err    error
}

func (r *memRecorder) Record(_ context.Context, e *models.PredictionEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *memRecorder) Recent(_ context.Context, symbol string, limit int) ([]*models.PredictionEvent, error) {
	var out []*models.PredictionEvent
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if symbol == "" || r.events[i].Symbol == symbol {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

func (r *memRecorder) Close() error { return nil }

type chanBroadcaster struct{ ch chan *models.PredictionEvent }

func (b *chanBroadcaster) Broadcast(e *models.PredictionEvent) {
	select {
	case b.ch <- e:
	default:
	}
}

func newTestService(t *testing.T, reg *stubRegistry, opts ...PredictionOption) (*PredictionService, *fakeMetrics) {
	t.Helper()
	cfg, err := forecast.NewNormalizationConfig(1, 10, []forecast.FeatureRange{
		{Feature: forecast.FeatureClose, Min: 0, Max: 100000},
		{Feature: forecast.FeatureRSI, Min: 0, Max: 100},
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	nz := forecast.NewNormalizer(cfg)
	p := forecast.NewPredictor(forecast.DefaultSchema(), nz, forecast.NewCompleter(forecast.PolicyMidpoint, nz), reg, []string{"BTC", "ETH"})
	m := &fakeMetrics{}
	s := NewPredictionService(p, reg, m, opts...)
	s.newID = func() string { return "id-1" }
	s.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, m
}

func TestPredictionServicePredict(t *testing.T) {
	calls := 0
	reg := &stubRegistry{gen: 3, models: map[string]domsvc.Regressor{
		"BTC": regressorFunc(func(_ context.Context, f []float64) (float64, error) {
			calls++
			return 6.4, nil
		}),
	}}
	rec := &memRecorder{}
	bc := &chanBroadcaster{ch: make(chan *models.PredictionEvent, 1)}
	mc := cache.NewMemoryCache()
	defer mc.Close()

	s, m := newTestService(t, reg, WithCache(mc, time.Minute), WithRecorder(rec), WithBroadcaster(bc), WithPricePrecision(2))

	in := map[string]float64{forecast.FeatureClose: 50000}
	out, err := s.Predict(context.Background(), "btc", in)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if out.Cryptocurrency != "BTC" || out.PredictionDisplay != "60000.00" || out.ModelGeneration != 3 || out.Cached {
		t.Fatalf("unexpected prediction %+v", out)
	}
	if !out.RawFeaturesUsed.Complete() {
		t.Fatalf("raw features must be complete")
	}
	if len(rec.events) != 1 || rec.events[0].ID != "id-1" {
		t.Fatalf("expected one recorded event, got %v", rec.events)
	}
	select {
	case e := <-bc.ch:
		if e.Symbol != "BTC" {
			t.Fatalf("unexpected broadcast %+v", e)
		}
	default:
		t.Fatalf("expected a broadcast")
	}

	again, err := s.Predict(context.Background(), "BTC", in)
	if err != nil {
		t.Fatalf("predict cached: %v", err)
	}
	if !again.Cached || again.Prediction != out.Prediction || calls != 1 {
		t.Fatalf("expected cached answer, got %+v (calls=%d)", again, calls)
	}
	if v, _ := again.NormalizedFeaturesUsed.Get(forecast.FeatureClose); v != 5.5 {
		t.Fatalf("cached vector not rebuilt: %v", v)
	}
	if len(out.SynthesizedFeatures) != 13 || len(again.SynthesizedFeatures) != 13 {
		t.Fatalf("synthesized features: fresh %v cached %v", out.SynthesizedFeatures, again.SynthesizedFeatures)
	}
	if len(rec.events) != 1 {
		t.Fatalf("cache hits must not be recorded again")
	}
	if m.hits != 1 || m.misses != 1 {
		t.Fatalf("cache lookups hits=%d misses=%d", m.hits, m.misses)
	}

	reg.gen = 4
	if _, err := s.Predict(context.Background(), "BTC", in); err != nil {
		t.Fatalf("predict: %v", err)
	}
	if calls != 2 {
		t.Fatalf("new model generation must bypass cache, calls=%d", calls)
	}
}

func TestPredictionServiceErrors(t *testing.T) {
	reg := &stubRegistry{models: map[string]domsvc.Regressor{
		"BTC": regressorFunc(func(context.Context, []float64) (float64, error) { return 0, errors.New("boom") }),
	}}
	rec := &memRecorder{}
	s, m := newTestService(t, reg, WithRecorder(rec))

	tests := []struct {
		name   string
		symbol string
		in     map[string]float64
		target error
		label  string
	}{
		{"unsupported", "DOGE", nil, forecast.ErrUnknownSymbol, "unknown_symbol"},
		{"not loaded", "ETH", nil, forecast.ErrUnknownSymbol, "unknown_symbol"},
		{"bad feature", "BTC", map[string]float64{"close": 1}, forecast.ErrUnknownFeature, "invalid"},
		{"model failure", "BTC", nil, forecast.ErrPredictionFailed, "failed"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.Predict(context.Background(), tt.symbol, tt.in)
			if out != nil || !errors.Is(err, tt.target) {
				t.Fatalf("got %v, %v", out, err)
			}
			if m.results[i] != tt.label {
				t.Fatalf("metric label %q want %q", m.results[i], tt.label)
			}
		})
	}
	if len(rec.events) != 0 {
		t.Fatalf("failed predictions must not be recorded")
	}
}

func TestPredictionServiceSideEffectFailureIsNotFatal(t *testing.T) {
	reg := &stubRegistry{models: map[string]domsvc.Regressor{
		"ETH": regressorFunc(func(context.Context, []float64) (float64, error) { return 1, nil }),
	}}
	s, m := newTestService(t, reg, WithRecorder(&memRecorder{err: errors.New("disk full")}))

	if _, err := s.Predict(context.Background(), "ETH", nil); err != nil {
		t.Fatalf("recorder failure must not fail prediction: %v", err)
	}
	if len(m.errors) != 1 || m.errors[0] != "recorder" {
		t.Fatalf("expected recorder error metric, got %v", m.errors)
	}
}

func TestPredictionServiceInfo(t *testing.T) {
	reg := &stubRegistry{gen: 2, models: map[string]domsvc.Regressor{"BTC": regressorFunc(nil)}}
	s, _ := newTestService(t, reg)

	info := s.Models()
	if len(info.AvailableModels) != 2 || len(info.LoadedModels) != 1 || len(info.Features) != 14 {
		t.Fatalf("unexpected models info %+v", info)
	}
	if info.LoadedAt != nil || info.ModelGeneration != 2 {
		t.Fatalf("unexpected models info %+v", info)
	}

	norm := s.Normalization()
	if norm.NormMin != 1 || norm.NormMax != 10 || len(norm.Ranges) != 2 {
		t.Fatalf("unexpected normalization info %+v", norm)
	}
	if got := s.NormalizeValue(forecast.FeatureRSI, 50); got != 5.5 {
		t.Fatalf("normalize: %v", got)
	}
	if got := s.DenormalizeValue(forecast.FeatureRSI, 5.5); got != 50 {
		t.Fatalf("denormalize: %v", got)
	}
}

func TestPredictionServiceHistory(t *testing.T) {
	reg := &stubRegistry{models: map[string]domsvc.Regressor{}}
	rec := &memRecorder{events: []*models.PredictionEvent{{ID: "a", Symbol: "BTC"}, {ID: "b", Symbol: "ETH"}, {ID: "c", Symbol: "BTC"}}}
	s, _ := newTestService(t, reg, WithRecorder(rec))

	got, err := s.History(context.Background(), "btc", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "a" {
		t.Fatalf("unexpected history %v", got)
	}

	bare, _ := newTestService(t, reg)
	if got, err := bare.History(context.Background(), "", 5); err != nil || len(got) != 0 {
		t.Fatalf("history without recorder: %v, %v", got, err)
	}
}
