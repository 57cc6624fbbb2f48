package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"CryptoCast/internal/domain/models"
	domrepo "CryptoCast/internal/domain/repository"
	"CryptoCast/internal/services/forecast"
	"CryptoCast/pkg/cache"
	applogger "CryptoCast/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const predictionCachePrefix = "predict:"

// ModelCatalog is the read side of the model registry.
type ModelCatalog interface {
	Available() []string
	Generation() uint64
	LoadedAt() time.Time
}

// Prediction is the served answer for one request.
type Prediction struct {
	ID                     string             `json:"id"`
	Cryptocurrency         string             `json:"cryptocurrency"`
	Prediction             float64            `json:"prediction"`
	PredictionDisplay      string             `json:"prediction_display"`
	NormalizedPrediction   float64            `json:"normalized_prediction"`
	Features               map[string]float64 `json:"features"`
	RawFeaturesUsed        *forecast.Vector   `json:"raw_features_used"`
	NormalizedFeaturesUsed *forecast.Vector   `json:"normalized_features_used"`
	SynthesizedFeatures    []string           `json:"synthesized_features"`
	CompletionPolicy       forecast.Policy    `json:"completion_policy"`
	ModelGeneration        uint64             `json:"model_generation"`
	Cached                 bool               `json:"cached"`
	Timestamp              time.Time          `json:"timestamp"`
}

// cachedPrediction is the cache representation; vectors are rebuilt against the schema on read.
type cachedPrediction struct {
	ID         string             `json:"id"`
	Symbol     string             `json:"symbol"`
	Price      float64            `json:"price"`
	Normalized float64            `json:"normalized"`
	Raw        map[string]float64 `json:"raw"`
	Norm       map[string]float64 `json:"norm"`
	Filled     []string           `json:"filled"`
	Policy     forecast.Policy    `json:"policy"`
	Generation uint64             `json:"generation"`
	Timestamp  time.Time          `json:"timestamp"`
}

type ModelsInfo struct {
	AvailableModels  []string        `json:"available_models"`
	LoadedModels     []string        `json:"loaded_models"`
	Features         []string        `json:"features"`
	CompletionPolicy forecast.Policy `json:"completion_policy"`
	ModelGeneration  uint64          `json:"model_generation"`
	LoadedAt         *time.Time      `json:"loaded_at,omitempty"`
}

type NormalizationInfo struct {
	NormMin float64                 `json:"norm_min"`
	NormMax float64                 `json:"norm_max"`
	Ranges  []forecast.FeatureRange `json:"ranges"`
}

// PredictionService wraps the forecast pipeline with caching, audit, streaming and metrics.
// Only the pipeline can fail a request; side channels log and count their errors.
type PredictionService struct {
	predictor   *forecast.Predictor
	catalog     ModelCatalog
	cache       cache.Service
	cacheTTL    time.Duration
	recorder    domrepo.PredictionRecorder
	publisher   domrepo.EventPublisher
	broadcaster domrepo.Broadcaster
	metrics     domrepo.Metrics
	precision   int32
	timeout     time.Duration
	sideTimeout time.Duration
	l           *applogger.Logger
	newID       func() string
	now         func() time.Time
}

type PredictionOption func(*PredictionService)

// WithCache enables result caching; a nil service disables it.
func WithCache(c cache.Service, ttl time.Duration) PredictionOption {
	return func(s *PredictionService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithRecorder(r domrepo.PredictionRecorder) PredictionOption {
	return func(s *PredictionService) { s.recorder = r }
}

func WithPublisher(p domrepo.EventPublisher) PredictionOption {
	return func(s *PredictionService) { s.publisher = p }
}

func WithBroadcaster(b domrepo.Broadcaster) PredictionOption {
	return func(s *PredictionService) { s.broadcaster = b }
}

// WithPricePrecision sets the decimal places of the display price.
func WithPricePrecision(places int32) PredictionOption {
	return func(s *PredictionService) { s.precision = places }
}

// WithTimeout bounds a single pipeline run.
func WithTimeout(d time.Duration) PredictionOption {
	return func(s *PredictionService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithServiceLogger(l *applogger.Logger) PredictionOption {
	return func(s *PredictionService) {
		if l != nil {
			s.l = l
		}
	}
}

func NewPredictionService(p *forecast.Predictor, catalog ModelCatalog, metrics domrepo.Metrics, opts ...PredictionOption) *PredictionService {
	s := &PredictionService{
		predictor:   p,
		catalog:     catalog,
		metrics:     metrics,
		precision:   2,
		timeout:     5 * time.Second,
		sideTimeout: 2 * time.Second,
		l:           applogger.Nop(),
		newID:       func() string { return uuid.NewString() },
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict serves a prediction for symbol from raw (un-normalized) features.
func (s *PredictionService) Predict(ctx context.Context, symbol string, raw map[string]float64) (*Prediction, error) {
	start := s.now()
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if raw == nil {
		raw = map[string]float64{}
	}

	key := s.cacheKey(sym, raw)
	if out, ok := s.fromCache(ctx, key, raw); ok {
		s.metrics.RecordPrediction(sym, "cached")
		s.metrics.RecordLatency("predict_cached", s.now().Sub(start).Seconds())
		return out, nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.predictor.Predict(pctx, sym, raw)
	if err != nil {
		s.metrics.RecordPrediction(metricSymbol(sym, err), resultLabel(err))
		return nil, err
	}

	out := &Prediction{
		ID:                     s.newID(),
		Cryptocurrency:         res.Symbol,
		Prediction:             res.PredictedPrice,
		PredictionDisplay:      s.display(res.PredictedPrice),
		NormalizedPrediction:   res.NormalizedPrediction,
		Features:               raw,
		RawFeaturesUsed:        res.RawFeatures,
		NormalizedFeaturesUsed: res.NormalizedFeatures,
		SynthesizedFeatures:    res.Synthesized,
		CompletionPolicy:       res.Policy,
		ModelGeneration:        s.catalog.Generation(),
		Timestamp:              s.now().UTC(),
	}

	elapsed := s.now().Sub(start)
	s.metrics.RecordPrediction(res.Symbol, "ok")
	s.metrics.RecordLastPrice(res.Symbol, res.PredictedPrice)
	s.metrics.RecordLatency("predict", elapsed.Seconds())

	s.toCache(ctx, key, out)
	s.emit(ctx, out, elapsed)
	return out, nil
}

// NormalizeValue exposes the single-value normalizer.
func (s *PredictionService) NormalizeValue(feature string, value float64) float64 {
	return s.predictor.NormalizeValue(feature, value)
}

// DenormalizeValue exposes the single-value denormalizer.
func (s *PredictionService) DenormalizeValue(feature string, normalized float64) float64 {
	return s.predictor.DenormalizeValue(feature, normalized)
}

func (s *PredictionService) Models() ModelsInfo {
	info := ModelsInfo{
		AvailableModels:  s.predictor.Symbols(),
		LoadedModels:     s.catalog.Available(),
		Features:         s.predictor.Schema().Names(),
		CompletionPolicy: s.predictor.Policy(),
		ModelGeneration:  s.catalog.Generation(),
	}
	if t := s.catalog.LoadedAt(); !t.IsZero() {
		info.LoadedAt = &t
	}
	return info
}

func (s *PredictionService) Normalization() NormalizationInfo {
	cfg := s.predictor.Normalizer().Config()
	return NormalizationInfo{NormMin: cfg.NormMin(), NormMax: cfg.NormMax(), Ranges: cfg.Ranges()}
}

// History returns recorded predictions, newest first.
func (s *PredictionService) History(ctx context.Context, symbol string, limit int) ([]*models.PredictionEvent, error) {
	if s.recorder == nil {
		return []*models.PredictionEvent{}, nil
	}
	events, err := s.recorder.Recent(ctx, strings.ToUpper(symbol), limit)
	if err != nil {
		s.metrics.RecordError("recorder_read")
		return nil, fmt.Errorf("prediction history: %w", err)
	}
	return events, nil
}

// InvalidateCache drops every cached prediction.
func (s *PredictionService) InvalidateCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Purge(ctx, predictionCachePrefix)
}

func (s *PredictionService) display(price float64) string {
	return decimal.NewFromFloat(price).StringFixed(s.precision)
}

func (s *PredictionService) cacheKey(sym string, raw map[string]float64) string {
	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(sym)
	b.WriteByte('|')
	b.WriteString(string(s.predictor.Policy()))
	for _, k := range names {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(raw[k], 'g', -1, 64))
	}
	return cache.GenerateKeyWithParams(strings.TrimSuffix(predictionCachePrefix, ":"), s.catalog.Generation(), cache.HashKey(b.String()))
}

func (s *PredictionService) fromCache(ctx context.Context, key string, raw map[string]float64) (*Prediction, bool) {
	if s.cache == nil {
		return nil, false
	}
	entry, err := cache.GetJSON[cachedPrediction](ctx, s.cache, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.metrics.RecordError("cache_get")
			s.l.Warn("prediction cache read failed", applogger.String("key", key), applogger.Error(err))
		}
		s.metrics.RecordCacheLookup(false)
		return nil, false
	}

	schema := s.predictor.Schema()
	rawVec, err1 := schema.FromMap(entry.Raw)
	normVec, err2 := schema.FromMap(entry.Norm)
	if err := errors.Join(err1, err2); err != nil {
		s.metrics.RecordCacheLookup(false)
		return nil, false
	}
	s.metrics.RecordCacheLookup(true)

	return &Prediction{
		ID:                     entry.ID,
		Cryptocurrency:         entry.Symbol,
		Prediction:             entry.Price,
		PredictionDisplay:      s.display(entry.Price),
		NormalizedPrediction:   entry.Normalized,
		Features:               raw,
		RawFeaturesUsed:        rawVec,
		NormalizedFeaturesUsed: normVec,
		SynthesizedFeatures:    entry.Filled,
		CompletionPolicy:       entry.Policy,
		ModelGeneration:        entry.Generation,
		Cached:                 true,
		Timestamp:              entry.Timestamp,
	}, true
}

func (s *PredictionService) toCache(ctx context.Context, key string, p *Prediction) {
	if s.cache == nil {
		return
	}
	entry := cachedPrediction{
		ID:         p.ID,
		Symbol:     p.Cryptocurrency,
		Price:      p.Prediction,
		Normalized: p.NormalizedPrediction,
		Raw:        p.RawFeaturesUsed.Map(),
		Norm:       p.NormalizedFeaturesUsed.Map(),
		Filled:     p.SynthesizedFeatures,
		Policy:     p.CompletionPolicy,
		Generation: p.ModelGeneration,
		Timestamp:  p.Timestamp,
	}
	if err := cache.SetJSON(ctx, s.cache, key, entry, s.cacheTTL); err != nil {
		s.metrics.RecordError("cache_set")
		s.l.Warn("prediction cache write failed", applogger.String("key", key), applogger.Error(err))
	}
}

// emit fans the event out to audit, stream and live subscribers. The request context's
// cancellation is dropped so a disconnecting client does not lose the audit record.
func (s *PredictionService) emit(ctx context.Context, p *Prediction, elapsed time.Duration) {
	ev := &models.PredictionEvent{
		ID:                   p.ID,
		Symbol:               p.Cryptocurrency,
		PredictedPrice:       p.Prediction,
		NormalizedPrediction: p.NormalizedPrediction,
		Policy:               string(p.CompletionPolicy),
		ModelGeneration:      p.ModelGeneration,
		RawFeatures:          p.RawFeaturesUsed.Map(),
		NormalizedFeatures:   p.NormalizedFeaturesUsed.Map(),
		LatencyMs:            elapsed.Milliseconds(),
		Timestamp:            p.Timestamp,
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideTimeout)
	defer cancel()

	if s.recorder != nil {
		if err := s.recorder.Record(sctx, ev); err != nil {
			s.metrics.RecordError("recorder")
			s.l.Warn("prediction not recorded", applogger.String("id", ev.ID), applogger.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(sctx, ev); err != nil {
			s.metrics.RecordError("publisher")
			s.l.Warn("prediction event not published", applogger.String("id", ev.ID), applogger.Error(err))
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(ev)
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, forecast.ErrUnknownSymbol):
		return "unknown_symbol"
	case errors.Is(err, forecast.ErrUnknownFeature):
		return "invalid"
	case errors.Is(err, forecast.ErrPredictionFailed):
		return "failed"
	default:
		return "error"
	}
}

// metricSymbol keeps arbitrary client input out of label values.
func metricSymbol(sym string, err error) string {
	if errors.Is(err, forecast.ErrUnknownSymbol) {
		return "unsupported"
	}
	return sym
}
