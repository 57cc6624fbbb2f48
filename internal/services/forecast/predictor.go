package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	domsvc "CryptoCast/internal/domain/service"
	applogger "CryptoCast/pkg/logger"
)

// Result is the outcome of a single prediction. It is owned by the caller.
//
// Synthesized lists the features the completer filled in, in schema order. Under the
// midpoint policy their RawFeatures entries are the denormalized defaults and may fall
// outside the configured range (Daily_Return 0.0 maps to about -24.4 with [-20, 20]).
type Result struct {
	Symbol               string   `json:"symbol"`
	PredictedPrice       float64  `json:"predicted_price"`
	NormalizedPrediction float64  `json:"normalized_prediction"`
	RawFeatures          *Vector  `json:"raw_features_used"`
	NormalizedFeatures   *Vector  `json:"normalized_features_used"`
	Synthesized          []string `json:"synthesized_features"`
	Policy               Policy   `json:"completion_policy"`
}

// PredictorOption configures Predictor.
type PredictorOption func(*Predictor)

// WithPredictorLogger sets the predictor's logger.
func WithPredictorLogger(l *applogger.Logger) PredictorOption {
	return func(p *Predictor) {
		if l != nil {
			p.l = l
		}
	}
}

// Predictor turns a symbol and partial raw features into a denormalized price.
type Predictor struct {
	schema    *Schema
	nz        *Normalizer
	completer *Completer
	registry  domsvc.ModelRegistry
	symbols   map[string]struct{}
	l         *applogger.Logger
}

// NewPredictor wires the pipeline. symbols is the supported set; lookups outside it
// fail before the registry is consulted.
func NewPredictor(schema *Schema, nz *Normalizer, completer *Completer, registry domsvc.ModelRegistry, symbols []string, opts ...PredictorOption) *Predictor {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[canonicalSymbol(s)] = struct{}{}
	}
	p := &Predictor{
		schema:    schema,
		nz:        nz,
		completer: completer,
		registry:  registry,
		symbols:   set,
		l:         applogger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Schema returns the feature schema.
func (p *Predictor) Schema() *Schema { return p.schema }

// Normalizer returns the normalizer.
func (p *Predictor) Normalizer() *Normalizer { return p.nz }

// Policy returns the completion policy in use.
func (p *Predictor) Policy() Policy { return p.completer.Policy() }

// Symbols returns the supported symbols sorted.
func (p *Predictor) Symbols() []string {
	out := make([]string, 0, len(p.symbols))
	for s := range p.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// NormalizeValue normalizes a single feature value.
func (p *Predictor) NormalizeValue(feature string, value float64) float64 {
	return p.nz.Normalize(feature, value)
}

// DenormalizeValue denormalizes a single feature value.
func (p *Predictor) DenormalizeValue(feature string, normalized float64) float64 {
	return p.nz.Denormalize(feature, normalized)
}

// Predict runs the full pipeline. It returns a complete Result or an error, never both.
func (p *Predictor) Predict(ctx context.Context, symbol string, raw map[string]float64) (*Result, error) {
	sym := canonicalSymbol(symbol)
	if _, ok := p.symbols[sym]; !ok {
		return nil, &UnknownSymbolError{Symbol: symbol, Available: p.Symbols()}
	}

	model, err := p.registry.Load(sym)
	if err != nil {
		if errors.Is(err, ErrUnknownSymbol) {
			return nil, err
		}
		return nil, &UnknownSymbolError{Symbol: sym, Available: p.registry.Available()}
	}

	partial, err := p.schema.FromMap(raw)
	if err != nil {
		return nil, err
	}

	rawUsed, normUsed := p.completer.Resolve(partial)

	out, err := infer(ctx, model, normUsed.Values())
	if err != nil {
		p.l.Error("model inference failed",
			applogger.String("symbol", sym),
			applogger.Any("features", normUsed.Map()),
			applogger.Error(err),
		)
		return nil, &PredictionFailedError{Symbol: sym, Cause: err}
	}

	price := p.nz.Denormalize(TargetFeature, out)
	p.l.Debug("prediction",
		applogger.String("symbol", sym),
		applogger.Float64("normalized", out),
		applogger.Float64("price", price),
	)

	return &Result{
		Symbol:               sym,
		PredictedPrice:       price,
		NormalizedPrediction: out,
		RawFeatures:          rawUsed,
		NormalizedFeatures:   normUsed,
		Synthesized:          partial.Missing(),
		Policy:               p.completer.Policy(),
	}, nil
}

func infer(ctx context.Context, model domsvc.Regressor, features []float64) (out float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panicked: %v", r)
		}
	}()

	out, err = model.Infer(ctx, features)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, fmt.Errorf("model returned non-finite value %v", out)
	}
	return out, nil
}

func canonicalSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
