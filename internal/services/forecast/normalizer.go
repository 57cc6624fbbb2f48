package forecast

import (
	"math"

	applogger "CryptoCast/pkg/logger"
)

// MissingRangeHook observes lookups for features that have no configured range.
type MissingRangeHook func(op, feature string)

// NormalizerOption configures Normalizer.
type NormalizerOption func(*Normalizer)

// WithLogger sets the logger used for missing-range diagnostics.
func WithLogger(l *applogger.Logger) NormalizerOption {
	return func(n *Normalizer) {
		if l != nil {
			n.l = l
		}
	}
}

// WithMissingRangeHook registers a callback for missing-range diagnostics (e.g. a metric).
func WithMissingRangeHook(h MissingRangeHook) NormalizerOption {
	return func(n *Normalizer) { n.onMissing = h }
}

// Normalizer maps raw feature values into [norm_min, norm_max] and back.
// It holds no per-call state and is safe for concurrent use.
type Normalizer struct {
	cfg       *NormalizationConfig
	l         *applogger.Logger
	onMissing MissingRangeHook
}

// NewNormalizer creates a Normalizer over an immutable config.
func NewNormalizer(cfg *NormalizationConfig, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{cfg: cfg, l: applogger.Nop()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Config returns the underlying config.
func (n *Normalizer) Config() *NormalizationConfig { return n.cfg }

// Normalize clips value to the feature's range and scales it into the target range.
// Features without a range pass through unchanged.
func (n *Normalizer) Normalize(feature string, value float64) float64 {
	r, ok := n.cfg.Range(feature)
	if !ok {
		n.missing("normalize", feature)
		return value
	}
	if r.Degenerate() {
		return n.cfg.normMin
	}

	clipped := math.Max(r.Min, math.Min(r.Max, value))
	t := (clipped - r.Min) / (r.Max - r.Min)
	return n.cfg.normMin + t*(n.cfg.normMax-n.cfg.normMin)
}

// Denormalize maps a target-range value back into the feature's natural range.
// The input is not clipped: values outside [norm_min, norm_max] extrapolate linearly.
func (n *Normalizer) Denormalize(feature string, normalized float64) float64 {
	r, ok := n.cfg.Range(feature)
	if !ok {
		n.missing("denormalize", feature)
		return normalized
	}
	if r.Degenerate() {
		return r.Min
	}

	t := (normalized - n.cfg.normMin) / (n.cfg.normMax - n.cfg.normMin)
	return r.Min + t*(r.Max-r.Min)
}

// NormalizeAll normalizes every entry of values, preserving keys.
func (n *Normalizer) NormalizeAll(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for k, v := range values {
		out[k] = n.Normalize(k, v)
	}
	return out
}

// NormalizeVector normalizes the set entries of v into a new vector.
func (n *Normalizer) NormalizeVector(v *Vector) *Vector {
	out := v.schema.NewVector()
	for i, name := range v.schema.names {
		if !v.present[i] {
			continue
		}
		out.values[i] = n.Normalize(name, v.values[i])
		out.present[i] = true
	}
	return out
}

// DenormalizeVector denormalizes the set entries of v into a new vector.
func (n *Normalizer) DenormalizeVector(v *Vector) *Vector {
	out := v.schema.NewVector()
	for i, name := range v.schema.names {
		if !v.present[i] {
			continue
		}
		out.values[i] = n.Denormalize(name, v.values[i])
		out.present[i] = true
	}
	return out
}

func (n *Normalizer) missing(op, feature string) {
	n.l.Warn("no normalization range defined",
		applogger.String("op", op),
		applogger.String("feature", feature),
	)
	if n.onMissing != nil {
		n.onMissing(op, feature)
	}
}
