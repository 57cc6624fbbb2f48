package forecast

import (
	"fmt"
	"math"
)

// FeatureRange is the historical [Min, Max] bound of a single feature.
type FeatureRange struct {
	Feature string  `json:"feature" yaml:"feature"`
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
}

// Degenerate reports whether the range collapses to a single point.
func (r FeatureRange) Degenerate() bool { return r.Min == r.Max }

// NormalizationConfig holds the target range and per-feature bounds.
// It is immutable once built; reconfiguration builds a new value.
type NormalizationConfig struct {
	normMin float64
	normMax float64
	ordered []FeatureRange
	ranges  map[string]FeatureRange
}

// NewNormalizationConfig validates the bounds and returns an immutable config.
// It fails with *ConfigError when any invariant is violated.
func NewNormalizationConfig(normMin, normMax float64, ranges []FeatureRange) (*NormalizationConfig, error) {
	if !finite(normMin) || !finite(normMax) {
		return nil, &ConfigError{Reason: "norm_min and norm_max must be finite"}
	}
	if normMin >= normMax {
		return nil, &ConfigError{Reason: fmt.Sprintf("norm_min (%g) must be less than norm_max (%g)", normMin, normMax)}
	}

	m := make(map[string]FeatureRange, len(ranges))
	ordered := make([]FeatureRange, 0, len(ranges))
	for _, r := range ranges {
		if r.Feature == "" {
			return nil, &ConfigError{Reason: "range with empty feature name"}
		}
		if _, dup := m[r.Feature]; dup {
			return nil, &ConfigError{Feature: r.Feature, Reason: "duplicate range"}
		}
		if !finite(r.Min) || !finite(r.Max) {
			return nil, &ConfigError{Feature: r.Feature, Reason: "bounds must be finite"}
		}
		if r.Min > r.Max {
			return nil, &ConfigError{Feature: r.Feature, Reason: fmt.Sprintf("min (%g) greater than max (%g)", r.Min, r.Max)}
		}
		m[r.Feature] = r
		ordered = append(ordered, r)
	}

	return &NormalizationConfig{normMin: normMin, normMax: normMax, ordered: ordered, ranges: m}, nil
}

// NormMin returns the lower bound of the target range.
func (c *NormalizationConfig) NormMin() float64 { return c.normMin }

// NormMax returns the upper bound of the target range.
func (c *NormalizationConfig) NormMax() float64 { return c.normMax }

// Midpoint returns the center of the target range.
func (c *NormalizationConfig) Midpoint() float64 { return (c.normMin + c.normMax) / 2 }

// Range looks up the configured bounds for feature.
func (c *NormalizationConfig) Range(feature string) (FeatureRange, bool) {
	r, ok := c.ranges[feature]
	return r, ok
}

// Ranges returns a copy of all configured ranges in the order they were given.
func (c *NormalizationConfig) Ranges() []FeatureRange {
	out := make([]FeatureRange, len(c.ordered))
	copy(out, c.ordered)
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
