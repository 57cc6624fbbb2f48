package forecast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonical feature names, in the order the models were trained on.
const (
	FeatureOpen         = "Open"
	FeatureHigh         = "High"
	FeatureLow          = "Low"
	FeatureClose        = "Close"
	FeatureDailyReturn  = "Daily_Return"
	FeatureLogReturn    = "Log_Return"
	FeatureMA7          = "MA_7"
	FeatureMA14         = "MA_14"
	FeatureMA30         = "MA_30"
	FeatureVolatility7  = "Volatility_7"
	FeatureVolatility14 = "Volatility_14"
	FeatureRSI          = "RSI"
	FeatureMACD         = "MACD"
	FeatureMACDSignal   = "MACD_Signal"
)

// TargetFeature is the feature whose range maps model output back to a price.
const TargetFeature = FeatureClose

// CanonicalFeatures returns the default model input order.
func CanonicalFeatures() []string {
	return []string{
		FeatureOpen, FeatureHigh, FeatureLow, FeatureClose,
		FeatureDailyReturn, FeatureLogReturn,
		FeatureMA7, FeatureMA14, FeatureMA30,
		FeatureVolatility7, FeatureVolatility14,
		FeatureRSI, FeatureMACD, FeatureMACDSignal,
	}
}

// Schema is an ordered, duplicate-free set of feature names.
type Schema struct {
	names []string
	index map[string]int
}

// NewSchema validates names and builds a schema. The target feature must be present.
func NewSchema(names []string) (*Schema, error) {
	if len(names) == 0 {
		return nil, &ConfigError{Reason: "feature list is empty"}
	}
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, &ConfigError{Reason: fmt.Sprintf("feature #%d has empty name", i)}
		}
		if _, dup := idx[n]; dup {
			return nil, &ConfigError{Feature: n, Reason: "duplicate feature"}
		}
		idx[n] = i
	}
	if _, ok := idx[TargetFeature]; !ok {
		return nil, &ConfigError{Feature: TargetFeature, Reason: "target feature missing from feature list"}
	}
	cp := make([]string, len(names))
	copy(cp, names)
	return &Schema{names: cp, index: idx}, nil
}

// DefaultSchema returns the canonical 14-feature schema.
func DefaultSchema() *Schema {
	s, err := NewSchema(CanonicalFeatures())
	if err != nil {
		panic(err)
	}
	return s
}

// Names returns the feature names in order.
func (s *Schema) Names() []string {
	cp := make([]string, len(s.names))
	copy(cp, s.names)
	return cp
}

func (s *Schema) Len() int { return len(s.names) }

// Has reports whether name belongs to the schema.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// NewVector returns an empty vector bound to s.
func (s *Schema) NewVector() *Vector {
	return &Vector{
		schema:  s,
		values:  make([]float64, len(s.names)),
		present: make([]bool, len(s.names)),
	}
}

// FromMap builds a partial vector from m. Keys outside the schema are rejected.
func (s *Schema) FromMap(m map[string]float64) (*Vector, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	v := s.NewVector()
	for _, k := range keys {
		if err := v.Set(k, m[k]); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Vector is a keyed feature set with a fixed order given by its schema.
type Vector struct {
	schema  *Schema
	values  []float64
	present []bool
}

// Schema returns the schema the vector is bound to.
func (v *Vector) Schema() *Schema { return v.schema }

// Get returns the value for name and whether it is set.
func (v *Vector) Get(name string) (float64, bool) {
	i, ok := v.schema.index[name]
	if !ok || !v.present[i] {
		return 0, false
	}
	return v.values[i], true
}

// Set assigns a value; name must belong to the schema.
func (v *Vector) Set(name string, value float64) error {
	i, ok := v.schema.index[name]
	if !ok {
		return &UnknownFeatureError{Feature: name}
	}
	v.values[i] = value
	v.present[i] = true
	return nil
}

// Missing lists unset features in schema order.
func (v *Vector) Missing() []string {
	var out []string
	for i, n := range v.schema.names {
		if !v.present[i] {
			out = append(out, n)
		}
	}
	return out
}

// Complete reports whether every feature is set.
func (v *Vector) Complete() bool {
	for _, p := range v.present {
		if !p {
			return false
		}
	}
	return true
}

// Values returns a copy of the values in schema order. Unset entries are zero.
func (v *Vector) Values() []float64 {
	cp := make([]float64, len(v.values))
	copy(cp, v.values)
	return cp
}

// Map returns the set entries as a plain map.
func (v *Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.values))
	for i, n := range v.schema.names {
		if v.present[i] {
			m[n] = v.values[i]
		}
	}
	return m
}

// Clone returns an independent copy.
func (v *Vector) Clone() *Vector {
	c := v.schema.NewVector()
	copy(c.values, v.values)
	copy(c.present, v.present)
	return c
}

// MarshalJSON writes set entries as an object keyed in schema order.
func (v *Vector) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for i, n := range v.schema.names {
		if !v.present[i] {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v.values[i])
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", n, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
