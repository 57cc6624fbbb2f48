package forecast

import (
	"fmt"
	"math"
	"strings"
)

// Policy selects how missing features are synthesized. One policy is used per process.
type Policy string

const (
	// PolicyMidpoint fills gaps in normalized space: configured default or the target midpoint.
	PolicyMidpoint Policy = "midpoint"
	// PolicyDerive fills gaps in raw space, deriving from Open/Close where possible.
	PolicyDerive Policy = "derive"
)

// ParsePolicy parses a policy name; empty selects PolicyMidpoint.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyMidpoint:
		return PolicyMidpoint, nil
	case PolicyDerive:
		return PolicyDerive, nil
	default:
		return "", &ConfigError{Reason: fmt.Sprintf("unknown completion policy %q (want midpoint or derive)", s)}
	}
}

// MidpointDefaults are the normalized-space values used instead of the midpoint.
func MidpointDefaults() map[string]float64 {
	return map[string]float64{
		FeatureDailyReturn:  0.0,
		FeatureVolatility7:  3.0,
		FeatureVolatility14: 3.0,
	}
}

// DeriveDefaults are the raw-space constants used when nothing can be derived.
func DeriveDefaults() map[string]float64 {
	return map[string]float64{
		FeatureVolatility7:  0.02,
		FeatureVolatility14: 0.02,
		FeatureRSI:          50,
		FeatureMACD:         0,
		FeatureMACDSignal:   0,
	}
}

// CompleterOption configures Completer.
type CompleterOption func(*Completer)

// WithDefaults overrides per-feature defaults. Values are in the policy's working space.
func WithDefaults(d map[string]float64) CompleterOption {
	return func(c *Completer) {
		for k, v := range d {
			c.defaults[k] = v
		}
	}
}

// Completer fills every canonical feature a caller did not supply. It is total and deterministic.
type Completer struct {
	policy   Policy
	nz       *Normalizer
	defaults map[string]float64
}

// NewCompleter creates a completer for policy.
func NewCompleter(policy Policy, nz *Normalizer, opts ...CompleterOption) *Completer {
	c := &Completer{policy: policy, nz: nz}
	switch policy {
	case PolicyDerive:
		c.defaults = DeriveDefaults()
	default:
		c.policy = PolicyMidpoint
		c.defaults = MidpointDefaults()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the active policy.
func (c *Completer) Policy() Policy { return c.policy }

// Complete returns a full vector in the same space as partial.
// alreadyNormalized tells the completer which space partial is in.
func (c *Completer) Complete(partial *Vector, alreadyNormalized bool) *Vector {
	switch c.policy {
	case PolicyDerive:
		if !alreadyNormalized {
			return c.fillDerived(partial)
		}
		filled := c.fillDerived(c.nz.DenormalizeVector(partial))
		out := partial.Clone()
		for _, name := range partial.Missing() {
			v, _ := filled.Get(name)
			_ = out.Set(name, c.nz.Normalize(name, v))
		}
		return out
	default:
		if alreadyNormalized {
			return c.fillMidpoint(partial)
		}
		raw, _ := c.Resolve(partial)
		return raw
	}
}

// Resolve completes raw and returns both the raw and normalized vectors fed to the model.
// Supplied raw values are kept as given; synthesized entries are mapped across spaces.
func (c *Completer) Resolve(raw *Vector) (rawUsed, normUsed *Vector) {
	if c.policy == PolicyDerive {
		rawUsed = c.fillDerived(raw)
		return rawUsed, c.nz.NormalizeVector(rawUsed)
	}

	normUsed = c.fillMidpoint(c.nz.NormalizeVector(raw))
	rawUsed = raw.Clone()
	for _, name := range raw.Missing() {
		v, _ := normUsed.Get(name)
		_ = rawUsed.Set(name, c.nz.Denormalize(name, v))
	}
	return rawUsed, normUsed
}

func (c *Completer) fillMidpoint(normalized *Vector) *Vector {
	out := normalized.Clone()
	mid := c.nz.Config().Midpoint()
	for _, name := range normalized.Missing() {
		v, ok := c.defaults[name]
		if !ok {
			v = mid
		}
		_ = out.Set(name, v)
	}
	return out
}

func (c *Completer) fillDerived(raw *Vector) *Vector {
	out := raw.Clone()
	open, hasOpen := raw.Get(FeatureOpen)
	closePx, hasClose := raw.Get(FeatureClose)

	for _, name := range raw.Missing() {
		v, ok := c.defaults[name]
		switch name {
		case FeatureDailyReturn:
			if hasOpen && hasClose && open != 0 {
				v, ok = (closePx-open)/open*100, true
			}
		case FeatureLogReturn:
			if hasClose && closePx != 0 {
				v, ok = math.Log(closePx/(closePx*0.99)), true
			}
		case FeatureMA7, FeatureMA14, FeatureMA30:
			if hasClose {
				v, ok = closePx, true
			}
		}
		if !ok {
			v = 0
		}
		_ = out.Set(name, v)
	}
	return out
}
