package forecast

import (
	"math"
	"testing"
)

func defaultRanges() []FeatureRange {
	return []FeatureRange{
		{Feature: FeatureOpen, Min: 0, Max: 100000},
		{Feature: FeatureHigh, Min: 0, Max: 100000},
		{Feature: FeatureLow, Min: 0, Max: 100000},
		{Feature: FeatureClose, Min: 0, Max: 100000},
		{Feature: FeatureDailyReturn, Min: -20, Max: 20},
		{Feature: FeatureLogReturn, Min: -0.2, Max: 0.2},
		{Feature: FeatureMA7, Min: 0, Max: 100000},
		{Feature: FeatureMA14, Min: 0, Max: 100000},
		{Feature: FeatureMA30, Min: 0, Max: 100000},
		{Feature: FeatureVolatility7, Min: 0, Max: 0.5},
		{Feature: FeatureVolatility14, Min: 0, Max: 0.5},
		{Feature: FeatureRSI, Min: 0, Max: 100},
		{Feature: FeatureMACD, Min: -1000, Max: 1000},
		{Feature: FeatureMACDSignal, Min: -1000, Max: 1000},
	}
}

func newTestNormalizer(t *testing.T, ranges []FeatureRange, opts ...NormalizerOption) *Normalizer {
	t.Helper()
	cfg, err := NewNormalizationConfig(1, 10, ranges)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return NewNormalizer(cfg, opts...)
}

func relErr(got, want float64) float64 {
	if want == 0 {
		return math.Abs(got)
	}
	return math.Abs(got-want) / math.Abs(want)
}

func TestNormalizeCloseMidpoint(t *testing.T) {
	n := newTestNormalizer(t, []FeatureRange{{Feature: FeatureClose, Min: 0, Max: 100000}})
	if got := n.Normalize(FeatureClose, 50000); got != 5.5 {
		t.Fatalf("normalize Close 50000: got %v want 5.5", got)
	}
	if got := n.Denormalize(FeatureClose, 5.5); got != 50000.0 {
		t.Fatalf("denormalize Close 5.5: got %v want 50000", got)
	}
}

func TestNormalizeClipsOutOfRange(t *testing.T) {
	n := newTestNormalizer(t, []FeatureRange{{Feature: FeatureRSI, Min: 0, Max: 100}})

	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"above max", 150, 10},
		{"far above max", 1e12, 10},
		{"below min", -5, 1},
		{"at min", 0, 1},
		{"at max", 100, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(FeatureRSI, tt.value); got != tt.want {
				t.Fatalf("normalize RSI %v: got %v want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestDenormalizeDoesNotClip(t *testing.T) {
	n := newTestNormalizer(t, []FeatureRange{{Feature: FeatureClose, Min: 0, Max: 100000}})

	if got := n.Denormalize(FeatureClose, 10.9); relErr(got, 110000) > 1e-9 {
		t.Fatalf("denormalize above norm_max: got %v want 110000", got)
	}
	if got := n.Denormalize(FeatureClose, 0.1); relErr(got, -10000) > 1e-9 {
		t.Fatalf("denormalize below norm_min: got %v want -10000", got)
	}
}

func TestDegenerateRange(t *testing.T) {
	n := newTestNormalizer(t, []FeatureRange{{Feature: "Flat", Min: 7, Max: 7}})
	for _, v := range []float64{-100, 0, 7, 1e9} {
		if got := n.Normalize("Flat", v); got != 1 {
			t.Errorf("normalize degenerate %v: got %v want norm_min", v, got)
		}
		if got := n.Denormalize("Flat", v); got != 7 {
			t.Errorf("denormalize degenerate %v: got %v want min", v, got)
		}
	}
}

func TestMissingRangeIsIdentity(t *testing.T) {
	var calls []string
	n := newTestNormalizer(t, nil, WithMissingRangeHook(func(op, feature string) {
		calls = append(calls, op+":"+feature)
	}))

	if got := n.Normalize("UnknownFeature", 42.0); got != 42.0 {
		t.Fatalf("normalize unknown: got %v want 42", got)
	}
	if got := n.Denormalize("UnknownFeature", 42.0); got != 42.0 {
		t.Fatalf("denormalize unknown: got %v want 42", got)
	}
	if len(calls) != 2 || calls[0] != "normalize:UnknownFeature" || calls[1] != "denormalize:UnknownFeature" {
		t.Fatalf("unexpected diagnostics: %v", calls)
	}
}

func TestRoundTrip(t *testing.T) {
	n := newTestNormalizer(t, defaultRanges())
	for _, r := range defaultRanges() {
		for i := 0; i <= 100; i++ {
			v := r.Min + (r.Max-r.Min)*float64(i)/100
			got := n.Denormalize(r.Feature, n.Normalize(r.Feature, v))
			if v == 0 {
				if math.Abs(got) > 1e-9 {
					t.Fatalf("%s round trip %v: got %v", r.Feature, v, got)
				}
				continue
			}
			if relErr(got, v) > 1e-9 {
				t.Fatalf("%s round trip %v: got %v", r.Feature, v, got)
			}
		}
	}
}

func TestNormalizeAllPreservesKeys(t *testing.T) {
	n := newTestNormalizer(t, defaultRanges())
	in := map[string]float64{FeatureClose: 50000, FeatureRSI: 50, "Extra": 3}
	out := n.NormalizeAll(in)
	if len(out) != len(in) {
		t.Fatalf("expected %d keys, got %d", len(in), len(out))
	}
	if out[FeatureClose] != 5.5 || out[FeatureRSI] != 5.5 || out["Extra"] != 3 {
		t.Fatalf("unexpected output %v", out)
	}
}

func TestNormalizationConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		min, max float64
		ranges   []FeatureRange
	}{
		{"inverted target", 10, 1, nil},
		{"empty target", 5, 5, nil},
		{"inverted range", 1, 10, []FeatureRange{{Feature: "RSI", Min: 100, Max: 0}}},
		{"nan bound", 1, 10, []FeatureRange{{Feature: "RSI", Min: math.NaN(), Max: 1}}},
		{"duplicate", 1, 10, []FeatureRange{{Feature: "RSI", Min: 0, Max: 1}, {Feature: "RSI", Min: 0, Max: 2}}},
		{"empty name", 1, 10, []FeatureRange{{Min: 0, Max: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNormalizationConfig(tt.min, tt.max, tt.ranges)
			if err == nil {
				t.Fatalf("expected error")
			}
			var ce *ConfigError
			if !asConfigError(err, &ce) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
		})
	}

	if _, err := NewNormalizationConfig(1, 10, []FeatureRange{{Feature: "Flat", Min: 3, Max: 3}}); err != nil {
		t.Fatalf("degenerate range must be accepted: %v", err)
	}
}

func asConfigError(err error, target **ConfigError) bool {
	ce, ok := err.(*ConfigError)
	if ok {
		*target = ce
	}
	return ok
}

func TestRangesKeepInputOrder(t *testing.T) {
	in := []FeatureRange{
		{Feature: FeatureClose, Min: 0, Max: 1},
		{Feature: FeatureRSI, Min: 0, Max: 100},
		{Feature: "Alpha", Min: 0, Max: 1},
	}
	cfg, err := NewNormalizationConfig(1, 10, in)
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	got := cfg.Ranges()
	if len(got) != len(in) {
		t.Fatalf("got %d ranges, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("range %d: got %+v want %+v", i, got[i], in[i])
		}
	}

	got[0].Max = 99
	if r, _ := cfg.Range(FeatureClose); r.Max != 1 {
		t.Fatalf("Ranges must return a copy")
	}
	if again := cfg.Ranges(); again[0].Max != 1 {
		t.Fatalf("Ranges must return a copy")
	}
}
