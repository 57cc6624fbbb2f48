package models

import (
	"context"
	"math"
	"strings"
	"testing"

	"CryptoCast/internal/services/forecast"
)

const ensembleJSON = `{
  "type": "xgboost",
  "base_score": 5,
  "trees": [
    {"nodeid": 0, "split": "Close", "split_condition": 5.5, "yes": 1, "no": 2, "missing": 1,
     "children": [{"nodeid": 1, "leaf": 0.5}, {"nodeid": 2, "leaf": 1.5}]},
    {"nodeid": 0, "split": "f11", "split_condition": 7, "yes": 1, "no": 2, "missing": 2,
     "children": [{"nodeid": 1, "leaf": -0.25}, {"nodeid": 2, "leaf": 0.25}]}
  ]
}`

func canonicalInput(overrides map[int]float64) []float64 {
	x := make([]float64, len(forecast.CanonicalFeatures()))
	for i := range x {
		x[i] = 5.5
	}
	for i, v := range overrides {
		x[i] = v
	}
	return x
}

func TestDecodeEnsemble(t *testing.T) {
	m, err := Decode([]byte(ensembleJSON), forecast.CanonicalFeatures())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	tests := []struct {
		name string
		x    []float64
		want float64
	}{
		{"left left", canonicalInput(map[int]float64{3: 5, 11: 1}), 5 + 0.5 - 0.25},
		{"right right", canonicalInput(map[int]float64{3: 6, 11: 8}), 5 + 1.5 + 0.25},
		{"threshold goes right", canonicalInput(map[int]float64{3: 5.5, 11: 7}), 5 + 1.5 + 0.25},
		{"missing follows missing branch", canonicalInput(map[int]float64{3: math.NaN(), 11: math.NaN()}), 5 + 0.5 + 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Infer(context.Background(), tt.x)
			if err != nil {
				t.Fatalf("infer: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}

	if _, err := m.Infer(context.Background(), []float64{1, 2}); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestDecodeEnsembleWithOwnFeatureOrder(t *testing.T) {
	doc := `{"type":"xgboost","features":["Close","RSI"],"base_score":0,"trees":[
	  {"nodeid":0,"split":"f1","split_condition":50,"yes":1,"no":2,"missing":1,
	   "children":[{"nodeid":1,"leaf":-1},{"nodeid":2,"leaf":1}]}]}`
	m, err := Decode([]byte(doc), forecast.CanonicalFeatures())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, _ := m.Infer(context.Background(), canonicalInput(map[int]float64{11: 60}))
	if got != 1 {
		t.Fatalf("f1 should resolve to RSI, got %v", got)
	}
}

func TestDecodeLinear(t *testing.T) {
	doc := `{"type":"linear","features":["RSI","Close"],"weights":[0.5,2],"intercept":1}`
	m, err := Decode([]byte(doc), forecast.CanonicalFeatures())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	x := make([]float64, 14)
	x[3] = 3
	x[11] = 4
	got, err := m.Infer(context.Background(), x)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if got != 1+0.5*4+2*3 {
		t.Fatalf("got %v", got)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name, doc, want string
	}{
		{"bad json", `{`, "decode artifact"},
		{"unknown type", `{"type":"svm"}`, "unsupported"},
		{"no trees", `{"type":"xgboost"}`, "no trees"},
		{"unknown feature", `{"type":"linear","features":["Volume"],"weights":[1]}`, "Volume"},
		{"weight count", `{"type":"linear","weights":[1,2]}`, "2 weights"},
		{"dangling child", `{"trees":[{"nodeid":0,"split":"f0","yes":1,"no":2,"missing":1,"children":[{"nodeid":1,"leaf":0}]}]}`, "missing child"},
		{"bad split", `{"trees":[{"nodeid":0,"split":"f99","yes":1,"no":1,"missing":1,"children":[{"nodeid":1,"leaf":0}]}]}`, "f99"},
		{"cycle", `{"trees":[{"nodeid":0,"split":"f0","yes":0,"no":0,"missing":0}]}`, "cycle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc), forecast.CanonicalFeatures())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
