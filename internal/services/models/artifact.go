package models

import (
	"encoding/json"
	"fmt"
	"strings"

	domsvc "CryptoCast/internal/domain/service"
)

const (
	TypeLinear  = "linear"
	TypeXGBoost = "xgboost"
)

type artifact struct {
	Type      string      `json:"type"`
	Features  []string    `json:"features"`
	Weights   []float64   `json:"weights"`
	Intercept float64     `json:"intercept"`
	BaseScore float64     `json:"base_score"`
	Trees     []*treeNode `json:"trees"`
}

// Decode parses an artifact and binds it to the given feature order. Artifacts that
// name their features may list them in any order; unnamed ones must match len(features).
func Decode(data []byte, features []string) (domsvc.Regressor, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}

	switch strings.ToLower(a.Type) {
	case TypeLinear:
		return newLinear(a, features)
	case TypeXGBoost, "":
		if len(a.Trees) == 0 {
			return nil, fmt.Errorf("artifact has no trees")
		}
		return newEnsemble(a, features)
	default:
		return nil, fmt.Errorf("unsupported model type %q", a.Type)
	}
}

// featureIndex maps a model's own feature names onto positions in the input vector.
func featureIndex(modelFeatures, inputFeatures []string) ([]int, error) {
	pos := make(map[string]int, len(inputFeatures))
	for i, f := range inputFeatures {
		pos[f] = i
	}
	out := make([]int, len(modelFeatures))
	for i, f := range modelFeatures {
		p, ok := pos[f]
		if !ok {
			return nil, fmt.Errorf("model feature %q is not in the input schema", f)
		}
		out[i] = p
	}
	return out, nil
}
