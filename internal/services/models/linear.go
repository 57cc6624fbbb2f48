package models

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Linear is y = intercept + w·x.
type Linear struct {
	weights   []float64
	intercept float64
}

func newLinear(a artifact, features []string) (*Linear, error) {
	if len(a.Weights) == 0 {
		return nil, fmt.Errorf("linear artifact has no weights")
	}

	weights := make([]float64, len(features))
	if len(a.Features) == 0 {
		if len(a.Weights) != len(features) {
			return nil, fmt.Errorf("linear artifact has %d weights, schema has %d features", len(a.Weights), len(features))
		}
		copy(weights, a.Weights)
		return &Linear{weights: weights, intercept: a.Intercept}, nil
	}

	if len(a.Features) != len(a.Weights) {
		return nil, fmt.Errorf("linear artifact lists %d features but %d weights", len(a.Features), len(a.Weights))
	}
	idx, err := featureIndex(a.Features, features)
	if err != nil {
		return nil, err
	}
	for i, p := range idx {
		weights[p] += a.Weights[i]
	}
	return &Linear{weights: weights, intercept: a.Intercept}, nil
}

func (m *Linear) Infer(_ context.Context, features []float64) (float64, error) {
	if len(features) != len(m.weights) {
		return 0, fmt.Errorf("linear model expects %d features, got %d", len(m.weights), len(features))
	}
	return m.intercept + floats.Dot(m.weights, features), nil
}
