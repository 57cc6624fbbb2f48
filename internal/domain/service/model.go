package service

import "context"

// Regressor is a loaded price model. Infer receives the features in canonical order
// and returns the model's normalized next-period Close.
type Regressor interface {
	Infer(ctx context.Context, features []float64) (float64, error)
}

// ModelRegistry resolves a regressor for a symbol.
type ModelRegistry interface {
	Load(symbol string) (Regressor, error)
	Available() []string
}
