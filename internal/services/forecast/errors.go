package forecast

import (
	"errors"
	"fmt"
)

var (
	ErrConfig           = errors.New("forecast: invalid normalization config")
	ErrUnknownSymbol    = errors.New("forecast: unknown symbol")
	ErrUnknownFeature   = errors.New("forecast: unknown feature")
	ErrPredictionFailed = errors.New("forecast: prediction failed")
)

// ConfigError reports a malformed range table. It is only produced at construction time.
type ConfigError struct {
	Feature string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Feature != "" {
		return fmt.Sprintf("%v: %s: %s", ErrConfig, e.Feature, e.Reason)
	}
	return fmt.Sprintf("%v: %s", ErrConfig, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// UnknownSymbolError is returned when no model is registered for a symbol.
type UnknownSymbolError struct {
	Symbol    string
	Available []string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("no model found for %s, available: %v", e.Symbol, e.Available)
}

func (e *UnknownSymbolError) Is(target error) bool { return target == ErrUnknownSymbol }

// UnknownFeatureError is returned when a caller supplies a key outside the canonical schema.
type UnknownFeatureError struct {
	Feature string
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("unknown feature %q", e.Feature)
}

func (e *UnknownFeatureError) Is(target error) bool { return target == ErrUnknownFeature }

// PredictionFailedError wraps an inference failure with the symbol it happened for.
type PredictionFailedError struct {
	Symbol string
	Cause  error
}

func (e *PredictionFailedError) Error() string {
	return fmt.Sprintf("prediction failed for %s: %v", e.Symbol, e.Cause)
}

func (e *PredictionFailedError) Unwrap() error { return e.Cause }

func (e *PredictionFailedError) Is(target error) bool { return target == ErrPredictionFailed }
