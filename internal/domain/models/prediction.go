package models

import "time"

// PredictionEvent is the record of one served prediction, emitted to the audit
// store, the event stream and live subscribers.
type PredictionEvent struct {
	ID                   string             `json:"id"`
	Symbol               string             `json:"symbol"`
	PredictedPrice       float64            `json:"predicted_price"`
	NormalizedPrediction float64            `json:"normalized_prediction"`
	Policy               string             `json:"completion_policy"`
	ModelGeneration      uint64             `json:"model_generation"`
	RawFeatures          map[string]float64 `json:"raw_features"`
	NormalizedFeatures   map[string]float64 `json:"normalized_features"`
	Cached               bool               `json:"cached"`
	LatencyMs            int64              `json:"latency_ms"`
	Timestamp            time.Time          `json:"timestamp"`
}
