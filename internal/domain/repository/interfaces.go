package repository

import (
	"context"

	"CryptoCast/internal/domain/models"
)

// PredictionRecorder persists served predictions for audit.
type PredictionRecorder interface {
	Record(ctx context.Context, e *models.PredictionEvent) error
	// Recent returns the newest events first; empty symbol means all symbols.
	Recent(ctx context.Context, symbol string, limit int) ([]*models.PredictionEvent, error)
	Close() error
}

// EventPublisher streams served predictions to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, e *models.PredictionEvent) error
	Close() error
}

// Broadcaster fans predictions out to live subscribers. It must not block.
type Broadcaster interface {
	Broadcast(e *models.PredictionEvent)
}

type Metrics interface {
	RecordPrediction(symbol, result string)
	RecordMissingRange(op, feature string)
	RecordError(kind string)
	RecordCacheLookup(hit bool)
	RecordReload(result string, models int)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
