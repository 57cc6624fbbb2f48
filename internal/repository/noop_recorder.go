package repository

import (
	"context"

	"CryptoCast/internal/domain/models"
	domrepo "CryptoCast/internal/domain/repository"
)

// NoopRecorder drops events. It is used when no audit backend is configured.
type NoopRecorder struct{}

func NewNoopRecorder() domrepo.PredictionRecorder { return NoopRecorder{} }

func (NoopRecorder) Record(context.Context, *models.PredictionEvent) error { return nil }

func (NoopRecorder) Recent(context.Context, string, int) ([]*models.PredictionEvent, error) {
	return []*models.PredictionEvent{}, nil
}

func (NoopRecorder) Close() error { return nil }
