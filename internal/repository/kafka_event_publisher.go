package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"CryptoCast/internal/domain/models"
	domrepo "CryptoCast/internal/domain/repository"
)

// keyedProducer is the subset of pkg/kafka.Producer the publisher needs.
type keyedProducer interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

// KafkaEventPublisher streams prediction events keyed by symbol so that each
// symbol's events stay ordered within a partition.
type KafkaEventPublisher struct {
	producer keyedProducer
}

func NewKafkaEventPublisher(producer keyedProducer) domrepo.EventPublisher {
	return &KafkaEventPublisher{producer: producer}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, e *models.PredictionEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode prediction event: %w", err)
	}
	return p.producer.Publish(ctx, []byte(e.Symbol), value)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
