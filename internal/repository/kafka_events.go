package repository

import (
	"context"

	"SignalRelay/internal/domain/models"
	domrepo "SignalRelay/internal/domain/repository"
)

// producer is satisfied by *kafka.Producer.
type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaEvents publishes one AlertEvent per dispatched alert, keyed by alert id.
type KafkaEvents struct {
	producer producer
	topic    string
}

func NewKafkaEvents(p producer, topic string) *KafkaEvents {
	return &KafkaEvents{producer: p, topic: topic}
}

func (k *KafkaEvents) PublishAlertEvent(ctx context.Context, ev *models.AlertEvent) error {
	return k.producer.Publish(ctx, k.topic, []byte(ev.ID), ev)
}

// Close is a no-op; the shared producer is closed by its owner.
func (k *KafkaEvents) Close() error {
	return nil
}

var _ domrepo.EventPublisher = (*KafkaEvents)(nil)
