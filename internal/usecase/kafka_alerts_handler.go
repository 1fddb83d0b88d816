package usecase

import (
	"context"
	"errors"

	pkgkafka "SignalRelay/pkg/kafka"
)

// KafkaAlertsHandler feeds alert payloads from a Kafka topic into the same pipeline as the webhook.
// Message values are the raw webhook bodies.
type KafkaAlertsHandler struct {
	topic  string
	ingest *Ingest
}

func NewKafkaAlertsHandler(topic string, ingest *Ingest) *KafkaAlertsHandler {
	return &KafkaAlertsHandler{topic: topic, ingest: ingest}
}

func (h *KafkaAlertsHandler) Topic() string { return h.topic }

// Handle only returns an error when the directory is down, so the consumer retries and
// eventually dead-letters the message. Rejected payloads are committed.
func (h *KafkaAlertsHandler) Handle(ctx context.Context, b []byte) error {
	_, err := h.ingest.Handle(ctx, b)
	if err != nil && errors.Is(err, ErrDirectoryUnavailable) {
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaAlertsHandler)(nil)
