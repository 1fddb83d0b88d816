package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueueService is the producer side of a queue.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

type QueueConfig struct {
	Workers    int
	RetryLimit int           // retries after the first attempt; 0 dead-letters on first failure
	RetryDelay time.Duration // doubled per attempt
	JobTimeout time.Duration
}

// Message is the envelope stored in Redis. Payload is kept encoded so the job
// decides its shape.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"ts"`
}

func newMessage(id, msgType string, payload interface{}, now time.Time) (Message, error) {
	msg := Message{ID: id, Type: msgType, Timestamp: now}
	if payload == nil {
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	msg.Payload = b
	return msg, nil
}

// ParsePayload decodes what a Job receives into T. Values already of type T are
// returned as is.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var raw []byte
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	case nil:
		return nil, fmt.Errorf("empty payload")
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("re-encode %T payload: %w", payload, err)
		}
		raw = b
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload into %T: %w", out, err)
	}
	return &out, nil
}
