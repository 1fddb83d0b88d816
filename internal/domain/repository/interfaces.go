package repository

import (
	"context"
	"time"

	"SignalRelay/internal/domain/models"
)

// SubscriberDirectory is the external store of subscribers and their destinations.
type SubscriberDirectory interface {
	ListActiveSubscribers(ctx context.Context) ([]models.Subscriber, error)
	// InvalidateDestination clears one destination if it still holds address. Clearing an
	// absent or re-registered destination is not an error.
	InvalidateDestination(ctx context.Context, subscriberID int64, kind models.DestinationKind, address string) error
	Health(ctx context.Context) error
}

type AlertHistory interface {
	Record(ctx context.Context, rec *models.AlertRecord) error
	Health(ctx context.Context) error
}

type EventPublisher interface {
	PublishAlertEvent(ctx context.Context, ev *models.AlertEvent) error
	Close() error
}

// Deduplicator reports whether a payload key was already seen inside the window.
// Forget releases a key claimed by Seen so a retried delivery is not dropped.
type Deduplicator interface {
	Seen(ctx context.Context, key string, window time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Metrics takes plain label values so recorders stay free of domain types.
type Metrics interface {
	RecordAlert(result string)
	RecordSubscriber(status string)
	RecordSend(kind, result string, seconds float64)
	RecordInvalidation(kind, result string)
	RecordFilterAnomaly()
	RecordDispatch(seconds float64, partial bool)
	RecordError(kind string)
}
