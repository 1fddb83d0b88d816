package service

import (
	"context"

	"SignalRelay/internal/domain/models"
)

// Channel delivers one alert to one destination of its kind.
// Failures are returned as *models.SendError.
type Channel interface {
	Kind() models.DestinationKind
	Send(ctx context.Context, dest models.Destination, alert *models.Alert) (models.Delivery, error)
}

// Invalidator requests that a destination be cleared without blocking the caller.
// address is the token or endpoint that failed.
type Invalidator interface {
	Invalidate(ctx context.Context, subscriberID int64, kind models.DestinationKind, address string)
}
