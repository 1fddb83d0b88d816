package models

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a failed channel send.
type FailureKind string

const (
	// FailureInvalidDestination means the destination is permanently unusable.
	FailureInvalidDestination FailureKind = "invalid_destination"
	FailureTransient          FailureKind = "transient"
	FailureUnknown            FailureKind = "unknown"
)

// SendError is returned by channel adapters.
type SendError struct {
	Kind FailureKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// NewSendError wraps err with a failure classification.
func NewSendError(kind FailureKind, err error) *SendError {
	return &SendError{Kind: kind, Err: err}
}

// FailureKindOf extracts the classification of err, defaulting to unknown.
func FailureKindOf(err error) FailureKind {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	return FailureUnknown
}

// Decision is the FilterEngine verdict for one subscriber.
type Decision struct {
	Notify  bool   `json:"notify"`
	Reason  string `json:"reason"`
	Anomaly bool   `json:"anomaly,omitempty"`
}

// Notification is the provider-agnostic rendering of an Alert.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// Delivery is a successful send.
type Delivery struct {
	Kind      DestinationKind
	MessageID string
}

// SubscriberStatus is the per-subscriber result of a dispatch run.
type SubscriberStatus string

const (
	StatusNotified      SubscriberStatus = "notified"
	StatusFiltered      SubscriberStatus = "filtered"
	StatusNoDestination SubscriberStatus = "no_destination"
	StatusFailed        SubscriberStatus = "failed"
	StatusUnprocessed   SubscriberStatus = "unprocessed"
)

type ChannelAttempt struct {
	Kind        DestinationKind `json:"kind"`
	Delivered   bool            `json:"delivered"`
	MessageID   string          `json:"message_id,omitempty"`
	FailureKind FailureKind     `json:"failure_kind,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

type SubscriberOutcome struct {
	SubscriberID int64            `json:"subscriber_id"`
	Status       SubscriberStatus `json:"status"`
	Reason       string           `json:"reason,omitempty"`
	Attempts     []ChannelAttempt `json:"attempts,omitempty"`
}

// DispatchResult summarizes one run. Notified+Skipped always equals Total;
// Unprocessed is the subset of Skipped cut off by the run deadline.
type DispatchResult struct {
	AlertID       string              `json:"alert_id,omitempty"`
	Total         int                 `json:"total"`
	Notified      int                 `json:"notified"`
	Skipped       int                 `json:"skipped"`
	Unprocessed   int                 `json:"unprocessed"`
	Invalidations int                 `json:"invalidations"`
	Partial       bool                `json:"partial"`
	DurationMs    int64               `json:"duration_ms"`
	Subscribers   []SubscriberOutcome `json:"subscribers,omitempty"`
}

// Add folds one subscriber outcome into the counters.
func (r *DispatchResult) Add(o SubscriberOutcome) {
	r.Subscribers = append(r.Subscribers, o)
	for _, a := range o.Attempts {
		if a.FailureKind == FailureInvalidDestination {
			r.Invalidations++
		}
	}
	switch o.Status {
	case StatusNotified:
		r.Notified++
	case StatusUnprocessed:
		r.Unprocessed++
		r.Skipped++
	default:
		r.Skipped++
	}
}

// SetDuration stores the run duration.
func (r *DispatchResult) SetDuration(d time.Duration) {
	r.DurationMs = d.Milliseconds()
}
