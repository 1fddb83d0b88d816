package models

import "time"

// AlertStatus is the terminal state recorded for every inbound alert.
type AlertStatus string

const (
	AlertDispatched     AlertStatus = "dispatched"
	AlertRejected       AlertStatus = "rejected"
	AlertDuplicate      AlertStatus = "duplicate"
	AlertDirectoryError AlertStatus = "directory_error"
)

// AlertRecord is one row of alert history.
type AlertRecord struct {
	ID         string
	Status     AlertStatus
	Reason     string
	Alert      *Alert // nil when rejected
	Notified   int
	Skipped    int
	Total      int
	RawPayload string
	ReceivedAt time.Time
}

// AlertEvent is published once a dispatch run finishes.
type AlertEvent struct {
	ID         string          `json:"id"`
	Status     AlertStatus     `json:"status"`
	Alert      *Alert          `json:"alert,omitempty"`
	Summary    *DispatchResult `json:"summary,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}
