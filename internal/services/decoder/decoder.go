// Package decoder turns inbound webhook payloads into normalized alerts.
//
// Strategies are tried in a fixed order and each one reports an explicit
// match or no-match. The first strategy that determines both the setup class
// and the direction wins; everything else about a payload is optional.
package decoder

import (
	"bytes"
	"time"

	"SignalRelay/internal/domain/models"
)

// RejectReason is reported when no strategy matched.
const RejectReason = "no setup class and direction found in payload"

// Result is either a decoded Alert or a rejection.
type Result struct {
	Alert    *models.Alert
	Rejected bool
	Reason   string
}

type strategy interface {
	format() models.AlertFormat
	decode(body []byte) (*models.Alert, bool)
}

// Decoder is safe for concurrent use.
type Decoder struct {
	strategies []strategy
	now        func() time.Time
}

type Option func(*Decoder)

// WithClock overrides the time source used for ReceivedAt.
func WithClock(now func() time.Time) Option {
	return func(d *Decoder) { d.now = now }
}

func New(opts ...Option) *Decoder {
	d := &Decoder{
		strategies: []strategy{structured{}, freeText{}},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode never fails; unusable payloads come back as a rejected Result.
func (d *Decoder) Decode(payload []byte) Result {
	body := bytes.TrimSpace(payload)
	if len(body) == 0 {
		return Result{Rejected: true, Reason: "empty payload"}
	}

	for _, s := range d.strategies {
		alert, ok := s.decode(body)
		if !ok {
			continue
		}
		alert.Format = s.format()
		alert.ReceivedAt = d.now().UTC()
		alert.RawPayload = string(payload)
		return Result{Alert: alert}
	}
	return Result{Rejected: true, Reason: RejectReason}
}
