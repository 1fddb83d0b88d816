// Package webpush sends encrypted Web Push messages signed with VAPID keys.
package webpush

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	wp "github.com/SherClockHolmes/webpush-go"
)

// Subscription is the browser-issued push subscription.
type Subscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// StatusError is returned when the push service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push service responded %d: %s", e.StatusCode, e.Body)
}

// Client is safe for concurrent use.
type Client struct {
	cfg *Config
}

// New validates the VAPID configuration and returns a client.
func New(opts ...Option) (*Client, error) {
	cfg := &Config{
		TTL:     60,
		Urgency: string(wp.UrgencyHigh),
		Timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return nil, fmt.Errorf("vapid key pair is required")
	}
	if cfg.Subscriber == "" {
		return nil, fmt.Errorf("vapid subscriber is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg}, nil
}

// Send encrypts payload for sub and posts it to the subscription endpoint.
func (c *Client) Send(ctx context.Context, sub Subscription, payload []byte) error {
	resp, err := wp.SendNotificationWithContext(ctx, payload, &wp.Subscription{
		Endpoint: sub.Endpoint,
		Keys: wp.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &wp.Options{
		HTTPClient:      c.cfg.HTTPClient,
		Subscriber:      c.cfg.Subscriber,
		VAPIDPublicKey:  c.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: c.cfg.VAPIDPrivateKey,
		TTL:             c.cfg.TTL,
		Urgency:         wp.Urgency(c.cfg.Urgency),
	})
	if err != nil {
		return fmt.Errorf("webpush send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
