package webpush

import (
	"time"

	wp "github.com/SherClockHolmes/webpush-go"
)

// Option configures Client.
type Option func(*Config)

// Config holds VAPID credentials and delivery options.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string // mailto: or https: contact
	TTL             int
	Urgency         string
	Timeout         time.Duration
	HTTPClient      wp.HTTPClient
}

// WithVAPIDKeys sets the application server key pair.
func WithVAPIDKeys(public, private string) Option {
	return func(c *Config) {
		c.VAPIDPublicKey = public
		c.VAPIDPrivateKey = private
	}
}

// WithSubscriber sets the VAPID contact.
func WithSubscriber(sub string) Option {
	return func(c *Config) {
		c.Subscriber = sub
	}
}

// WithTTL sets how long the push service may hold the message, in seconds.
func WithTTL(seconds int) Option {
	return func(c *Config) {
		c.TTL = seconds
	}
}

// WithUrgency sets the Urgency header (very-low, low, normal, high).
func WithUrgency(u string) Option {
	return func(c *Config) {
		if u != "" {
			c.Urgency = u
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithHTTPClient replaces the transport.
func WithHTTPClient(h wp.HTTPClient) Option {
	return func(c *Config) {
		c.HTTPClient = h
	}
}
