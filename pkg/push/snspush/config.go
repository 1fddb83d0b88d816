package snspush

// Option configures Client.
type Option func(*Config)

// Config holds SNS mobile push configuration.
type Config struct {
	Region                 string
	PlatformApplicationARN string
	Endpoint               string
	APNSSandbox            bool
}

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(c *Config) {
		c.Region = region
	}
}

// WithPlatformApplication sets the SNS platform application ARN devices register against.
func WithPlatformApplication(arn string) Option {
	return func(c *Config) {
		c.PlatformApplicationARN = arn
	}
}

// WithEndpoint overrides the SNS endpoint (localstack and similar).
func WithEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.Endpoint = endpoint
	}
}

// WithAPNSSandbox publishes APNS payloads under the sandbox key.
func WithAPNSSandbox(enabled bool) Option {
	return func(c *Config) {
		c.APNSSandbox = enabled
	}
}
