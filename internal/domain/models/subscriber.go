package models

import "github.com/shopspring/decimal"

// FilterMode selects how win-rate and EV thresholds combine.
type FilterMode string

const (
	FilterNone          FilterMode = "NONE"
	FilterWinRate       FilterMode = "WR"
	FilterExpectedValue FilterMode = "EV"
	FilterBoth          FilterMode = "BOTH"
	FilterEither        FilterMode = "EITHER"
)

// DefaultMinExpectedValue keeps the EV threshold inert until a subscriber sets one.
const DefaultMinExpectedValue = -999999

// Preferences are owned by the subscriber directory; the core only reads them.
type Preferences struct {
	EnableBBullish bool `json:"enable_b_bullish"`
	EnableBBearish bool `json:"enable_b_bearish"`
	EnableABullish bool `json:"enable_a_bullish"`
	EnableABearish bool `json:"enable_a_bearish"`

	MinWinRatePct    decimal.Decimal `json:"min_win_rate"`
	MinExpectedValue decimal.Decimal `json:"min_ev"`
	MinSampleSize    int             `json:"min_sample_size"`
	FilterMode       FilterMode      `json:"filter_mode"`
}

// DefaultPreferences enables every combination with no-op thresholds.
func DefaultPreferences() Preferences {
	return Preferences{
		EnableBBullish:   true,
		EnableBBearish:   true,
		EnableABullish:   true,
		EnableABearish:   true,
		MinWinRatePct:    decimal.Zero,
		MinExpectedValue: decimal.NewFromInt(DefaultMinExpectedValue),
		FilterMode:       FilterNone,
	}
}

// Enabled reports the enable flag for one setup/direction combination.
func (p Preferences) Enabled(s SetupClass, d Direction) bool {
	switch {
	case s == SetupPrimary && d == Bullish:
		return p.EnableBBullish
	case s == SetupPrimary && d == Bearish:
		return p.EnableBBearish
	case s == SetupAlternate && d == Bullish:
		return p.EnableABullish
	default:
		return p.EnableABearish
	}
}

// DestinationKind identifies a delivery channel.
type DestinationKind string

const (
	DestinationMobilePush DestinationKind = "mobile_push"
	DestinationWebPush    DestinationKind = "web_push"
)

// WebPushSubscription is the browser-issued subscription descriptor.
type WebPushSubscription struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Destination is one addressable endpoint of a subscriber.
type Destination struct {
	Kind    DestinationKind
	Token   string
	WebPush *WebPushSubscription
}

// Subscriber is the read-only projection the dispatcher works with.
type Subscriber struct {
	ID          int64
	Email       string
	Active      bool
	Preferences Preferences
	MobileToken string
	WebPush     *WebPushSubscription
}

// Destinations lists the registered destinations, mobile first.
// Address is the token or endpoint the destination was registered with.
func (d Destination) Address() string {
	if d.WebPush != nil {
		return d.WebPush.Endpoint
	}
	return d.Token
}

func (s *Subscriber) Destinations() []Destination {
	var out []Destination
	if s.MobileToken != "" {
		out = append(out, Destination{Kind: DestinationMobilePush, Token: s.MobileToken})
	}
	if s.WebPush != nil && s.WebPush.Endpoint != "" {
		out = append(out, Destination{Kind: DestinationWebPush, WebPush: s.WebPush})
	}
	return out
}
