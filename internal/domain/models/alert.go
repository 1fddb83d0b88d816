package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SetupClass is the coarse category of a trading signal.
type SetupClass string

const (
	SetupPrimary   SetupClass = "B"
	SetupAlternate SetupClass = "A"
)

// Direction is the long/short bias of a signal.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// Arrow returns the glyph arrow used in titles and filter reasons.
func (d Direction) Arrow() string {
	if d == Bullish {
		return "↑"
	}
	return "↓"
}

// Icon returns the colored marker shown in notification titles.
func (d Direction) Icon() string {
	if d == Bullish {
		return "🟢"
	}
	return "🔴"
}

// AlertFormat records which decoding strategy produced an Alert.
type AlertFormat string

const (
	FormatStructured AlertFormat = "structured"
	FormatFreeText   AlertFormat = "free_text"
)

// Alert is the normalized form of one inbound signal event.
// It is only constructed once both SetupClass and Direction are known.
type Alert struct {
	SetupClass SetupClass `json:"setup_class"`
	Direction  Direction  `json:"direction"`
	Action     string     `json:"action,omitempty"`

	EntryPrice    decimal.NullDecimal `json:"entry_price"`
	Target        decimal.NullDecimal `json:"target"`
	PartialTarget decimal.NullDecimal `json:"partial_target"`
	StopLoss      decimal.NullDecimal `json:"stop_loss"`
	ExitPrice     decimal.NullDecimal `json:"exit_price"`

	WinRatePct    decimal.NullDecimal `json:"win_rate_pct"`
	ExpectedValue decimal.NullDecimal `json:"expected_value"`
	RiskReward    decimal.NullDecimal `json:"risk_reward"`
	SampleSize    *int                `json:"sample_size,omitempty"`

	SessionLabel        string `json:"session,omitempty"`
	VolatilityModeLabel string `json:"volatility_mode,omitempty"`
	TimeframeSeconds    *int   `json:"timeframe_seconds,omitempty"`
	TimeframeDisplay    string `json:"timeframe,omitempty"`
	// SignalTime is the sender's bar or alert time when the payload carries one.
	SignalTime *time.Time `json:"signal_time,omitempty"`

	Format     AlertFormat `json:"format"`
	ReceivedAt time.Time   `json:"received_at"`
	RawPayload string      `json:"-"`
}

// Glyph renders the setup/direction pair, e.g. "B↑".
func (a *Alert) Glyph() string {
	return Glyph(a.SetupClass, a.Direction)
}

// Glyph renders a setup/direction pair without an Alert.
func Glyph(s SetupClass, d Direction) string {
	return string(s) + d.Arrow()
}
