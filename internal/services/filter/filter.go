// Package filter decides whether a subscriber should hear about an alert.
package filter

import (
	"fmt"

	"SignalRelay/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Evaluate is pure and total: every (alert, preferences) pair yields a decision.
//
// Checks run in order and stop at the first suppression:
// the setup/direction enable flag, the sample-size floor, then the filter mode.
func Evaluate(alert *models.Alert, prefs models.Preferences) models.Decision {
	if !prefs.Enabled(alert.SetupClass, alert.Direction) {
		return suppress(alert.Glyph() + " signals disabled")
	}

	if alert.SampleSize != nil && *alert.SampleSize < prefs.MinSampleSize {
		return suppress(fmt.Sprintf("Sample size %d < minimum %d", *alert.SampleSize, prefs.MinSampleSize))
	}

	mode := prefs.FilterMode
	if mode == "" {
		mode = models.FilterNone
	}
	policy, ok := modePolicies[mode]
	if !ok {
		return unknownMode(mode)
	}

	wr := threshold(alert.WinRatePct, prefs.MinWinRatePct, "%")
	ev := threshold(alert.ExpectedValue, prefs.MinExpectedValue, "")
	return policy(wr, ev)
}

func threshold(value decimal.NullDecimal, min decimal.Decimal, unit string) check {
	if !value.Valid || value.Decimal.GreaterThanOrEqual(min) {
		return check{pass: true}
	}
	return check{
		detail: fmt.Sprintf("%s%s < minimum %s%s", value.Decimal.String(), unit, min.String(), unit),
	}
}
