package decoder

import (
	"fmt"
	"strings"

	"SignalRelay/internal/domain/models"
)

// Permissive defaults for decoding live here so they can be reviewed in one place.

const unknownLabel = "Unknown"

var sessionLabels = map[int]string{
	1: "Asia",
	2: "London",
	3: "New York AM",
	4: "New York Lunch",
	5: "New York PM",
}

var volatilityModeLabels = map[int]string{
	1: "Trend",
	2: "Mean Reversion",
	3: "Breakout",
}

// structuredDefaults is applied when a structured field is missing or unparsable.
// Prices and statistics stay absent; code fields fall back to 0, which resolves to "Unknown".
var structuredDefaults = struct {
	sessionCode        int
	volatilityModeCode int
}{0, 0}

// SessionLabel resolves a session code.
func SessionLabel(code int) string {
	if l, ok := sessionLabels[code]; ok {
		return l
	}
	return unknownLabel
}

// VolatilityModeLabel resolves a volatility mode code.
func VolatilityModeLabel(code int) string {
	if l, ok := volatilityModeLabels[code]; ok {
		return l
	}
	return unknownLabel
}

// TimeframeDisplay renders seconds in the largest whole unit not exceeding the value.
func TimeframeDisplay(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%dH", seconds/3600)
	default:
		return fmt.Sprintf("%dD", seconds/86400)
	}
}

// parseSignalCode splits codes like "A_LONG" or "b_short".
func parseSignalCode(code string) (models.SetupClass, models.Direction) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(code)), "_")
	setup := models.SetupPrimary
	if parts[0] == "A" {
		setup = models.SetupAlternate
	}
	dir := models.Bearish
	if parts[len(parts)-1] == "LONG" {
		dir = models.Bullish
	}
	return setup, dir
}
