// Package channels adapts push providers to the dispatcher's Channel contract.
// Rendering is shared; each adapter only owns transport and error classification.
package channels

import (
	"strconv"
	"strings"
	"time"

	"SignalRelay/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Format renders the title, body and string data map for an alert.
func Format(a *models.Alert) models.Notification {
	title := a.Direction.Icon() + " " + a.Glyph() + " Signal"

	var parts []string
	if a.EntryPrice.Valid {
		parts = append(parts, "Entry: "+a.EntryPrice.Decimal.String())
	}
	if a.PartialTarget.Valid {
		parts = append(parts, "TP1: "+a.PartialTarget.Decimal.String())
	}
	if a.StopLoss.Valid {
		parts = append(parts, "SL: "+a.StopLoss.Decimal.String())
	}

	sampleSize := ""
	if a.SampleSize != nil {
		sampleSize = strconv.Itoa(*a.SampleSize)
	}
	ts := a.ReceivedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return models.Notification{
		Title: title,
		Body:  strings.Join(parts, " | "),
		Data: map[string]string{
			"signalType":     string(a.SetupClass),
			"direction":      string(a.Direction),
			"action":         a.Action,
			"price":          str(a.EntryPrice),
			"target":         str(a.Target),
			"tp1":            str(a.PartialTarget),
			"stop":           str(a.StopLoss),
			"exit":           str(a.ExitPrice),
			"winRate":        str(a.WinRatePct),
			"ev":             str(a.ExpectedValue),
			"rr":             str(a.RiskReward),
			"sampleSize":     sampleSize,
			"session":        a.SessionLabel,
			"volatilityMode": a.VolatilityModeLabel,
			"timeframe":      a.TimeframeDisplay,
			"timestamp":      ts.Format(time.RFC3339),
		},
	}
}

func str(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
