package decoder

import (
	"bytes"
	"encoding/json"
	"strings"

	"SignalRelay/internal/domain/models"
	"SignalRelay/pkg/util"

	"github.com/shopspring/decimal"
)

// structured handles JSON objects carrying "signal" and "action" codes.
type structured struct{}

func (structured) format() models.AlertFormat { return models.FormatStructured }

func (structured) decode(body []byte) (*models.Alert, bool) {
	if body[0] != '{' {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, false
	}

	signal, ok := m["signal"].(string)
	if !ok || strings.TrimSpace(signal) == "" {
		return nil, false
	}
	if _, ok := m["action"]; !ok {
		return nil, false
	}

	setup, dir := parseSignalCode(signal)
	a := &models.Alert{
		SetupClass: setup,
		Direction:  dir,
		Action:     strings.ToUpper(stringField(m, "action")),
	}

	a.EntryPrice = decimalField(m, "entry")
	if !a.EntryPrice.Valid {
		a.EntryPrice = decimalField(m, "price")
	}
	a.Target = decimalField(m, "target")
	a.PartialTarget = decimalField(m, "tp1")
	a.StopLoss = decimalField(m, "stop")
	a.ExitPrice = decimalField(m, "exit")
	a.WinRatePct = decimalField(m, "wr")
	a.ExpectedValue = decimalField(m, "ev")
	a.RiskReward = decimalField(m, "rr")
	a.SampleSize = intField(m, "n")

	session := structuredDefaults.sessionCode
	if v := intField(m, "session"); v != nil {
		session = *v
	}
	a.SessionLabel = SessionLabel(session)

	mode := structuredDefaults.volatilityModeCode
	if v := intField(m, "em"); v != nil {
		mode = *v
	}
	a.VolatilityModeLabel = VolatilityModeLabel(mode)

	if tf := intField(m, "tf"); tf != nil {
		a.TimeframeSeconds = tf
		a.TimeframeDisplay = TimeframeDisplay(*tf)
	}
	if t, ok := util.ParseTime(stringField(m, "time")); ok {
		t = t.UTC()
		a.SignalTime = &t
	}
	return a, true
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// decimalField accepts JSON numbers and numeric strings; anything else is absent.
func decimalField(m map[string]any, key string) decimal.NullDecimal {
	var raw string
	switch v := m[key].(type) {
	case json.Number:
		raw = v.String()
	case string:
		raw = strings.TrimSuffix(strings.TrimSpace(v), "%")
	default:
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// intField returns nil for missing, unparsable, fractional or negative values.
// A nil sample size ("n") counts as absent, so minimum-sample filters pass it.
func intField(m map[string]any, key string) *int {
	d := decimalField(m, key)
	if !d.Valid || d.Decimal.IsNegative() || !d.Decimal.Equal(d.Decimal.Truncate(0)) {
		return nil
	}
	n := int(d.Decimal.IntPart())
	return &n
}
