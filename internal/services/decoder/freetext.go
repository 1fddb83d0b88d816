package decoder

import (
	"encoding/json"
	"regexp"
	"strconv"

	"SignalRelay/internal/domain/models"

	"github.com/shopspring/decimal"
)

// freeText handles annotated messages such as
// "B↑ ENTRY | Price: 21500 | TP: 21560 | SL: 21475 | WR: 62% | EV: 3.2 | n=15".
// Every field is an independent search, so order and filler text do not matter.
type freeText struct{}

var (
	glyphRe  = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])([AB])(?:(↑|↓)|\s(Bull|Bear)(?:ish)?)`)
	actionRe = regexp.MustCompile(`^\s*([A-Z][A-Z_]+)\b`)

	priceRe  = regexp.MustCompile(`(?i)\bPrice:\s*(\d+(?:\.\d+)?)`)
	targetRe = regexp.MustCompile(`(?i)\b(?:TP|Target):\s*(\d+(?:\.\d+)?)`)
	tp1Re    = regexp.MustCompile(`(?i)\bTP1:\s*(\d+(?:\.\d+)?)`)
	stopRe   = regexp.MustCompile(`(?i)\b(?:SL|Stop):\s*(\d+(?:\.\d+)?)`)
	exitRe   = regexp.MustCompile(`(?i)\bExit:\s*(\d+(?:\.\d+)?)`)
	wrRe     = regexp.MustCompile(`(?i)\bWR:\s*(\d+(?:\.\d+)?)%?`)
	evRe     = regexp.MustCompile(`(?i)\bEV:\s*([-+]?\d+(?:\.\d+)?)`)
	rrRe     = regexp.MustCompile(`(?i)\bR:?R:\s*(\d+(?:\.\d+)?)`)
	nRe      = regexp.MustCompile(`(?i)\bn\s*[=:]\s*(\d+)`)
	tfRe     = regexp.MustCompile(`(?i)\bTF:\s*(\d+)\b`)
)

// textFields are the JSON keys that may carry the annotated message.
var textFields = []string{"message", "text", "alert", "content"}

func (freeText) format() models.AlertFormat { return models.FormatFreeText }

func (freeText) decode(body []byte) (*models.Alert, bool) {
	for _, text := range candidateTexts(body) {
		if a, ok := decodeText(text); ok {
			return a, true
		}
	}
	return nil, false
}

// candidateTexts yields the message strings embedded in JSON wrappers first, then the raw body.
func candidateTexts(body []byte) []string {
	var out []string
	switch body[0] {
	case '{':
		var m map[string]any
		if err := json.Unmarshal(body, &m); err == nil {
			for _, k := range textFields {
				if s, ok := m[k].(string); ok && s != "" {
					out = append(out, s)
				}
			}
		}
	case '"':
		var s string
		if err := json.Unmarshal(body, &s); err == nil {
			out = append(out, s)
		}
	}
	return append(out, string(body))
}

func decodeText(text string) (*models.Alert, bool) {
	loc := glyphRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, false
	}

	a := &models.Alert{SetupClass: models.SetupPrimary, Direction: models.Bearish}
	if text[loc[2]:loc[3]] == "A" {
		a.SetupClass = models.SetupAlternate
	}
	arrow := ""
	if loc[4] >= 0 {
		arrow = text[loc[4]:loc[5]]
	}
	word := ""
	if loc[6] >= 0 {
		word = text[loc[6]:loc[7]]
	}
	if arrow == "↑" || word == "Bull" {
		a.Direction = models.Bullish
	}

	if m := actionRe.FindStringSubmatch(text[loc[1]:]); m != nil {
		a.Action = m[1]
	}

	a.EntryPrice = findDecimal(priceRe, text)
	a.Target = findDecimal(targetRe, text)
	a.PartialTarget = findDecimal(tp1Re, text)
	a.StopLoss = findDecimal(stopRe, text)
	a.ExitPrice = findDecimal(exitRe, text)
	a.WinRatePct = findDecimal(wrRe, text)
	a.ExpectedValue = findDecimal(evRe, text)
	a.RiskReward = findDecimal(rrRe, text)
	a.SampleSize = findInt(nRe, text)
	if tf := findInt(tfRe, text); tf != nil {
		a.TimeframeSeconds = tf
		a.TimeframeDisplay = TimeframeDisplay(*tf)
	}
	return a, true
}

func findDecimal(re *regexp.Regexp, text string) decimal.NullDecimal {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func findInt(re *regexp.Regexp, text string) *int {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}
