package filter

import (
	"fmt"

	"SignalRelay/internal/domain/models"
)

// check is the outcome of one threshold test. Absent metrics always pass.
type check struct {
	pass   bool
	detail string // "62% < 70%" style, only set on failure
}

type modePolicy func(wr, ev check) models.Decision

// modePolicies is the single place that decides how WR and EV combine.
// Modes missing from this table fall through to the permissive default.
var modePolicies = map[models.FilterMode]modePolicy{
	models.FilterNone: func(_, _ check) models.Decision {
		return notify("No filter applied")
	},
	models.FilterWinRate: func(wr, _ check) models.Decision {
		if !wr.pass {
			return suppress("Win rate " + wr.detail)
		}
		return notify("Passed WR filter")
	},
	models.FilterExpectedValue: func(_, ev check) models.Decision {
		if !ev.pass {
			return suppress("EV " + ev.detail)
		}
		return notify("Passed EV filter")
	},
	models.FilterBoth: func(wr, ev check) models.Decision {
		if !wr.pass {
			return suppress("Win rate " + wr.detail)
		}
		if !ev.pass {
			return suppress("EV " + ev.detail)
		}
		return notify("Passed BOTH filters")
	},
	models.FilterEither: func(wr, ev check) models.Decision {
		if wr.pass || ev.pass {
			return notify("Passed at least one filter")
		}
		return suppress(fmt.Sprintf("Failed both filters: WR %s AND EV %s", wr.detail, ev.detail))
	},
}

// unknownMode is the permissive fallback; it notifies and flags the anomaly.
func unknownMode(mode models.FilterMode) models.Decision {
	return models.Decision{
		Notify:  true,
		Reason:  fmt.Sprintf("Unknown filter mode %q, defaulting to notify", string(mode)),
		Anomaly: true,
	}
}

func notify(reason string) models.Decision {
	return models.Decision{Notify: true, Reason: reason}
}

func suppress(reason string) models.Decision {
	return models.Decision{Notify: false, Reason: reason}
}
