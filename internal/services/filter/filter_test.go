package filter

import (
	"strings"
	"testing"

	"SignalRelay/internal/domain/models"

	"github.com/shopspring/decimal"
)

func intPtr(n int) *int { return &n }

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func baseAlert() *models.Alert {
	return &models.Alert{
		SetupClass:    models.SetupPrimary,
		Direction:     models.Bullish,
		Action:        "ENTRY",
		EntryPrice:    nd("21500"),
		WinRatePct:    nd("62"),
		ExpectedValue: nd("3.2"),
		SampleSize:    intPtr(15),
	}
}

func prefs(mode models.FilterMode, minWR, minEV string, minN int) models.Preferences {
	p := models.DefaultPreferences()
	p.FilterMode = mode
	p.MinWinRatePct = decimal.RequireFromString(minWR)
	p.MinExpectedValue = decimal.RequireFromString(minEV)
	p.MinSampleSize = minN
	return p
}

func TestDisabledCombinationAlwaysSuppresses(t *testing.T) {
	combos := []struct {
		setup   models.SetupClass
		dir     models.Direction
		disable func(*models.Preferences)
		reason  string
	}{
		{models.SetupPrimary, models.Bullish, func(p *models.Preferences) { p.EnableBBullish = false }, "B↑ signals disabled"},
		{models.SetupPrimary, models.Bearish, func(p *models.Preferences) { p.EnableBBearish = false }, "B↓ signals disabled"},
		{models.SetupAlternate, models.Bullish, func(p *models.Preferences) { p.EnableABullish = false }, "A↑ signals disabled"},
		{models.SetupAlternate, models.Bearish, func(p *models.Preferences) { p.EnableABearish = false }, "A↓ signals disabled"},
	}
	modes := []models.FilterMode{models.FilterNone, models.FilterWinRate, models.FilterExpectedValue, models.FilterBoth, models.FilterEither, "BOGUS"}

	for _, c := range combos {
		for _, mode := range modes {
			a := baseAlert()
			a.SetupClass, a.Direction = c.setup, c.dir
			p := prefs(mode, "0", "-999999", 0)
			c.disable(&p)

			d := Evaluate(a, p)
			if d.Notify {
				t.Fatalf("%s mode %s: expected suppression", a.Glyph(), mode)
			}
			if d.Reason != c.reason {
				t.Fatalf("unexpected reason %q", d.Reason)
			}
		}
	}
}

func TestOtherCombinationUnaffectedByDisabledFlag(t *testing.T) {
	p := models.DefaultPreferences()
	p.EnableBBearish = false
	if d := Evaluate(baseAlert(), p); !d.Notify {
		t.Fatalf("B↑ should still notify: %s", d.Reason)
	}
}

func TestSampleSizeFloor(t *testing.T) {
	a := baseAlert()
	a.SampleSize = intPtr(10)
	d := Evaluate(a, prefs(models.FilterNone, "0", "-999999", 15))
	if d.Notify || d.Reason != "Sample size 10 < minimum 15" {
		t.Fatalf("unexpected decision %+v", d)
	}

	a.SampleSize = nil
	if d := Evaluate(a, prefs(models.FilterNone, "0", "-999999", 1000)); !d.Notify {
		t.Fatalf("absent sample size must pass: %+v", d)
	}

	a.SampleSize = intPtr(15)
	if d := Evaluate(a, prefs(models.FilterNone, "0", "-999999", 15)); !d.Notify {
		t.Fatalf("sample size equal to minimum must pass: %+v", d)
	}
}

func TestWinRateOnly(t *testing.T) {
	d := Evaluate(baseAlert(), prefs(models.FilterWinRate, "50", "-999999", 0))
	if !d.Notify || d.Reason != "Passed WR filter" {
		t.Fatalf("unexpected decision %+v", d)
	}

	d = Evaluate(baseAlert(), prefs(models.FilterWinRate, "70", "-999999", 0))
	if d.Notify {
		t.Fatalf("expected suppression")
	}
	if !strings.Contains(d.Reason, "62") || !strings.Contains(d.Reason, "70") {
		t.Fatalf("reason should cite 62 and 70: %q", d.Reason)
	}
	if d.Reason != "Win rate 62% < minimum 70%" {
		t.Fatalf("unexpected reason %q", d.Reason)
	}
}

func TestExpectedValueOnly(t *testing.T) {
	a := baseAlert()
	a.ExpectedValue = nd("-1.5")
	d := Evaluate(a, prefs(models.FilterExpectedValue, "0", "0", 0))
	if d.Notify || d.Reason != "EV -1.5 < minimum 0" {
		t.Fatalf("unexpected decision %+v", d)
	}

	a.ExpectedValue = nd("0")
	if d := Evaluate(a, prefs(models.FilterExpectedValue, "0", "0", 0)); !d.Notify {
		t.Fatalf("EV equal to minimum must pass: %+v", d)
	}
}

func TestAbsentMetricsNeverBlock(t *testing.T) {
	a := baseAlert()
	a.WinRatePct = decimal.NullDecimal{}
	a.ExpectedValue = decimal.NullDecimal{}

	for _, mode := range []models.FilterMode{models.FilterWinRate, models.FilterExpectedValue, models.FilterBoth, models.FilterEither} {
		d := Evaluate(a, prefs(mode, "99", "100", 0))
		if !d.Notify {
			t.Fatalf("mode %s: absent metrics must pass, got %q", mode, d.Reason)
		}
	}
}

func TestBothAndEither(t *testing.T) {
	cases := []struct {
		minWR, minEV string
		both, either bool
	}{
		{"50", "1", true, true},
		{"70", "1", false, true},
		{"50", "5", false, true},
		{"70", "5", false, false},
	}
	for _, tc := range cases {
		both := Evaluate(baseAlert(), prefs(models.FilterBoth, tc.minWR, tc.minEV, 0))
		either := Evaluate(baseAlert(), prefs(models.FilterEither, tc.minWR, tc.minEV, 0))
		if both.Notify != tc.both || either.Notify != tc.either {
			t.Fatalf("wr>=%s ev>=%s: both=%v either=%v", tc.minWR, tc.minEV, both.Notify, either.Notify)
		}
	}

	d := Evaluate(baseAlert(), prefs(models.FilterEither, "70", "5", 0))
	if !strings.HasPrefix(d.Reason, "Failed both filters: WR 62%") || !strings.Contains(d.Reason, "EV 3.2") {
		t.Fatalf("unexpected reason %q", d.Reason)
	}
}

func TestEitherIsSupersetOfBoth(t *testing.T) {
	wrs := []string{"", "0", "49.9", "62", "80"}
	evs := []string{"", "-3", "0", "3.2", "7"}
	mins := []string{"0", "50", "62", "75"}
	minEVs := []string{"-999999", "0", "3.2", "5"}

	for _, wr := range wrs {
		for _, ev := range evs {
			a := baseAlert()
			a.WinRatePct, a.ExpectedValue = decimal.NullDecimal{}, decimal.NullDecimal{}
			if wr != "" {
				a.WinRatePct = nd(wr)
			}
			if ev != "" {
				a.ExpectedValue = nd(ev)
			}
			for _, mw := range mins {
				for _, me := range minEVs {
					both := Evaluate(a, prefs(models.FilterBoth, mw, me, 0))
					either := Evaluate(a, prefs(models.FilterEither, mw, me, 0))
					if both.Notify && !either.Notify {
						t.Fatalf("EITHER suppressed where BOTH notified: wr=%q ev=%q min=%s/%s", wr, ev, mw, me)
					}
				}
			}
		}
	}
}

func TestUnknownModeIsPermissive(t *testing.T) {
	d := Evaluate(baseAlert(), prefs("STRICT", "99", "99", 0))
	if !d.Notify || !d.Anomaly {
		t.Fatalf("unknown mode must notify with anomaly flag: %+v", d)
	}
	if !strings.Contains(d.Reason, "STRICT") {
		t.Fatalf("reason should name the mode: %q", d.Reason)
	}
}

func TestEmptyModeMeansNone(t *testing.T) {
	d := Evaluate(baseAlert(), prefs("", "99", "99", 0))
	if !d.Notify || d.Anomaly || d.Reason != "No filter applied" {
		t.Fatalf("unexpected decision %+v", d)
	}
}
