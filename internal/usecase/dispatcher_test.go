package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"SignalRelay/internal/domain/models"
	domsvc "SignalRelay/internal/domain/service"
	xlogger "SignalRelay/pkg/logger"

	"github.com/shopspring/decimal"
)

func bullishAlert(wr string) *models.Alert {
	a := &models.Alert{SetupClass: models.SetupPrimary, Direction: models.Bullish, Action: "ENTRY"}
	if wr != "" {
		a.WinRatePct = decimal.NewNullDecimal(decimal.RequireFromString(wr))
	}
	return a
}

func subscriber(id int64, token, endpoint string) models.Subscriber {
	s := models.Subscriber{ID: id, Active: true, Preferences: models.DefaultPreferences(), MobileToken: token}
	if endpoint != "" {
		s.WebPush = &models.WebPushSubscription{Endpoint: endpoint, P256dh: "p", Auth: "a"}
	}
	return s
}

func newTestDispatcher(cfg DispatcherConfig, inv domsvc.Invalidator, channels ...domsvc.Channel) *Dispatcher {
	return NewDispatcher(cfg, channels, inv, nopMetrics{}, xlogger.Nop())
}

func TestDispatchOneInvalidOneDelivered(t *testing.T) {
	mobile := &fakeChannel{kind: models.DestinationMobilePush, fail: map[string]models.FailureKind{"dead": models.FailureInvalidDestination}}
	web := &fakeChannel{kind: models.DestinationWebPush}
	inv := &recordingInvalidator{}
	d := newTestDispatcher(DispatcherConfig{}, inv, mobile, web)

	res := d.Run(context.Background(), bullishAlert(""), []models.Subscriber{subscriber(7, "dead", "https://push/ok")})

	if res.Total != 1 || res.Notified != 1 || res.Skipped != 0 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if res.Invalidations != 1 {
		t.Fatalf("expected one invalidation, got %d", res.Invalidations)
	}
	calls := inv.snapshot()
	if len(calls) != 1 || calls[0] != (invalidation{7, models.DestinationMobilePush, "dead"}) {
		t.Fatalf("unexpected invalidations %+v", calls)
	}
	if res.Subscribers[0].Status != models.StatusNotified || len(res.Subscribers[0].Attempts) != 2 {
		t.Fatalf("unexpected outcome %+v", res.Subscribers[0])
	}
}

func TestDispatchInvalidatesTheFailedEndpoint(t *testing.T) {
	web := &fakeChannel{kind: models.DestinationWebPush, fail: map[string]models.FailureKind{"https://push/gone": models.FailureInvalidDestination}}
	inv := &recordingInvalidator{}
	d := newTestDispatcher(DispatcherConfig{}, inv, web)

	d.Run(context.Background(), bullishAlert(""), []models.Subscriber{subscriber(8, "", "https://push/gone")})

	calls := inv.snapshot()
	if len(calls) != 1 || calls[0] != (invalidation{8, models.DestinationWebPush, "https://push/gone"}) {
		t.Fatalf("unexpected invalidations %+v", calls)
	}
}

func TestDispatchOutcomes(t *testing.T) {
	mobile := &fakeChannel{kind: models.DestinationMobilePush, fail: map[string]models.FailureKind{"flaky": models.FailureTransient}}
	inv := &recordingInvalidator{}
	d := newTestDispatcher(DispatcherConfig{}, inv, mobile)

	strict := subscriber(2, "tok2", "")
	strict.Preferences.FilterMode = models.FilterWinRate
	strict.Preferences.MinWinRatePct = decimal.NewFromInt(70)

	inactive := subscriber(5, "tok5", "")
	inactive.Active = false

	subs := []models.Subscriber{
		subscriber(1, "tok1", ""),
		strict,
		subscriber(3, "", ""),
		subscriber(4, "flaky", ""),
		inactive,
	}
	res := d.Run(context.Background(), bullishAlert("62"), subs)

	if res.Total != 4 {
		t.Fatalf("inactive subscriber counted: total %d", res.Total)
	}
	if res.Notified != 1 || res.Skipped != 3 {
		t.Fatalf("unexpected counts %+v", res)
	}
	want := map[int64]models.SubscriberStatus{
		1: models.StatusNotified,
		2: models.StatusFiltered,
		3: models.StatusNoDestination,
		4: models.StatusFailed,
	}
	for _, o := range res.Subscribers {
		if want[o.SubscriberID] != o.Status {
			t.Fatalf("subscriber %d: status %s, want %s", o.SubscriberID, o.Status, want[o.SubscriberID])
		}
	}
	if res.Subscribers[1].Reason != "Win rate 62% < minimum 70%" {
		t.Fatalf("unexpected filter reason %q", res.Subscribers[1].Reason)
	}
	if res.Subscribers[3].Reason == "" {
		t.Fatalf("failed outcome should keep the failure reason")
	}
	if len(inv.snapshot()) != 0 {
		t.Fatalf("transient failure must not invalidate")
	}
	if mobile.callCount() != 2 {
		t.Fatalf("expected 2 sends, got %d", mobile.callCount())
	}
}

func TestDispatchBoundedConcurrency(t *testing.T) {
	mobile := &fakeChannel{kind: models.DestinationMobilePush, delay: 10 * time.Millisecond}
	d := newTestDispatcher(DispatcherConfig{Workers: 2}, &recordingInvalidator{}, mobile)

	var subs []models.Subscriber
	for i := int64(1); i <= 10; i++ {
		subs = append(subs, subscriber(i, "tok", ""))
	}
	res := d.Run(context.Background(), bullishAlert(""), subs)

	if res.Notified != 10 {
		t.Fatalf("expected all notified, got %+v", res)
	}
	if mobile.peak > 2 {
		t.Fatalf("concurrency exceeded worker limit: %d", mobile.peak)
	}
}

func TestDispatchRunDeadlineReturnsPartial(t *testing.T) {
	mobile := &fakeChannel{kind: models.DestinationMobilePush, block: true}
	d := newTestDispatcher(DispatcherConfig{Workers: 1, RunTimeout: 50 * time.Millisecond, SendTimeout: time.Minute}, &recordingInvalidator{}, mobile)

	subs := []models.Subscriber{subscriber(1, "a", ""), subscriber(2, "b", ""), subscriber(3, "c", "")}
	start := time.Now()
	res := d.Run(context.Background(), bullishAlert(""), subs)

	if time.Since(start) > 2*time.Second {
		t.Fatalf("run did not honor its deadline")
	}
	if !res.Partial {
		t.Fatalf("expected partial result")
	}
	if res.Notified+res.Skipped != res.Total || res.Total != 3 {
		t.Fatalf("counts do not add up: %+v", res)
	}
	if res.Unprocessed < 2 {
		t.Fatalf("expected at least 2 unprocessed, got %d", res.Unprocessed)
	}
}

func TestCollectCountsOutcomesBufferedAtDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 50; i++ {
		results := make(chan indexedOutcome, 2)
		results <- indexedOutcome{idx: 0, outcome: models.SubscriberOutcome{SubscriberID: 1, Status: models.StatusNotified}}
		results <- indexedOutcome{idx: 1, outcome: models.SubscriberOutcome{SubscriberID: 2, Status: models.StatusFiltered}}

		outcomes, partial := collectOutcomes(ctx, results, 2)
		if partial {
			t.Fatalf("run %d reported partial with every outcome buffered", i)
		}
		if outcomes[0] == nil || outcomes[1] == nil {
			t.Fatalf("run %d dropped a buffered outcome", i)
		}
	}
}

func TestCollectPartialWhenOutcomeMissing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := make(chan indexedOutcome, 2)
	results <- indexedOutcome{idx: 1, outcome: models.SubscriberOutcome{SubscriberID: 2, Status: models.StatusNotified}}

	outcomes, partial := collectOutcomes(ctx, results, 2)
	if !partial {
		t.Fatalf("expected partial")
	}
	if outcomes[0] != nil || outcomes[1] == nil {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}

func TestDispatchNoSubscribers(t *testing.T) {
	d := newTestDispatcher(DispatcherConfig{}, &recordingInvalidator{})
	res := d.Run(context.Background(), bullishAlert(""), nil)
	if res.Total != 0 || res.Partial {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestKeyedLockSerializesAndCleansUp(t *testing.T) {
	l := newKeyedLock()
	var mu sync.Mutex
	inside, peak := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "7:web_push")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > peak {
				peak = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Fatalf("expected exclusive access, peak %d", peak)
	}
	if l.size() != 0 {
		t.Fatalf("expected lock table to be empty, got %d", l.size())
	}
}

func TestKeyedLockHonorsContext(t *testing.T) {
	l := newKeyedLock()
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); err == nil {
		t.Fatalf("expected context error while key is held")
	}
	unlock()
	if l.size() != 0 {
		t.Fatalf("expected lock table to be empty, got %d", l.size())
	}
}
