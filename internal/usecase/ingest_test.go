package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"SignalRelay/internal/domain/models"
	"SignalRelay/internal/services/decoder"
	xlogger "SignalRelay/pkg/logger"

	"github.com/shopspring/decimal"
)

const wr62 = "B↑ ENTRY | Price: 21500 | SL: 21475 | WR: 62% | EV: 3.2 | n=15"

type ingestFixture struct {
	dir     *fakeDirectory
	history *fakeHistory
	events  *fakeEvents
	mobile  *fakeChannel
	ingest  *Ingest
}

func newIngestFixture(subs []models.Subscriber, opts ...IngestOption) *ingestFixture {
	f := &ingestFixture{
		dir:     &fakeDirectory{subs: subs},
		history: &fakeHistory{},
		events:  &fakeEvents{},
		mobile:  &fakeChannel{kind: models.DestinationMobilePush},
	}
	disp := newTestDispatcher(DispatcherConfig{}, &recordingInvalidator{}, f.mobile)
	opts = append([]IngestOption{
		WithHistory(f.history),
		WithEvents(f.events),
		WithIDGenerator(func() string { return "alert-1" }),
	}, opts...)
	f.ingest = NewIngest(decoder.New(), f.dir, disp, nopMetrics{}, xlogger.Nop(), opts...)
	return f
}

func wrSubscriber(id int64, minWR int64) models.Subscriber {
	s := subscriber(id, "tok", "")
	s.Preferences.FilterMode = models.FilterWinRate
	s.Preferences.MinWinRatePct = decimal.NewFromInt(minWR)
	return s
}

func TestIngestWinRateThresholds(t *testing.T) {
	f := newIngestFixture([]models.Subscriber{wrSubscriber(1, 50), wrSubscriber(2, 70)})

	resp, err := f.ingest.Handle(context.Background(), []byte(wr62))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.Status != models.AlertDispatched || resp.AlertID != "alert-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	s := resp.Summary
	if s.Total != 2 || s.Notified != 1 || s.Skipped != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.AlertID != "alert-1" {
		t.Fatalf("summary should carry the alert id, got %q", s.AlertID)
	}

	if len(f.history.records) != 1 {
		t.Fatalf("expected one history record, got %d", len(f.history.records))
	}
	rec := f.history.records[0]
	if rec.Status != models.AlertDispatched || rec.Notified != 1 || rec.Total != 2 || rec.RawPayload != wr62 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(f.events.events) != 1 || f.events.events[0].Summary != s {
		t.Fatalf("expected one event carrying the summary")
	}
}

func TestIngestRejectedPayload(t *testing.T) {
	f := newIngestFixture([]models.Subscriber{subscriber(1, "tok", "")})

	resp, err := f.ingest.Handle(context.Background(), []byte("hello world"))
	if err != nil {
		t.Fatalf("rejection must not be an error: %v", err)
	}
	if resp.Status != models.AlertRejected || resp.Reason == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if f.dir.listCalls != 0 || f.mobile.callCount() != 0 {
		t.Fatalf("rejected payload reached the directory or a channel")
	}
	if len(f.history.records) != 1 || f.history.records[0].Status != models.AlertRejected {
		t.Fatalf("rejected payload not recorded: %+v", f.history.records)
	}
	if len(f.events.events) != 0 {
		t.Fatalf("rejected payload should not publish an event")
	}
}

func TestIngestDirectoryFailure(t *testing.T) {
	f := newIngestFixture(nil)
	f.dir.listErr = errors.New("connection refused")

	_, err := f.ingest.Handle(context.Background(), []byte(wr62))
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
	}
	if f.mobile.callCount() != 0 {
		t.Fatalf("nothing should be dispatched")
	}
	if len(f.history.records) != 1 || f.history.records[0].Status != models.AlertDirectoryError {
		t.Fatalf("directory failure not recorded: %+v", f.history.records)
	}
}

func TestIngestDuplicateWithinWindow(t *testing.T) {
	f := newIngestFixture([]models.Subscriber{subscriber(1, "tok", "")},
		WithDedup(&memoryDedup{seen: map[string]bool{}}, time.Minute))

	first, err := f.ingest.Handle(context.Background(), []byte(wr62))
	if err != nil || first.Status != models.AlertDispatched {
		t.Fatalf("first delivery: %+v, %v", first, err)
	}
	second, err := f.ingest.Handle(context.Background(), []byte(wr62))
	if err != nil || second.Status != models.AlertDuplicate {
		t.Fatalf("second delivery: %+v, %v", second, err)
	}
	if f.mobile.callCount() != 1 {
		t.Fatalf("duplicate was dispatched again: %d sends", f.mobile.callCount())
	}
}

func TestIngestDirectoryFailureReleasesDedup(t *testing.T) {
	f := newIngestFixture([]models.Subscriber{subscriber(1, "tok", "")},
		WithDedup(&memoryDedup{seen: map[string]bool{}}, time.Minute))
	f.dir.listErr = errors.New("database is locked")

	if _, err := f.ingest.Handle(context.Background(), []byte(wr62)); !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
	}

	f.dir.listErr = nil
	res, err := f.ingest.Handle(context.Background(), []byte(wr62))
	if err != nil || res.Status != models.AlertDispatched {
		t.Fatalf("retry after directory failure should dispatch: %+v, %v", res, err)
	}
}

func TestIngestPreview(t *testing.T) {
	f := newIngestFixture(nil)
	prefs := models.DefaultPreferences()
	prefs.FilterMode = models.FilterWinRate
	prefs.MinWinRatePct = decimal.NewFromInt(70)

	resp, err := f.ingest.Preview([]byte(wr62), prefs)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if resp.Decision.Notify || resp.Alert.Glyph() != "B↑" {
		t.Fatalf("unexpected preview %+v", resp)
	}
	if _, err := f.ingest.Preview([]byte("nothing here"), prefs); err == nil {
		t.Fatalf("expected error for rejected payload")
	}
	if f.dir.listCalls != 0 {
		t.Fatalf("preview must not touch the directory")
	}
}

func TestKafkaAlertsHandler(t *testing.T) {
	f := newIngestFixture([]models.Subscriber{subscriber(1, "tok", "")})
	h := NewKafkaAlertsHandler("alerts.inbound", f.ingest)

	if h.Topic() != "alerts.inbound" {
		t.Fatalf("unexpected topic %s", h.Topic())
	}
	if err := h.Handle(context.Background(), []byte("garbage")); err != nil {
		t.Fatalf("rejected payload should be committed, got %v", err)
	}
	if err := h.Handle(context.Background(), []byte(`{"signal":"A_SHORT","action":"EXIT"}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if f.mobile.callCount() != 1 {
		t.Fatalf("expected one send, got %d", f.mobile.callCount())
	}

	f.dir.listErr = errors.New("down")
	if err := h.Handle(context.Background(), []byte(wr62)); !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("expected directory error to be retried, got %v", err)
	}
}

func TestDirectoryInvalidatorDetachesFromCaller(t *testing.T) {
	dir := &fakeDirectory{}
	inv := NewDirectoryInvalidator(dir, time.Second, nopMetrics{}, xlogger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	inv.Invalidate(ctx, 9, models.DestinationWebPush, "https://push/9")
	cancel()

	waitCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := inv.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(dir.invalidated) != 1 || dir.invalidated[0] != (invalidation{9, models.DestinationWebPush, "https://push/9"}) {
		t.Fatalf("unexpected invalidations %+v", dir.invalidated)
	}
}

func TestDirectoryInvalidatorFailureIsContained(t *testing.T) {
	dir := &fakeDirectory{invalidErr: errors.New("locked")}
	inv := NewDirectoryInvalidator(dir, time.Second, nopMetrics{}, xlogger.Nop())
	inv.Invalidate(context.Background(), 1, models.DestinationMobilePush, "tok-1")
	if err := inv.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestQueueInvalidatorAndJob(t *testing.T) {
	dir := &fakeDirectory{}
	direct := NewDirectoryInvalidator(dir, time.Second, nopMetrics{}, xlogger.Nop())
	q := &fakeQueue{}
	NewQueueInvalidator(q, direct, xlogger.Nop()).Invalidate(context.Background(), 3, models.DestinationMobilePush, "tok-3")

	if q.msgType != InvalidationJobType || len(q.payloads) != 1 {
		t.Fatalf("expected one enqueued job, got %+v", q)
	}
	if len(dir.invalidated) != 0 {
		t.Fatalf("enqueue path must not hit the directory directly")
	}

	// The queue delivers payloads back as raw JSON.
	raw, _ := json.Marshal(q.payloads[0])
	job := NewInvalidationJob(direct)
	if err := job.Handle(context.Background(), json.RawMessage(raw)); err != nil {
		t.Fatalf("job: %v", err)
	}
	if len(dir.invalidated) != 1 || dir.invalidated[0] != (invalidation{3, models.DestinationMobilePush, "tok-3"}) {
		t.Fatalf("unexpected invalidations %+v", dir.invalidated)
	}
}

func TestQueueInvalidatorFallsBack(t *testing.T) {
	dir := &fakeDirectory{}
	direct := NewDirectoryInvalidator(dir, time.Second, nopMetrics{}, xlogger.Nop())
	NewQueueInvalidator(&fakeQueue{err: errors.New("redis down")}, direct, xlogger.Nop()).
		Invalidate(context.Background(), 4, models.DestinationWebPush, "https://push/4")

	if err := direct.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(dir.invalidated) != 1 {
		t.Fatalf("expected direct invalidation after enqueue failure")
	}
}
