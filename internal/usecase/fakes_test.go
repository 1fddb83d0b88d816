package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"SignalRelay/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordAlert(string) {}
func (nopMetrics) RecordSubscriber(string) {}
func (nopMetrics) RecordSend(string, string, float64) {}
func (nopMetrics) RecordInvalidation(string, string) {}
func (nopMetrics) RecordFilterAnomaly() {}
func (nopMetrics) RecordDispatch(float64, bool) {}
func (nopMetrics) RecordError(string) {}

// fakeChannel answers per destination token/endpoint; unknown keys succeed.
type fakeChannel struct {
	kind   models.DestinationKind
	delay  time.Duration
	block  bool
	fail   map[string]models.FailureKind
	mu     sync.Mutex
	calls  int
	active int
	peak   int
}

func (f *fakeChannel) Kind() models.DestinationKind { return f.kind }

func (f *fakeChannel) Send(ctx context.Context, dest models.Destination, _ *models.Alert) (models.Delivery, error) {
	f.mu.Lock()
	f.calls++
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.block {
		<-ctx.Done()
		return models.Delivery{}, models.NewSendError(models.FailureTransient, ctx.Err())
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	key := dest.Address()
	if kind, ok := f.fail[key]; ok {
		return models.Delivery{}, models.NewSendError(kind, errors.New("provider said no"))
	}
	return models.Delivery{Kind: f.kind, MessageID: "id-" + key}, nil
}

func (f *fakeChannel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type invalidation struct {
	subscriberID int64
	kind         models.DestinationKind
	address      string
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []invalidation
}

func (r *recordingInvalidator) Invalidate(_ context.Context, id int64, kind models.DestinationKind, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, invalidation{id, kind, address})
}

func (r *recordingInvalidator) snapshot() []invalidation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]invalidation(nil), r.calls...)
}

type fakeDirectory struct {
	mu          sync.Mutex
	subs        []models.Subscriber
	listErr     error
	invalidErr  error
	listCalls   int
	invalidated []invalidation
}

func (f *fakeDirectory) ListActiveSubscribers(context.Context) ([]models.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.subs, nil
}

func (f *fakeDirectory) InvalidateDestination(_ context.Context, id int64, kind models.DestinationKind, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invalidErr != nil {
		return f.invalidErr
	}
	f.invalidated = append(f.invalidated, invalidation{id, kind, address})
	return nil
}

func (f *fakeDirectory) Health(context.Context) error { return nil }

type fakeHistory struct {
	mu      sync.Mutex
	records []models.AlertRecord
}

func (f *fakeHistory) Record(_ context.Context, rec *models.AlertRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeHistory) Health(context.Context) error { return nil }

type fakeEvents struct {
	events []*models.AlertEvent
}

func (f *fakeEvents) PublishAlertEvent(_ context.Context, ev *models.AlertEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEvents) Close() error { return nil }

type memoryDedup struct {
	seen map[string]bool
}

func (m *memoryDedup) Seen(_ context.Context, key string, _ time.Duration) (bool, error) {
	if m.seen[key] {
		return true, nil
	}
	m.seen[key] = true
	return false, nil
}

func (m *memoryDedup) Forget(_ context.Context, key string) error {
	delete(m.seen, key)
	return nil
}

type fakeQueue struct {
	err      error
	msgType  string
	payloads []interface{}
}

func (f *fakeQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.msgType = msgType
	f.payloads = append(f.payloads, payload)
	return nil
}
