package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"SignalRelay/internal/domain/models"
	domrepo "SignalRelay/internal/domain/repository"
	"SignalRelay/internal/services/decoder"
	"SignalRelay/internal/services/filter"
	xlogger "SignalRelay/pkg/logger"

	"github.com/google/uuid"
)

// ErrDirectoryUnavailable is returned when subscribers cannot be listed. Nothing is dispatched.
var ErrDirectoryUnavailable = errors.New("subscriber directory unavailable")

// sinkTimeout bounds history and event writes, which run after the response is known.
const sinkTimeout = 5 * time.Second

// Ingest runs one inbound payload through decode, dispatch and the history/event sinks.
// History, events and dedup are optional; a nil value disables the stage.
type Ingest struct {
	decoder     *decoder.Decoder
	directory   domrepo.SubscriberDirectory
	dispatcher  *Dispatcher
	history     domrepo.AlertHistory
	events      domrepo.EventPublisher
	dedup       domrepo.Deduplicator
	dedupWindow time.Duration
	metrics     domrepo.Metrics
	log         *xlogger.Logger
	newID       func() string
}

type IngestOption func(*Ingest)

func WithHistory(h domrepo.AlertHistory) IngestOption {
	return func(i *Ingest) { i.history = h }
}

func WithEvents(p domrepo.EventPublisher) IngestOption {
	return func(i *Ingest) { i.events = p }
}

func WithDedup(d domrepo.Deduplicator, window time.Duration) IngestOption {
	return func(i *Ingest) {
		i.dedup = d
		i.dedupWindow = window
	}
}

func WithIDGenerator(f func() string) IngestOption {
	return func(i *Ingest) { i.newID = f }
}

func NewIngest(dec *decoder.Decoder, dir domrepo.SubscriberDirectory, disp *Dispatcher, metrics domrepo.Metrics, log *xlogger.Logger, opts ...IngestOption) *Ingest {
	i := &Ingest{
		decoder:    dec,
		directory:  dir,
		dispatcher: disp,
		metrics:    metrics,
		log:        log,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Handle decodes payload and, if it is an alert, dispatches it to all active subscribers.
// The only error returned wraps ErrDirectoryUnavailable.
func (i *Ingest) Handle(ctx context.Context, payload []byte) (*models.IngestResponse, error) {
	id := i.newID()
	res := i.decoder.Decode(payload)
	rec := &models.AlertRecord{ID: id, RawPayload: string(payload), ReceivedAt: time.Now().UTC()}

	if res.Rejected {
		i.metrics.RecordAlert(string(models.AlertRejected))
		i.log.Warn("alert payload rejected",
			xlogger.String("alert_id", id),
			xlogger.String("reason", res.Reason),
			xlogger.Int("bytes", len(payload)))
		rec.Status, rec.Reason = models.AlertRejected, res.Reason
		i.record(ctx, rec)
		return &models.IngestResponse{AlertID: id, Status: models.AlertRejected, Reason: res.Reason}, nil
	}

	alert := res.Alert
	rec.Alert = alert
	rec.ReceivedAt = alert.ReceivedAt

	dedupKey, dup := i.claim(ctx, payload)
	if dup {
		i.metrics.RecordAlert(string(models.AlertDuplicate))
		i.log.Info("duplicate alert ignored", xlogger.String("alert_id", id), xlogger.String("glyph", alert.Glyph()))
		rec.Status, rec.Reason = models.AlertDuplicate, "identical payload inside dedup window"
		i.record(ctx, rec)
		return &models.IngestResponse{AlertID: id, Status: models.AlertDuplicate, Reason: rec.Reason}, nil
	}

	subs, err := i.directory.ListActiveSubscribers(ctx)
	if err != nil {
		i.metrics.RecordAlert(string(models.AlertDirectoryError))
		i.metrics.RecordError("directory")
		i.log.Error("list subscribers failed", xlogger.String("alert_id", id), xlogger.Error(err))
		rec.Status, rec.Reason = models.AlertDirectoryError, err.Error()
		i.record(ctx, rec)
		i.release(ctx, dedupKey)
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	summary := i.dispatcher.Run(ctx, alert, subs)
	summary.AlertID = id
	i.metrics.RecordAlert(string(models.AlertDispatched))
	i.log.Info("alert dispatched",
		xlogger.String("alert_id", id),
		xlogger.String("glyph", alert.Glyph()),
		xlogger.String("action", alert.Action),
		xlogger.Int("total", summary.Total),
		xlogger.Int("notified", summary.Notified),
		xlogger.Int("skipped", summary.Skipped),
		xlogger.Int("invalidations", summary.Invalidations),
		xlogger.Bool("partial", summary.Partial))

	rec.Status = models.AlertDispatched
	rec.Notified, rec.Skipped, rec.Total = summary.Notified, summary.Skipped, summary.Total
	i.record(ctx, rec)
	i.publish(ctx, &models.AlertEvent{
		ID:         id,
		Status:     models.AlertDispatched,
		Alert:      alert,
		Summary:    summary,
		ReceivedAt: alert.ReceivedAt,
	})

	return &models.IngestResponse{AlertID: id, Status: models.AlertDispatched, Summary: summary}, nil
}

// Preview evaluates payload against prefs without touching subscribers or channels.
func (i *Ingest) Preview(payload []byte, prefs models.Preferences) (*models.FilterPreviewResponse, error) {
	res := i.decoder.Decode(payload)
	if res.Rejected {
		return nil, fmt.Errorf("payload rejected: %s", res.Reason)
	}
	return &models.FilterPreviewResponse{Alert: res.Alert, Decision: filter.Evaluate(res.Alert, prefs)}, nil
}

// claim marks payload as seen and reports whether it already was. The returned key
// is empty when no claim was taken.
func (i *Ingest) claim(ctx context.Context, payload []byte) (string, bool) {
	if i.dedup == nil || i.dedupWindow <= 0 {
		return "", false
	}
	sum := sha256.Sum256(payload)
	key := hex.EncodeToString(sum[:])
	seen, err := i.dedup.Seen(ctx, key, i.dedupWindow)
	if err != nil {
		i.metrics.RecordError("dedup")
		i.log.Warn("dedup check failed, dispatching anyway", xlogger.Error(err))
		return "", false
	}
	return key, seen
}

// release drops a claim for an alert that was never dispatched, so the sender's
// retry goes through.
func (i *Ingest) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := i.dedup.Forget(context.WithoutCancel(ctx), key); err != nil {
		i.metrics.RecordError("dedup")
		i.log.Warn("dedup release failed", xlogger.Error(err))
	}
}

func (i *Ingest) record(ctx context.Context, rec *models.AlertRecord) {
	if i.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := i.history.Record(ctx, rec); err != nil {
		i.metrics.RecordError("history")
		i.log.Error("record alert history failed", xlogger.String("alert_id", rec.ID), xlogger.Error(err))
	}
}

func (i *Ingest) publish(ctx context.Context, ev *models.AlertEvent) {
	if i.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := i.events.PublishAlertEvent(ctx, ev); err != nil {
		i.metrics.RecordError("events")
		i.log.Error("publish alert event failed", xlogger.String("alert_id", ev.ID), xlogger.Error(err))
	}
}
