package usecase

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"SignalRelay/internal/domain/models"
	domrepo "SignalRelay/internal/domain/repository"
	domsvc "SignalRelay/internal/domain/service"
	"SignalRelay/internal/services/filter"
	xlogger "SignalRelay/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// DispatcherConfig bounds one dispatch run.
type DispatcherConfig struct {
	Workers     int
	RunTimeout  time.Duration
	SendTimeout time.Duration
}

// Dispatcher fans one alert out to subscribers over the registered channels.
type Dispatcher struct {
	cfg         DispatcherConfig
	channels    map[models.DestinationKind]domsvc.Channel
	invalidator domsvc.Invalidator
	metrics     domrepo.Metrics
	log         *xlogger.Logger
	locks       *keyedLock
}

func NewDispatcher(cfg DispatcherConfig, channels []domsvc.Channel, invalidator domsvc.Invalidator, metrics domrepo.Metrics, log *xlogger.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 16
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 25 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	byKind := make(map[models.DestinationKind]domsvc.Channel, len(channels))
	for _, ch := range channels {
		byKind[ch.Kind()] = ch
	}
	return &Dispatcher{
		cfg:         cfg,
		channels:    byKind,
		invalidator: invalidator,
		metrics:     metrics,
		log:         log,
		locks:       newKeyedLock(),
	}
}

type indexedOutcome struct {
	idx     int
	outcome models.SubscriberOutcome
}

// Run evaluates and delivers alert to every active subscriber. It returns when all
// subscribers are processed or the run deadline passes, whichever is first; in the
// latter case the result is partial and the remaining subscribers are unprocessed.
func (d *Dispatcher) Run(ctx context.Context, alert *models.Alert, subscribers []models.Subscriber) *models.DispatchResult {
	start := time.Now()

	active := make([]models.Subscriber, 0, len(subscribers))
	for _, s := range subscribers {
		if s.Active {
			active = append(active, s)
		}
	}
	result := &models.DispatchResult{Total: len(active)}
	if len(active) == 0 {
		result.SetDuration(time.Since(start))
		d.metrics.RecordDispatch(time.Since(start).Seconds(), false)
		return result
	}

	runCtx, cancel := context.WithTimeout(ctx, d.cfg.RunTimeout)
	defer cancel()

	// Buffered to len(active) so late workers never block after Run returns.
	results := make(chan indexedOutcome, len(active))
	go func() {
		g, gctx := errgroup.WithContext(runCtx)
		g.SetLimit(d.cfg.Workers)
		for i := range active {
			if gctx.Err() != nil {
				return
			}
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				results <- indexedOutcome{idx: i, outcome: d.processSubscriber(gctx, alert, active[i])}
				return nil
			})
		}
		_ = g.Wait()
	}()

	outcomes, partial := collectOutcomes(runCtx, results, len(active))
	result.Partial = partial

	for i, o := range outcomes {
		if o == nil {
			o = &models.SubscriberOutcome{
				SubscriberID: active[i].ID,
				Status:       models.StatusUnprocessed,
				Reason:       "dispatch deadline exceeded",
			}
		}
		result.Add(*o)
		d.metrics.RecordSubscriber(string(o.Status))
	}

	elapsed := time.Since(start)
	result.SetDuration(elapsed)
	d.metrics.RecordDispatch(elapsed.Seconds(), result.Partial)
	if result.Partial {
		d.log.Warn("dispatch run cut off by deadline",
			xlogger.Int("total", result.Total),
			xlogger.Int("unprocessed", result.Unprocessed),
			xlogger.Duration("elapsed", elapsed))
	}
	return result
}

// collectOutcomes gathers up to n outcomes until ctx is done. Outcomes already
// buffered when the deadline fires still count, so a run whose last result races
// the deadline is not reported as partial.
func collectOutcomes(ctx context.Context, results <-chan indexedOutcome, n int) ([]*models.SubscriberOutcome, bool) {
	outcomes := make([]*models.SubscriberOutcome, n)
	received := 0
	take := func(r indexedOutcome) {
		o := r.outcome
		outcomes[r.idx] = &o
		received++
	}
	for received < n {
		select {
		case r := <-results:
			take(r)
		case <-ctx.Done():
			for received < n {
				select {
				case r := <-results:
					take(r)
				default:
					return outcomes, true
				}
			}
			return outcomes, false
		}
	}
	return outcomes, false
}

func (d *Dispatcher) processSubscriber(ctx context.Context, alert *models.Alert, s models.Subscriber) models.SubscriberOutcome {
	out := models.SubscriberOutcome{SubscriberID: s.ID}

	decision := filter.Evaluate(alert, s.Preferences)
	if decision.Anomaly {
		d.metrics.RecordFilterAnomaly()
		d.log.Warn("filter anomaly",
			xlogger.Int64("subscriber_id", s.ID),
			xlogger.String("reason", decision.Reason))
	}
	if !decision.Notify {
		out.Status = models.StatusFiltered
		out.Reason = decision.Reason
		return out
	}

	var dests []models.Destination
	for _, dest := range s.Destinations() {
		if _, ok := d.channels[dest.Kind]; ok {
			dests = append(dests, dest)
		}
	}
	if len(dests) == 0 {
		out.Status = models.StatusNoDestination
		out.Reason = "no registered destination"
		return out
	}

	attempts := make([]models.ChannelAttempt, len(dests))
	var wg sync.WaitGroup
	for i, dest := range dests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempts[i] = d.send(ctx, s.ID, dest, alert)
		}()
	}
	wg.Wait()
	out.Attempts = attempts

	for _, a := range attempts {
		if a.Delivered {
			out.Status = models.StatusNotified
			out.Reason = decision.Reason
			return out
		}
	}
	out.Status = models.StatusFailed
	out.Reason = attempts[len(attempts)-1].Error
	return out
}

func (d *Dispatcher) send(ctx context.Context, subscriberID int64, dest models.Destination, alert *models.Alert) models.ChannelAttempt {
	attempt := models.ChannelAttempt{Kind: dest.Kind}
	start := time.Now()

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	unlock, err := d.locks.Lock(sendCtx, strconv.FormatInt(subscriberID, 10)+":"+string(dest.Kind))
	if err != nil {
		attempt.FailureKind = models.FailureTransient
		attempt.Error = fmt.Sprintf("wait for destination lock: %v", err)
		attempt.DurationMs = time.Since(start).Milliseconds()
		d.metrics.RecordSend(string(dest.Kind), string(models.FailureTransient), time.Since(start).Seconds())
		return attempt
	}
	delivery, err := d.channels[dest.Kind].Send(sendCtx, dest, alert)
	unlock()

	attempt.DurationMs = time.Since(start).Milliseconds()
	if err == nil {
		attempt.Delivered = true
		attempt.MessageID = delivery.MessageID
		d.metrics.RecordSend(string(dest.Kind), "delivered", time.Since(start).Seconds())
		return attempt
	}

	kind := models.FailureKindOf(err)
	attempt.FailureKind = kind
	attempt.Error = err.Error()
	d.metrics.RecordSend(string(dest.Kind), string(kind), time.Since(start).Seconds())
	d.log.Warn("channel send failed",
		xlogger.Int64("subscriber_id", subscriberID),
		xlogger.String("kind", string(dest.Kind)),
		xlogger.String("failure", string(kind)),
		xlogger.Error(err))

	if kind == models.FailureInvalidDestination {
		d.invalidator.Invalidate(ctx, subscriberID, dest.Kind, dest.Address())
	}
	return attempt
}
