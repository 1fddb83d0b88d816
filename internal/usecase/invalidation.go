package usecase

import (
	"context"
	"sync"
	"time"

	"SignalRelay/internal/domain/models"
	domrepo "SignalRelay/internal/domain/repository"
	domsvc "SignalRelay/internal/domain/service"
	xlogger "SignalRelay/pkg/logger"
	"SignalRelay/pkg/queue"
)

// DirectoryInvalidator clears destinations in the directory on a detached goroutine.
type DirectoryInvalidator struct {
	dir     domrepo.SubscriberDirectory
	timeout time.Duration
	metrics domrepo.Metrics
	log     *xlogger.Logger
	wg      sync.WaitGroup
}

func NewDirectoryInvalidator(dir domrepo.SubscriberDirectory, timeout time.Duration, metrics domrepo.Metrics, log *xlogger.Logger) *DirectoryInvalidator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DirectoryInvalidator{dir: dir, timeout: timeout, metrics: metrics, log: log}
}

func (i *DirectoryInvalidator) Invalidate(ctx context.Context, subscriberID int64, kind models.DestinationKind, address string) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.timeout)
		defer cancel()
		i.apply(ctx, subscriberID, kind, address)
	}()
}

func (i *DirectoryInvalidator) apply(ctx context.Context, subscriberID int64, kind models.DestinationKind, address string) error {
	if err := i.dir.InvalidateDestination(ctx, subscriberID, kind, address); err != nil {
		i.metrics.RecordInvalidation(string(kind), "error")
		i.log.Error("invalidate destination failed",
			xlogger.Int64("subscriber_id", subscriberID),
			xlogger.String("kind", string(kind)),
			xlogger.Error(err))
		return err
	}
	i.metrics.RecordInvalidation(string(kind), "ok")
	i.log.Info("destination invalidated",
		xlogger.Int64("subscriber_id", subscriberID),
		xlogger.String("kind", string(kind)))
	return nil
}

// Wait blocks until in-flight invalidations finish or ctx is done.
func (i *DirectoryInvalidator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const InvalidationJobType = "destination.invalidate"

type invalidationPayload struct {
	SubscriberID int64                  `json:"subscriber_id"`
	Kind         models.DestinationKind `json:"kind"`
	Address      string                 `json:"address"`
}

// QueueInvalidator hands invalidations to the Redis job queue so they survive restarts
// and are retried by the queue. It falls back to the direct path if enqueueing fails.
type QueueInvalidator struct {
	publisher queue.QueueService
	fallback  *DirectoryInvalidator
	log       *xlogger.Logger
}

func NewQueueInvalidator(publisher queue.QueueService, fallback *DirectoryInvalidator, log *xlogger.Logger) *QueueInvalidator {
	return &QueueInvalidator{publisher: publisher, fallback: fallback, log: log}
}

func (q *QueueInvalidator) Invalidate(ctx context.Context, subscriberID int64, kind models.DestinationKind, address string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	err := q.publisher.PublishMessage(ctx, InvalidationJobType, invalidationPayload{SubscriberID: subscriberID, Kind: kind, Address: address})
	if err == nil {
		return
	}
	q.log.Warn("enqueue invalidation failed, applying directly",
		xlogger.Int64("subscriber_id", subscriberID),
		xlogger.Error(err))
	q.fallback.Invalidate(ctx, subscriberID, kind, address)
}

// InvalidationJob is the queue consumer side of QueueInvalidator.
type InvalidationJob struct {
	inv *DirectoryInvalidator
}

func NewInvalidationJob(inv *DirectoryInvalidator) *InvalidationJob {
	return &InvalidationJob{inv: inv}
}

func (j *InvalidationJob) Name() string { return "invalidate-destination" }
func (j *InvalidationJob) Type() string { return InvalidationJobType }

func (j *InvalidationJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[invalidationPayload](payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, j.inv.timeout)
	defer cancel()
	return j.inv.apply(ctx, p.SubscriberID, p.Kind, p.Address)
}

var (
	_ domsvc.Invalidator = (*DirectoryInvalidator)(nil)
	_ domsvc.Invalidator = (*QueueInvalidator)(nil)
	_ queue.Job          = (*InvalidationJob)(nil)
)
