package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"SignalRelay/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// promoteDue moves retry entries whose score is due back onto the ready list in
// one step, so two processes never both promote the same entry.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, m in ipairs(due) do
  redis.call('ZREM', KEYS[1], m)
  redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

// RedisQueue is a small at-least-once job queue on Redis lists.
//
// Messages move from the ready list to a processing list while a worker holds
// them and are removed only after Handle returns. Failures go to a retry sorted
// set scored by due time, then to a dead-letter list once RetryLimit is spent.
// Entries left in the processing list by a crashed process are requeued on Start.
type RedisQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	client    *redis.Client
	keyPrefix string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// NewRedisQueue creates a queue. Jobs must be registered before Start.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	cfg := QueueConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if lgr == nil {
		lgr = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	rq := &RedisQueue{
		logger:    lgr.With(logger.String("component", "redis_queue")),
		config:    &cfg,
		client:    client,
		keyPrefix: "signalrelay:queue",
		jobs:      make(map[string]Job),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// RegisterJob binds a job to its message type. A second job for the same type is ignored.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("duplicate job type ignored", logger.String("type", job.Type()), logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Debug("queue job registered", logger.String("type", job.Type()))
}

// Start pings Redis, requeues abandoned in-flight messages and starts the workers.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	n, err := r.requeueInflight(ctx)
	if err != nil {
		return fmt.Errorf("requeue in-flight: %w", err)
	}
	if n > 0 {
		r.logger.Warn("requeued abandoned messages", logger.Int("count", n))
	}

	r.running = true
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryLoop()

	r.logger.Info("queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("prefix", r.keyPrefix))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs up to ctx's deadline.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	r.logger.Info("queue draining", logger.String("prefix", r.keyPrefix))
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("queue drain timed out, in-flight jobs stay in processing", logger.Error(ctx.Err()))
		return fmt.Errorf("queue stop: %w", ctx.Err())
	case <-done:
		r.logger.Info("queue stopped")
		return nil
	}
}

// Enqueue appends a message for the job registered under msgType.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return fmt.Errorf("queue not running")
	}
	if !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	msg, err := newMessage(uuid.NewString(), msgType, payload, r.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msgType, err)
	}
	if err := r.client.LPush(ctx, r.readyKey(), data).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", msgType, err)
	}
	return nil
}

// PublishMessage implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

// Health pings Redis.
func (r *RedisQueue) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))

	for r.ctx.Err() == nil {
		raw, err := r.client.BLMove(r.ctx, r.readyKey(), r.processingKey(), "RIGHT", "LEFT", time.Second).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || r.ctx.Err() != nil {
				continue
			}
			r.logger.Error("blmove error", logger.Error(err))
			r.sleep(time.Second)
			continue
		}
		r.process(raw)
	}
	r.logger.Debug("queue worker stopped", logger.Int("worker_id", id))
}

// process runs one message and always acknowledges it: success drops it, failure
// reschedules or dead-letters a copy. Shutdown mid-job leaves it in processing.
func (r *RedisQueue) process(raw string) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		r.logger.Error("undecodable message dead-lettered", logger.Error(err))
		r.moveToDead(raw)
		return
	}

	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.moveToDead(raw)
		return
	}

	start := r.now()
	ctx, cancel := context.WithTimeout(r.ctx, r.config.JobTimeout)
	err := job.Handle(ctx, msg.Payload)
	cancel()

	if err != nil && r.ctx.Err() != nil {
		r.logger.Warn("job interrupted by shutdown", logger.String("id", msg.ID), logger.String("job", job.Name()))
		return
	}
	if err != nil {
		r.fail(raw, msg, job, err)
		return
	}
	r.ack(raw)
	r.logger.Debug("message processed",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Duration("elapsed", r.now().Sub(start)))
}

func (r *RedisQueue) fail(raw string, msg Message, job Job, err error) {
	msg.Attempts++
	fields := []logger.Field{
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.Error(err),
	}

	if msg.Attempts > r.config.RetryLimit {
		r.logger.Error("max retries reached", fields...)
		r.moveToDead(raw)
		return
	}

	data, merr := json.Marshal(msg)
	if merr != nil {
		r.logger.Error("marshal retry", logger.Error(merr))
		r.moveToDead(raw)
		return
	}
	due := r.now().Add(retryDelay(r.config.RetryDelay, msg.Attempts))

	pipe := r.client.TxPipeline()
	pipe.ZAdd(context.Background(), r.retryKey(), redis.Z{Score: float64(due.UnixMilli()), Member: data})
	pipe.LRem(context.Background(), r.processingKey(), 1, raw)
	if _, perr := pipe.Exec(context.Background()); perr != nil {
		r.logger.Error("schedule retry", logger.Error(perr))
		return
	}
	r.logger.Warn("job failed, retry scheduled", append(fields, logger.String("retry_at", due.Format(time.RFC3339)))...)
}

func (r *RedisQueue) ack(raw string) {
	if err := r.client.LRem(context.Background(), r.processingKey(), 1, raw).Err(); err != nil {
		r.logger.Error("ack message", logger.Error(err))
	}
}

func (r *RedisQueue) moveToDead(raw string) {
	pipe := r.client.TxPipeline()
	pipe.LPush(context.Background(), r.deadKey(), raw)
	pipe.LRem(context.Background(), r.processingKey(), 1, raw)
	if _, err := pipe.Exec(context.Background()); err != nil {
		r.logger.Error("dead-letter message", logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			now := strconv.FormatInt(r.now().UnixMilli(), 10)
			n, err := promoteDue.Run(r.ctx, r.client, []string{r.retryKey(), r.readyKey()}, now, 100).Int()
			if err != nil {
				if r.ctx.Err() == nil {
					r.logger.Error("promote retries", logger.Error(err))
				}
				continue
			}
			if n > 0 {
				r.logger.Debug("retries promoted", logger.Int("count", n))
			}
		}
	}
}

func (r *RedisQueue) requeueInflight(ctx context.Context) (int, error) {
	n := 0
	for {
		err := r.client.LMove(ctx, r.processingKey(), r.readyKey(), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (r *RedisQueue) sleep(d time.Duration) {
	select {
	case <-r.ctx.Done():
	case <-time.After(d):
	}
}

// retryDelay doubles base per attempt, capped at 32x.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return base * time.Duration(1<<(attempt-1))
}

func (r *RedisQueue) readyKey() string      { return r.keyPrefix + ":ready" }
func (r *RedisQueue) processingKey() string { return r.keyPrefix + ":processing" }
func (r *RedisQueue) retryKey() string      { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadKey() string       { return r.keyPrefix + ":dlq" }
