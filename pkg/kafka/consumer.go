package kafka

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	applogger "SignalRelay/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler consumes the values of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// fetched is a message waiting in a lane together with what is needed to finish it.
type fetched struct {
	msg     kafka.Message
	handler MessageHandler
	commit  committer
}

// Consumer reads registered topics through a consumer group. Messages are spread
// over lanes by (topic, partition), and each lane is drained by one goroutine, so
// a partition is handled strictly in order and offsets commit in order.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *applogger.Logger
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	lanes    []chan fetched
	dlq      messageWriter

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	sleep    func(context.Context, time.Duration) bool
}

// NewConsumer validates the options. Nothing connects until Start.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:         "signalrelay",
		AutoOffsetReset: "earliest",
		WorkerCount:     1,
		BufferSize:      16,
		RetryMax:        3,
		BackoffMin:      50 * time.Millisecond,
		BackoffMax:      2 * time.Second,
		MinBytes:        1,
		MaxBytes:        10e6,
		HandleTimeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	lgr := cfg.Logger
	if lgr == nil {
		lgr = applogger.Nop()
	}

	initConsumerMetricsOnce()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		log:      lgr.With(applogger.String("component", "kafka_consumer")),
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		lanes:    make([]chan fetched, cfg.WorkerCount),
		ctx:      ctx,
		cancel:   cancel,
		sleep:    sleepCtx,
	}
	for i := range c.lanes {
		c.lanes[i] = make(chan fetched, cfg.BufferSize)
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: false,
		}
	}
	return c, nil
}

// RegisterHandler binds handler to its topic. Call before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens one group reader per topic and starts the lanes.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	start := kafka.FirstOffset
	if c.cfg.AutoOffsetReset == "latest" {
		start = kafka.LastOffset
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: start,
		})
	}

	for _, lane := range c.lanes {
		c.wg.Add(1)
		go c.drain(lane)
	}
	for topic, r := range c.readers {
		c.wg.Add(1)
		go c.fetch(topic, r)
	}

	c.log.Info("kafka consumer started",
		applogger.Int("lanes", len(c.lanes)),
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("topics", len(c.readers)))
	return nil
}

// Stop cancels fetching, waits for in-flight handlers up to ctx and closes the readers.
// Messages still buffered in lanes are not committed and will be redelivered.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.cancel()

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("close kafka reader", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("close dlq writer", applogger.Error(cerr))
			}
		}
		c.log.Info("kafka consumer stopped")
	})
	return err
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.wg.Done()

	handler := c.handlers[topic]
	for {
		msg, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Error("kafka fetch failed", applogger.String("topic", topic), applogger.Error(err))
			if !c.sleep(c.ctx, time.Second) {
				return
			}
			continue
		}

		lane := c.lanes[laneFor(topic, msg.Partition, len(c.lanes))]
		select {
		case lane <- fetched{msg: msg, handler: handler, commit: r}:
			consumerBuffered.WithLabelValues(topic).Inc()
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) drain(lane chan fetched) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-lane:
			consumerBuffered.WithLabelValues(f.msg.Topic).Dec()
			c.handle(f)
		}
	}
}

// laneFor maps a partition to a lane index in [0, n).
func laneFor(topic string, partition, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return int((h.Sum32() + uint32(partition)) % uint32(n))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

var (
	consumerBuffered      *prometheus.GaugeVec
	consumerMessages      *prometheus.CounterVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerOnce          sync.Once
	consumerRegisterer    prometheus.Registerer = prometheus.DefaultRegisterer
)

// SetConsumerMetricsRegisterer sets the registerer for consumer and producer metrics.
// Call it before the first NewConsumer or NewProducer.
func SetConsumerMetricsRegisterer(reg prometheus.Registerer) { consumerRegisterer = reg }

func initConsumerMetricsOnce() {
	consumerOnce.Do(func() {
		f := promauto.With(consumerRegisterer)
		consumerBuffered = f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalrelay_kafka_consumer_buffered",
			Help: "Fetched messages waiting for a lane",
		}, []string{"topic"})
		consumerMessages = f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalrelay_kafka_consumer_messages_total",
			Help: "Consumed messages by outcome",
		}, []string{"topic", "result"})
		consumerHandleLatency = f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "signalrelay_kafka_consumer_handle_seconds",
			Help: "Handling time per message including retries",
		}, []string{"topic"})
	})
}
