package kafka

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	applogger "SignalRelay/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// handle runs one message to completion: retried in place up to RetryMax, then
// dead-lettered. The offset is committed on success or after a successful DLQ
// write; otherwise it stays uncommitted so the group redelivers after a restart.
func (c *Consumer) handle(f fetched) {
	start := time.Now()
	topic := f.msg.Topic

	var err error
	attempts := 0
	for {
		attempts++
		err = c.invoke(f.handler, f.msg.Value)
		if err == nil || attempts > c.cfg.RetryMax {
			break
		}
		if !c.sleep(c.ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)) {
			return
		}
	}
	consumerHandleLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())

	if err == nil {
		consumerMessages.WithLabelValues(topic, "ok").Inc()
		c.commit(f)
		return
	}

	c.log.Error("kafka message failed",
		applogger.String("topic", topic),
		applogger.Int("partition", f.msg.Partition),
		applogger.Int64("offset", f.msg.Offset),
		applogger.Int("attempts", attempts),
		applogger.Error(err))

	if c.dlq == nil {
		consumerMessages.WithLabelValues(topic, "failed").Inc()
		return
	}
	if derr := c.deadLetter(f.msg, err); derr != nil {
		consumerMessages.WithLabelValues(topic, "failed").Inc()
		c.log.Error("dlq write failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(derr))
		return
	}
	consumerMessages.WithLabelValues(topic, "dead").Inc()
	c.commit(f)
}

// invoke calls the handler under HandleTimeout. A panic counts as a failed attempt.
func (c *Consumer) invoke(h MessageHandler, value []byte) (err error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.HandleTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, value)
}

func (c *Consumer) deadLetter(msg kafka.Message, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	headers := make([]kafka.Header, 0, len(msg.Headers)+3)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "source_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "source_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)
	return c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
}

func (c *Consumer) commit(f fetched) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = f.commit.CommitMessages(ctx, f.msg)
		cancel()
		if err == nil {
			return
		}
		if !c.sleep(context.Background(), backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt)) {
			break
		}
	}
	c.log.Error("kafka commit failed",
		applogger.String("topic", f.msg.Topic),
		applogger.Int64("offset", f.msg.Offset),
		applogger.Error(err))
}

// backoffWithJitter doubles min per attempt up to max and takes off up to half.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt < 32 {
		if d := min << uint(attempt-1); d > 0 && d < max {
			exp = d
		}
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}
