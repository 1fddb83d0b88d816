package queue

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type samplePayload struct {
	SubscriberID int64  `json:"subscriber_id"`
	Kind         string `json:"kind"`
}

func TestParsePayloadShapes(t *testing.T) {
	raw := json.RawMessage(`{"subscriber_id":7,"kind":"web_push"}`)
	p, err := ParsePayload[samplePayload](raw)
	if err != nil || p.SubscriberID != 7 || p.Kind != "web_push" {
		t.Fatalf("raw message: %+v %v", p, err)
	}

	m := map[string]interface{}{"subscriber_id": float64(9), "kind": "mobile_push"}
	p, err = ParsePayload[samplePayload](m)
	if err != nil || p.SubscriberID != 9 {
		t.Fatalf("map: %+v %v", p, err)
	}

	p, err = ParsePayload[samplePayload](samplePayload{SubscriberID: 3})
	if err != nil || p.SubscriberID != 3 {
		t.Fatalf("value: %+v %v", p, err)
	}

	if _, err := ParsePayload[samplePayload]("not json"); err == nil {
		t.Fatalf("expected error for a payload that does not decode")
	}
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	base := 10 * time.Second
	cases := map[int]time.Duration{
		0:  10 * time.Second,
		1:  10 * time.Second,
		2:  20 * time.Second,
		3:  40 * time.Second,
		6:  320 * time.Second,
		12: 320 * time.Second,
	}
	for attempt, want := range cases {
		if got := retryDelay(base, attempt); got != want {
			t.Fatalf("attempt %d: got %s want %s", attempt, got, want)
		}
	}
}

func TestQueueKeys(t *testing.T) {
	q := NewRedisQueue(nil, nil, nil, WithKeyPrefix("test:q"))
	if q.readyKey() != "test:q:ready" || q.processingKey() != "test:q:processing" ||
		q.retryKey() != "test:q:retry" || q.deadKey() != "test:q:dlq" {
		t.Fatalf("unexpected keys %s %s %s %s", q.readyKey(), q.processingKey(), q.retryKey(), q.deadKey())
	}
	if q.config.Workers != 1 || q.config.JobTimeout != 30*time.Second || q.config.RetryDelay != 10*time.Second {
		t.Fatalf("defaults not applied: %+v", q.config)
	}
}

func TestNewRedisQueueCopiesConfig(t *testing.T) {
	cfg := &QueueConfig{Workers: 3}
	q := NewRedisQueue(nil, cfg, nil)
	if cfg.RetryDelay != 0 {
		t.Fatalf("caller config must not be mutated")
	}
	if q.config.Workers != 3 {
		t.Fatalf("workers not kept: %d", q.config.Workers)
	}
}

type nopJob struct{ typ string }

func (j nopJob) Name() string                               { return "nop-" + j.typ }
func (j nopJob) Type() string                               { return j.typ }
func (j nopJob) Handle(context.Context, interface{}) error { return nil }

func TestEnqueueRequiresRunningQueueAndKnownType(t *testing.T) {
	q := NewRedisQueue(nil, nil, nil)
	q.RegisterJob(nopJob{typ: "a"})
	q.RegisterJob(nopJob{typ: "a"})
	if len(q.jobs) != 1 {
		t.Fatalf("duplicate registration should be ignored")
	}

	if err := q.Enqueue(context.Background(), "a", nil); err == nil || !strings.Contains(err.Error(), "not running") {
		t.Fatalf("expected not running error, got %v", err)
	}

	q.running = true
	if err := q.PublishMessage(context.Background(), "b", nil); err == nil || !strings.Contains(err.Error(), "no job registered") {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}

func TestMessageKeepsPayloadEncoded(t *testing.T) {
	msg, err := newMessage("id-1", "invalidate", samplePayload{SubscriberID: 5, Kind: "web_push"}, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Message
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	p, err := ParsePayload[samplePayload](back.Payload)
	if err != nil || p.SubscriberID != 5 || p.Kind != "web_push" {
		t.Fatalf("parse: %+v %v", p, err)
	}
	if _, err := ParsePayload[samplePayload](nil); err == nil {
		t.Fatalf("nil payload should fail")
	}
}
