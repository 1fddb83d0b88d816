package logger

import (
	"context"
	"errors"
	"testing"
	"time"
)

type chanPublisher struct {
	ch chan []AggregatedLogEntry
}

func (p *chanPublisher) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	p.ch <- payload.([]AggregatedLogEntry)
	return nil
}

func TestCollectorAggregatesRepeatedErrors(t *testing.T) {
	pub := &chanPublisher{ch: make(chan []AggregatedLogEntry, 1)}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})
	defer l.RemoveCollector()

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		l.Error("send failed", String("kind", "web_push"), Error(boom))
	}
	l.Warn("not collected")
	l.Error("directory down", Error(boom))

	select {
	case logs := <-pub.ch:
		if len(logs) != 2 {
			t.Fatalf("expected 2 aggregated entries, got %d", len(logs))
		}
		counts := map[string]int{}
		for _, e := range logs {
			counts[e.Message] = e.Count
		}
		if counts["send failed"] != 2 || counts["directory down"] != 1 {
			t.Fatalf("unexpected counts %v", counts)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("collector did not flush")
	}
}

func TestWithKeepsCollector(t *testing.T) {
	pub := &chanPublisher{ch: make(chan []AggregatedLogEntry, 1)}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 1, Topic: "logs", Publisher: pub})
	defer l.RemoveCollector()

	l.With(String("component", "dispatcher")).Error("child error")

	select {
	case logs := <-pub.ch:
		if len(logs) != 1 || logs[0].Message != "child error" {
			t.Fatalf("unexpected logs %+v", logs)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("collector did not flush")
	}
}

func TestCloseFlushesPending(t *testing.T) {
	pub := &chanPublisher{ch: make(chan []AggregatedLogEntry, 1)}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	l.Error("queue down")
	l.RemoveCollector()

	select {
	case logs := <-pub.ch:
		if len(logs) != 1 || logs[0].Message != "queue down" {
			t.Fatalf("unexpected logs %+v", logs)
		}
	default:
		t.Fatalf("close should publish the pending window before returning")
	}
}
