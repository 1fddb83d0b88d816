package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func bufferLogger(level zerolog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Logger{zl: zerolog.New(&buf).Level(level)}, &buf
}

func TestFieldsAreRendered(t *testing.T) {
	l, buf := bufferLogger(zerolog.DebugLevel)
	zerolog.DurationFieldUnit = time.Millisecond

	l.With(String("component", "dispatcher")).Info("sent",
		Int64("subscriber_id", 42),
		Bool("partial", true),
		Float64("ratio", 0.5),
		Duration("elapsed", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got["component"] != "dispatcher" || got["subscriber_id"] != float64(42) || got["partial"] != true {
		t.Fatalf("unexpected entry %v", got)
	}
	if got["elapsed"] != float64(1500) || got["error"] != "boom" || got["message"] != "sent" {
		t.Fatalf("unexpected entry %v", got)
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := bufferLogger(zerolog.WarnLevel)
	l.Debug("hidden")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("below-level entries written: %q", buf.String())
	}
	l.Warn("shown")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Fatalf("warn entry missing")
	}
}

func TestErrorFieldKeyValue(t *testing.T) {
	k, v := Error(errors.New("x")).GetKeyValue()
	if k != "error" || v != "x" {
		t.Fatalf("got %s=%v", k, v)
	}
	if _, v := Error(nil).GetKeyValue(); v != nil {
		t.Fatalf("nil error should have nil value, got %v", v)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatalf("expected level error")
	}
}
