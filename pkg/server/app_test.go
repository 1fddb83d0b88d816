package server

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	xhttp "SignalRelay/pkg/http"
	applogger "SignalRelay/pkg/logger"
)

type recordingDrain struct {
	order *[]string
}

func (d recordingDrain) Wait(context.Context) error {
	*d.order = append(*d.order, "drain")
	return nil
}

func TestRunContextShutsDownInOrder(t *testing.T) {
	var order []string
	srv := xhttp.NewServer(applogger.Nop(), nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithMetrics("", nil))
	res := Resources{
		{Name: "history", Close: func() error { order = append(order, "history"); return nil }},
		{Name: "directory", Close: func() error { order = append(order, "directory"); return errors.New("busy") }},
		{Name: "cache", Close: func() error { order = append(order, "cache"); return nil }},
	}
	app := New(nil, applogger.Nop(), srv, nil, nil, nil, recordingDrain{order: &order}, res)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := app.RunContext(ctx)

	if got := strings.Join(order, ","); got != "drain,history,directory,cache" {
		t.Fatalf("unexpected shutdown order %s", got)
	}
	if err == nil || !strings.Contains(err.Error(), "directory: busy") {
		t.Fatalf("close errors should be reported, got %v", err)
	}
}
