package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientSetsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(time.Second), WithUserAgent("SignalRelay/test"))
	req, _ := http.NewRequest(http.MethodPost, srv.URL, nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	if got != "SignalRelay/test" {
		t.Fatalf("unexpected user agent %q", got)
	}
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("error statuses should pass through, got %d", resp.StatusCode)
	}
}

func TestClientWrapsTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	req, _ := http.NewRequest(http.MethodGet, url, nil)
	_, err := NewClient().Do(req)
	if err == nil {
		t.Fatalf("expected error from closed server")
	}
	var uerr interface{ Timeout() bool }
	if !errors.As(err, &uerr) {
		t.Fatalf("underlying url error should be reachable, got %T", err)
	}
}
