package clickhouse

import (
	"context"
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

func TestOptionsNative(t *testing.T) {
	o := options(ClientConfig{
		Host:        "ch.local",
		Database:    "relay",
		User:        "writer",
		Password:    "p@ss/word",
		DialTimeout: 5 * time.Second,
		AsyncInsert: true,
		MaxExecTime: 30 * time.Second,
	})
	if o.Protocol != ch.Native || o.Addr[0] != "ch.local:9000" {
		t.Fatalf("unexpected endpoint %v %v", o.Protocol, o.Addr)
	}
	if o.Auth.Database != "relay" || o.Auth.Password != "p@ss/word" {
		t.Fatalf("unexpected auth %+v", o.Auth)
	}
	if o.Settings["async_insert"] != 1 || o.Settings["wait_for_async_insert"] != 0 || o.Settings["max_execution_time"] != 30 {
		t.Fatalf("unexpected settings %v", o.Settings)
	}
}

func TestOptionsHTTPDefaultsPort(t *testing.T) {
	o := options(ClientConfig{Host: "ch", UseHTTP: true})
	if o.Protocol != ch.HTTP || o.Addr[0] != "ch:8123" {
		t.Fatalf("unexpected endpoint %v %v", o.Protocol, o.Addr)
	}
	if len(o.Settings) != 0 {
		t.Fatalf("no settings expected, got %v", o.Settings)
	}

	o = options(ClientConfig{Host: "ch", UseHTTP: true, Port: 18123})
	if o.Addr[0] != "ch:18123" {
		t.Fatalf("explicit port ignored: %v", o.Addr)
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(context.Background()); err == nil {
		t.Fatalf("expected error without host")
	}
}
