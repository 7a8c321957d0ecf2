package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

func TestBuildSourceFromDSN(t *testing.T) {
	cases := []struct {
		dsn  string
		want string
	}{
		{"postgres://user@localhost/db", "*feed.PostgresSource"},
		{"wss://realtime.example.com/feed", "*feed.WebsocketSource"},
		{"memory://", "*feed.MemorySource"},
	}
	for _, tc := range cases {
		source, err := BuildSourceFromDSN(tc.dsn)
		if err != nil {
			t.Fatalf("%s: %v", tc.dsn, err)
		}
		if got := typeName(source); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.dsn, tc.want, got)
		}
		_ = source.Close()
	}

	if _, err := BuildSourceFromDSN(""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("empty DSN: expected ErrInvalidInput, got %v", err)
	}
	if _, err := BuildSourceFromDSN("ftp://example.com"); err == nil {
		t.Fatal("unsupported scheme must be rejected")
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *PostgresSource:
		return "*feed.PostgresSource"
	case *WebsocketSource:
		return "*feed.WebsocketSource"
	case *MemorySource:
		return "*feed.MemorySource"
	default:
		return "unknown"
	}
}

func TestMemorySourceLifecycle(t *testing.T) {
	source := NewMemorySource()
	ctx := context.Background()

	var got []Change
	subscription, err := source.Subscribe(ctx, "clients", func(change Change) { got = append(got, change) })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := source.Subscribe(ctx, "clients", func(Change) {}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate subscription: expected ErrAlreadyExists, got %v", err)
	}
	if _, err := source.Subscribe(ctx, "", func(Change) {}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("empty table: expected ErrInvalidInput, got %v", err)
	}

	if !source.Publish(Change{Table: "clients", EventType: EventInsert, Row: map[string]any{"id": "c1"}}) {
		t.Fatal("publish to a subscribed table must deliver")
	}
	if len(got) != 1 || got[0].Row["id"] != "c1" {
		t.Fatalf("unexpected delivery %v", got)
	}
	if source.Publish(Change{Table: "sessions"}) {
		t.Fatal("publish to an unsubscribed table must report false")
	}

	if err := subscription.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if source.Publish(Change{Table: "clients"}) {
		t.Fatal("publish after unsubscribe must report false")
	}

	if err := source.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := source.Subscribe(ctx, "clients", func(Change) {}); !errors.Is(err, domain.ErrFeedClosed) {
		t.Fatalf("closed source: expected ErrFeedClosed, got %v", err)
	}
}
