package feed

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Change is one remote-origin row notification.
type Change struct {
	Table     string         `json:"table"`
	EventType EventType      `json:"eventType"`
	Row       map[string]any `json:"row"`
}

type Handler func(change Change)

type Subscription interface {
	Unsubscribe() error
}

// Source is the remote store's push channel: one logical subscription per
// table.
type Source interface {
	Subscribe(ctx context.Context, table string, handler Handler) (Subscription, error)
	Close() error
}

// BuildSourceFromDSN selects a feed source by scheme: postgres LISTEN/NOTIFY,
// websocket realtime, or in-memory.
func BuildSourceFromDSN(dsn string) (Source, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, domain.ErrInvalidInput
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "postgres", "postgresql":
		return NewPostgresSource(dsn), nil
	case "ws", "wss":
		return NewWebsocketSource(dsn), nil
	case "memory", "mem", "inmem":
		return NewMemorySource(), nil
	default:
		return nil, fmt.Errorf("unsupported feed source scheme: %s", parsed.Scheme)
	}
}
