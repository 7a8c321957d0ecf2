package feed

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

const (
	notifyChannelPrefix   = "rmr_changes_"
	listenerMinReconnect  = 2 * time.Second
	listenerMaxReconnect  = time.Minute
	listenerPingInterval  = 90 * time.Second
	listenerSubscribeWait = 5 * time.Second
)

// PostgresSource consumes LISTEN/NOTIFY channels, one per table. Row change
// triggers in the database publish JSON payloads of the form
// {"eventType":"insert","row":{...}} on rmr_changes_<table>.
type PostgresSource struct {
	dsn string

	mu       sync.Mutex
	listener *pq.Listener
	handlers map[string]Handler
	started  bool
	closed   bool
	done     chan struct{}
}

func NewPostgresSource(dsn string) *PostgresSource {
	return &PostgresSource{
		dsn:      strings.TrimSpace(dsn),
		handlers: map[string]Handler{},
		done:     make(chan struct{}),
	}
}

type postgresSubscription struct {
	source  *PostgresSource
	table   string
	channel string
}

func (s *PostgresSource) Subscribe(ctx context.Context, table string, handler Handler) (Subscription, error) {
	table = strings.TrimSpace(table)
	if table == "" || handler == nil {
		return nil, domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrFeedClosed
	}
	if _, exists := s.handlers[table]; exists {
		return nil, domain.ErrAlreadyExists
	}
	if s.listener == nil {
		s.listener = pq.NewListener(s.dsn, listenerMinReconnect, listenerMaxReconnect, nil)
	}
	channel := notifyChannelPrefix + table
	if err := s.listener.Listen(channel); err != nil {
		return nil, err
	}
	s.handlers[table] = handler
	if !s.started {
		s.started = true
		go s.dispatchLoop()
	}
	return &postgresSubscription{source: s, table: table, channel: channel}, nil
}

func (s *PostgresSource) dispatchLoop() {
	ping := time.NewTicker(listenerPingInterval)
	defer ping.Stop()
	for {
		s.mu.Lock()
		listener := s.listener
		closed := s.closed
		s.mu.Unlock()
		if closed || listener == nil {
			return
		}
		select {
		case <-s.done:
			return
		case <-ping.C:
			_ = listener.Ping()
		case notification, ok := <-listener.Notify:
			if !ok {
				return
			}
			if notification == nil {
				// nil notification signals a reconnect; rows may have been
				// missed, handlers see only subsequent changes.
				continue
			}
			s.deliver(notification)
		}
	}
}

func (s *PostgresSource) deliver(notification *pq.Notification) {
	table := strings.TrimPrefix(notification.Channel, notifyChannelPrefix)
	s.mu.Lock()
	handler, ok := s.handlers[table]
	s.mu.Unlock()
	if !ok {
		return
	}
	var payload struct {
		EventType EventType      `json:"eventType"`
		Row       map[string]any `json:"row"`
	}
	if err := json.Unmarshal([]byte(notification.Extra), &payload); err != nil {
		return
	}
	handler(Change{Table: table, EventType: payload.EventType, Row: payload.Row})
}

func (s *PostgresSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	listener := s.listener
	s.listener = nil
	s.handlers = map[string]Handler{}
	s.mu.Unlock()
	if listener != nil {
		return listener.Close()
	}
	return nil
}

func (sub *postgresSubscription) Unsubscribe() error {
	sub.source.mu.Lock()
	defer sub.source.mu.Unlock()
	delete(sub.source.handlers, sub.table)
	if sub.source.listener != nil {
		return sub.source.listener.Unlisten(sub.channel)
	}
	return nil
}
