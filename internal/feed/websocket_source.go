package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

const (
	wsDialTimeout       = 10 * time.Second
	wsBaseReconnect     = time.Second
	wsMaxReconnect      = 30 * time.Second
	wsSubscribeAction   = "subscribe"
	wsUnsubscribeAction = "unsubscribe"
)

type wsFrame struct {
	Action    string         `json:"action,omitempty"`
	Table     string         `json:"table,omitempty"`
	EventType EventType      `json:"eventType,omitempty"`
	Row       map[string]any `json:"row,omitempty"`
}

// WebsocketSource consumes the remote store's realtime channel: one logical
// table subscription per subscribe frame, change events delivered as JSON
// frames. The connection reconnects with backoff and resubscribes to every
// registered table.
type WebsocketSource struct {
	url string

	mu       sync.Mutex
	handlers map[string]Handler
	conn     *websocket.Conn
	started  bool
	closed   bool
	cancel   context.CancelFunc

	// the connection permits one writer at a time; every outbound frame
	// goes through writeFrame
	writeMu sync.Mutex
}

func (s *WebsocketSource) writeFrame(ctx context.Context, conn *websocket.Conn, frame wsFrame) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsDialTimeout)
	defer cancel()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wsjson.Write(writeCtx, conn, frame)
}

func NewWebsocketSource(url string) *WebsocketSource {
	return &WebsocketSource{
		url:      strings.TrimSpace(url),
		handlers: map[string]Handler{},
	}
}

type websocketSubscription struct {
	source *WebsocketSource
	table  string
}

func (s *WebsocketSource) Subscribe(ctx context.Context, table string, handler Handler) (Subscription, error) {
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
	s.handlers[table] = handler
	if !s.started {
		s.started = true
		runCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go s.run(runCtx)
	} else if s.conn != nil {
		conn := s.conn
		go func() {
			_ = s.writeFrame(context.Background(), conn, wsFrame{Action: wsSubscribeAction, Table: table})
		}()
	}
	return &websocketSubscription{source: s, table: table}, nil
}

func (s *WebsocketSource) run(ctx context.Context) {
	backoff := wsBaseReconnect
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := s.connect(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > wsMaxReconnect {
				backoff = wsMaxReconnect
			}
			continue
		}
		backoff = wsBaseReconnect
		s.readLoop(ctx, conn)
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "reconnecting")
	}
}

func (s *WebsocketSource) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, wsDialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	tables := make([]string, 0, len(s.handlers))
	for table := range s.handlers {
		tables = append(tables, table)
	}
	s.conn = conn
	s.mu.Unlock()
	for _, table := range tables {
		if err := s.writeFrame(ctx, conn, wsFrame{Action: wsSubscribeAction, Table: table}); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
			return nil, err
		}
	}
	return conn, nil
}

func (s *WebsocketSource) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame wsFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return
		}
		if frame.Table == "" || frame.EventType == "" {
			continue
		}
		s.mu.Lock()
		handler, ok := s.handlers[frame.Table]
		s.mu.Unlock()
		if !ok {
			continue
		}
		handler(Change{Table: frame.Table, EventType: frame.EventType, Row: frame.Row})
	}
}

func (s *WebsocketSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.handlers = map[string]Handler{}
	conn := s.conn
	s.conn = nil
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "shutdown")
	}
	return nil
}

func (sub *websocketSubscription) Unsubscribe() error {
	sub.source.mu.Lock()
	delete(sub.source.handlers, sub.table)
	conn := sub.source.conn
	sub.source.mu.Unlock()
	if conn != nil {
		return sub.source.writeFrame(context.Background(), conn, wsFrame{Action: wsUnsubscribeAction, Table: sub.table})
	}
	return nil
}
