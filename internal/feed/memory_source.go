package feed

import (
	"context"
	"sync"

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

// MemorySource is an in-process feed source. Used by tests and by deployments
// that push changes through the HTTP surface instead of a realtime channel.
type MemorySource struct {
	mu       sync.Mutex
	handlers map[string]Handler
	closed   bool
}

func NewMemorySource() *MemorySource {
	return &MemorySource{handlers: map[string]Handler{}}
}

type memorySubscription struct {
	source *MemorySource
	table  string
}

func (s *MemorySource) Subscribe(_ context.Context, table string, handler Handler) (Subscription, error) {
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
	return &memorySubscription{source: s, table: table}, nil
}

// Publish delivers a change to the table's handler synchronously.
func (s *MemorySource) Publish(change Change) bool {
	s.mu.Lock()
	handler, ok := s.handlers[change.Table]
	closed := s.closed
	s.mu.Unlock()
	if !ok || closed {
		return false
	}
	handler(change)
	return true
}

func (s *MemorySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.handlers = map[string]Handler{}
	return nil
}

func (sub *memorySubscription) Unsubscribe() error {
	sub.source.mu.Lock()
	defer sub.source.mu.Unlock()
	delete(sub.source.handlers, sub.table)
	return nil
}
