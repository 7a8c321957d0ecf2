package store

import (
	"sync"

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

// Store serializes dispatches onto one logical queue and hands out stable
// state snapshots. It holds no asynchronous behaviour itself.
type Store struct {
	mu    sync.RWMutex
	state State
}

func New() *Store {
	return &Store{state: NewState()}
}

// Dispatch applies one action. Actions for the same entity id are applied in
// dispatch order.
func (s *Store) Dispatch(action Action) {
	s.mu.Lock()
	s.state = Apply(s.state, action)
	s.mu.Unlock()
}

// Snapshot returns the current state. The returned value is stable: later
// dispatches replace maps rather than mutating them.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) Client(id string) (domain.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.state.Clients[id]
	return client, ok
}

func (s *Store) Session(id string) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.state.Sessions[id]
	return session, ok
}

func (s *Store) Clients() []domain.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clients := make([]domain.Client, 0, len(s.state.Clients))
	for _, client := range s.state.Clients {
		clients = append(clients, client)
	}
	return clients
}

func (s *Store) Sessions() []domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]domain.Session, 0, len(s.state.Sessions))
	for _, session := range s.state.Sessions {
		sessions = append(sessions, session)
	}
	return sessions
}
