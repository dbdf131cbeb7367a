package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryTokenStore is a process-local TokenStore.
type MemoryTokenStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{sessions: make(map[string]Session)}
}

// Get returns a copy of the stored session.
func (m *MemoryTokenStore) Get(_ context.Context, userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	return &s, nil
}

// Put stores a copy of s.
func (m *MemoryTokenStore) Put(_ context.Context, s *Session) error {
	if s == nil || s.UserID == "" {
		return fmt.Errorf("session without user id")
	}
	m.mu.Lock()
	m.sessions[s.UserID] = *s
	m.mu.Unlock()
	return nil
}

// MemoryPendingStore is a process-local PendingStore. Consumed states are
// remembered for ReuseMarkerRetention past their expiry so a replay is
// reported as ErrStateReused rather than ErrUnknownState.
type MemoryPendingStore struct {
	mu       sync.Mutex
	pending  map[string]PendingAuthorization
	consumed map[string]time.Time // state -> expiry of the tombstone
}

// NewMemoryPendingStore creates an empty in-memory pending store.
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{
		pending:  make(map[string]PendingAuthorization),
		consumed: make(map[string]time.Time),
	}
}

// Create records p. A state collision is an error.
func (m *MemoryPendingStore) Create(_ context.Context, p *PendingAuthorization) error {
	if p == nil || p.State == "" {
		return fmt.Errorf("pending authorization without state")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[p.State]; ok {
		return fmt.Errorf("state %q already pending", p.State)
	}
	m.pending[p.State] = *p
	return nil
}

// Consume removes the entry for state and returns it.
func (m *MemoryPendingStore) Consume(_ context.Context, state string, now time.Time) (*PendingAuthorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[state]
	if !ok {
		if _, used := m.consumed[state]; used {
			return nil, ErrStateReused
		}
		return nil, ErrUnknownState
	}

	delete(m.pending, state)
	m.consumed[state] = p.ExpiresAt.Add(ReuseMarkerRetention)

	if !now.Before(p.ExpiresAt) {
		return nil, ErrStateExpired
	}
	return &p, nil
}

// Sweep drops expired pending entries and tombstones.
func (m *MemoryPendingStore) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for state, p := range m.pending {
		if !now.Before(p.ExpiresAt) {
			delete(m.pending, state)
			removed++
		}
	}
	for state, exp := range m.consumed {
		if !now.Before(exp) {
			delete(m.consumed, state)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of in-flight authorizations.
func (m *MemoryPendingStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
