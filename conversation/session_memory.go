package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// SessionStore keeps sessions between events. Implementations evict sessions
// that have not been saved for longer than their TTL.
type SessionStore interface {
	// Load returns ErrSessionNotFound for unknown or expired users.
	Load(ctx context.Context, userID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID string) error
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemorySessionStore is an in-process SessionStore. Sessions are stored
// serialized so callers never share memory with the store. Expired entries
// are dropped on access and by a sweep that runs from Save at most once per
// cleanup interval; no goroutine is started.
type MemorySessionStore struct {
	mu              sync.RWMutex
	sessions        map[string]memoryEntry
	ttl             time.Duration
	cleanupInterval time.Duration
	lastSweep       time.Time
	now             func() time.Time
}

// NewMemorySessionStore creates a store evicting sessions idle for longer than ttl.
func NewMemorySessionStore(ttl, cleanupInterval time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions:        make(map[string]memoryEntry),
		ttl:             ttl,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
}

// Load implements SessionStore.
func (m *MemorySessionStore) Load(ctx context.Context, userID string) (*Session, error) {
	m.mu.RLock()
	entry, ok := m.sessions[userID]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.now().After(entry.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent Save may have refreshed it.
		if cur, ok := m.sessions[userID]; ok && m.now().After(cur.expiresAt) {
			delete(m.sessions, userID)
		}
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}

	var s Session
	if err := json.Unmarshal(entry.data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", userID, err)
	}
	return &s, nil
}

// Save implements SessionStore. Saving refreshes the TTL.
func (m *MemorySessionStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.UserID, err)
	}

	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.UserID] = memoryEntry{data: data, expiresAt: now.Add(m.ttl)}

	if m.cleanupInterval > 0 && now.Sub(m.lastSweep) >= m.cleanupInterval {
		for id, e := range m.sessions {
			if now.After(e.expiresAt) {
				delete(m.sessions, id)
			}
		}
		m.lastSweep = now
	}
	return nil
}

// Delete implements SessionStore.
func (m *MemorySessionStore) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions, expired ones included until swept.
func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
