// internal/store/memory.go
//
// In-memory implementation of the Store interface for hosted game sessions.
//
// Characteristics:
//   - Stores *game.Session values keyed by ID in a map.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Every Save or Get counts as activity; Prune drops sessions idle for too long.
//   - State is lost when the process restarts.
//   - ErrNotFound is returned for missing session IDs.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Ninjadash54/simonsays/internal/game"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("not found")

// Store defines the interface for hosted game sessions.
type Store interface {
	// Save adds or replaces a session.
	Save(ctx context.Context, s *game.Session) error

	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*game.Session, error)

	// Delete removes a session; deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// Prune removes sessions without activity for idle and reports how many went.
	Prune(ctx context.Context, idle time.Duration) int

	// Len reports how many sessions are held.
	Len() int
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu       sync.RWMutex      // guards sessions map
	now      func() time.Time  // activity clock
	sessions map[string]*entry // keyed by Session.ID
}

type entry struct {
	sess *game.Session
	seen time.Time
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{now: time.Now, sessions: make(map[string]*entry)}
}

func (m *memory) Save(ctx context.Context, s *game.Session) error {
	if s == nil || s.ID == "" {
		return errors.New("session without id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &entry{sess: s, seen: m.now()}
	return nil
}

func (m *memory) Get(ctx context.Context, id string) (*game.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok {
		e.seen = m.now()
		return e.sess, nil
	}
	return nil, ErrNotFound
}

func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memory) Prune(ctx context.Context, idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.sessions {
		if e.seen.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
