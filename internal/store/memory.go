// internal/store/memory.go
//
// In-memory registry of live game sessions.
// Live sessions are never persisted: a session and its hub exist only while
// the process runs (finished rounds are recorded by the records package).
//
// Characteristics:
//   - Entries keyed by session ID in a map guarded by an RWMutex.
//   - Get refreshes the entry's last-touched time; Prune evicts idle entries.
//   - Delete/Prune close the session (stopping its tick) and its hub.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robalobadob/concentration/internal/broadcast"
	"github.com/robalobadob/concentration/internal/game"
)

// ErrNotFound is returned by Get for unknown session IDs.
var ErrNotFound = errors.New("store: session not found")

// Entry is a live session plus what the server needs to route it.
type Entry struct {
	Session *game.Session
	Hub     *broadcast.Hub
	UserID  string // set when the creator was signed in
	AnonID  string // guest cookie otherwise

	// DailyDate is set for sessions dealt from the shared deck of that day.
	DailyDate string

	// Rounds serializes round hand-offs (restart, delete, eviction) with the
	// records writes that go with them.
	Rounds sync.Mutex
}

// Store defines the registry interface for live sessions.
type Store interface {
	// Save adds or replaces the entry for e.Session.ID().
	Save(ctx context.Context, e *Entry) error

	// Get retrieves an entry by session ID and marks it as used.
	Get(ctx context.Context, id string) (*Entry, error)

	// Delete removes and closes an entry. Unknown IDs are not an error.
	Delete(ctx context.Context, id string) error

	// Prune removes and closes entries not used since before and returns them.
	Prune(ctx context.Context, before time.Time) ([]*Entry, error)
}

type item struct {
	entry   *Entry
	touched time.Time
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu    sync.RWMutex     // guards items
	items map[string]*item // keyed by session ID
	now   func() time.Time
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{items: make(map[string]*item), now: time.Now}
}

// Save adds or updates the entry in the map.
func (m *memory) Save(ctx context.Context, e *Entry) error {
	if e == nil || e.Session == nil {
		return errors.New("store: entry without session")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[e.Session.ID()] = &item{entry: e, touched: m.now()}
	return nil
}

// Get looks up an entry by ID.
func (m *memory) Get(ctx context.Context, id string) (*Entry, error) {
	m.mu.RLock()
	it, ok := m.items[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	m.mu.Lock()
	it.touched = m.now()
	m.mu.Unlock()
	return it.entry, nil
}

// Delete drops the entry and releases its timers and subscribers.
func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	it, ok := m.items[id]
	delete(m.items, id)
	m.mu.Unlock()
	if ok {
		closeEntry(it.entry)
	}
	return nil
}

// Prune evicts entries idle since before.
func (m *memory) Prune(ctx context.Context, before time.Time) ([]*Entry, error) {
	var evicted []*Entry
	m.mu.Lock()
	for id, it := range m.items {
		if it.touched.Before(before) {
			evicted = append(evicted, it.entry)
			delete(m.items, id)
		}
	}
	m.mu.Unlock()

	for _, e := range evicted {
		closeEntry(e)
	}
	return evicted, nil
}

func closeEntry(e *Entry) {
	e.Session.Close()
	if e.Hub != nil {
		e.Hub.Close()
	}
}
