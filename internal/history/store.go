// Package history keeps a rolling per-user consultation transcript used to
// derive depth and engagement when a request carries no explicit history.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/twinlabs/twind/internal/persona"
)

// DefaultLimit is the number of messages retained per user.
const DefaultLimit = 50

// DefaultTTL is how long an idle transcript survives.
const DefaultTTL = 24 * time.Hour

// Store is a rolling transcript of recent consultation turns.
type Store interface {
	// Append adds messages to the end of the user's transcript, trimming the
	// oldest entries past the retention limit.
	Append(ctx context.Context, user string, msgs ...persona.Message) error
	// Recent returns the user's transcript oldest first.
	Recent(ctx context.Context, user string) ([]persona.Message, error)
	// Clear drops the user's transcript.
	Clear(ctx context.Context, user string) error
}

// MemoryStore is the in-process fallback used when no Redis address is
// configured. Entries expire lazily on read.
type MemoryStore struct {
	limit int
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	msgs    []persona.Message
	touched time.Time
}

func NewMemoryStore(limit int, ttl time.Duration) *MemoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		limit:   limit,
		ttl:     ttl,
		entries: make(map[string]*memoryEntry),
	}
}

func (s *MemoryStore) Append(ctx context.Context, user string, msgs ...persona.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[user]
	if e == nil || time.Since(e.touched) > s.ttl {
		e = &memoryEntry{}
		s.entries[user] = e
	}
	e.msgs = append(e.msgs, msgs...)
	if len(e.msgs) > s.limit {
		e.msgs = e.msgs[len(e.msgs)-s.limit:]
	}
	e.touched = time.Now()
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, user string) ([]persona.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[user]
	if e == nil {
		return nil, nil
	}
	if time.Since(e.touched) > s.ttl {
		delete(s.entries, user)
		return nil, nil
	}
	out := make([]persona.Message, len(e.msgs))
	copy(out, e.msgs)
	return out, nil
}

func (s *MemoryStore) Clear(ctx context.Context, user string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, user)
	return nil
}
