package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = 6 * time.Hour

type entry struct {
	mu      sync.Mutex
	refs    int
	session *EditSession
}

// Store holds one EditSession per user and linearizes access per user. Calls for
// different users never block each other beyond the brief map lookup.
type Store struct {
	mu      sync.Mutex
	entries map[int64]*entry
	ttl     time.Duration
	now     func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		entries: make(map[int64]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *Store) acquire(userID int64) *entry {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{session: newEditSession(userID)}
		s.entries[userID] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()
	return e
}

func (s *Store) release(userID int64, e *entry) {
	e.session.Touched = s.now()
	e.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	e.refs--
	// refs only changes under s.mu, so nobody else can be holding e.mu here.
	if e.refs == 0 && e.session.disposable() {
		delete(s.entries, userID)
	}
}

// Do runs fn with exclusive access to the user's session, creating it if needed.
// A session left idle and empty by fn is dropped afterwards.
func (s *Store) Do(ctx context.Context, userID int64, fn func(*EditSession) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.acquire(userID)
	defer s.release(userID, e)
	return fn(e.session)
}

// Snapshot returns a copy of the user's session, if one exists.
func (s *Store) Snapshot(userID int64) (EditSession, bool) {
	s.mu.Lock()
	_, ok := s.entries[userID]
	s.mu.Unlock()
	if !ok {
		return EditSession{}, false
	}

	e := s.acquire(userID)
	defer s.release(userID, e)
	return e.session.snapshot(), true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts sessions nobody is using that have not been touched within the TTL.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.entries {
		if e.refs > 0 {
			continue
		}
		if e.session.Touched.Before(cutoff) {
			delete(s.entries, id)
			evicted++
		}
	}
	return evicted
}

// RunJanitor sweeps periodically until ctx is done.
func (s *Store) RunJanitor(ctx context.Context) {
	interval := s.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Info("SESSIONS: Evicted stale sessions", "count", n, "remaining", s.Len())
			}
		}
	}
}
