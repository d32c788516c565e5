package handlers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teachme/teachme/internal/study"
)

const (
	// DefaultSessionTTL is used when Options.SessionTTL is not positive.
	DefaultSessionTTL = 2 * time.Hour
	// DefaultMaxSessions is used when Options.MaxSessions is not positive.
	DefaultMaxSessions = 10000

	sessionSweepInterval = time.Minute
)

type session struct {
	controller *study.Controller
	lastUsed   time.Time
}

// sessions holds the controllers of the clients that loaded the page. Controllers unused for longer
// than the TTL are evicted by sweep, and the least recently used one makes room when the registry is
// full.
type sessions struct {
	mu      sync.Mutex
	entries map[string]*session
	limit   int
	now     func() time.Time
}

func newSessions(limit int) *sessions {
	return &sessions{
		entries: make(map[string]*session),
		limit:   limit,
		now:     time.Now,
	}
}

// get returns the controller of clientID and marks it as used.
func (s *sessions) get(clientID string) (*study.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[clientID]
	if !ok {
		return nil, false
	}
	e.lastUsed = s.now()
	return e.controller, true
}

// has reports whether clientID is registered without marking it as used.
func (s *sessions) has(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[clientID]
	return ok
}

// getOrCreate returns the controller of clientID, registering the one built by create on first use.
func (s *sessions) getOrCreate(clientID string, create func() *study.Controller) *study.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[clientID]; ok {
		e.lastUsed = now
		return e.controller
	}

	if len(s.entries) >= s.limit {
		s.evictOldest()
	}

	c := create()
	s.entries[clientID] = &session{controller: c, lastUsed: now}
	return c
}

func (s *sessions) evictOldest() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, e := range s.entries {
		if oldestID == "" || e.lastUsed.Before(oldest) {
			oldestID, oldest = id, e.lastUsed
		}
	}
	delete(s.entries, oldestID)
}

// sweep removes the sessions idle for longer than ttl and returns how many were removed.
func (s *sessions) sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	removed := 0
	for id, e := range s.entries {
		if e.lastUsed.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// runSweeper evicts idle sessions until ctx is done.
func (s *sessions) runSweeper(ctx context.Context, ttl time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.sweep(ttl); removed > 0 {
				logger.Info("Evicted idle sessions", slog.Int("count", removed), slog.Duration("ttl", ttl))
			}
		case <-ctx.Done():
			return
		}
	}
}
