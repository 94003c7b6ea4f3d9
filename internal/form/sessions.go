package form

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Key identifies whose form a message belongs to.
type Key struct {
	ChatID int64
	UserID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.ChatID, k.UserID)
}

// Sessions tracks one active form per chat user. Abandoned sessions
// expire after the TTL.
type Sessions struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewSessions creates a session store with the given expiry.
func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{cache: cache.New(ttl, 2*ttl)}
}

// Begin starts a form for a user, replacing any form already in progress.
func (s *Sessions) Begin(k Key, f *Form) Step {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, step := NewSession(f)
	if step.State == Completed {
		s.cache.Delete(k.String())
		return step
	}
	s.cache.SetDefault(k.String(), session)
	return step
}

// Active returns the session of a user, if any.
func (s *Sessions) Active(k Key) (*Session, bool) {
	v, ok := s.cache.Get(k.String())
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Feed submits an answer to the user's active form. The second return
// is false when the user has no form in progress. Finished and
// cancelled sessions are removed.
func (s *Sessions) Feed(k Key, raw string) (*Session, Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.Active(k)
	if !ok {
		return nil, Step{}, false
	}
	step := session.Feed(raw)
	switch step.State {
	case Completed, Cancelled:
		s.cache.Delete(k.String())
	default:
		// Each answer restarts the expiry clock.
		s.cache.SetDefault(k.String(), session)
	}
	return session, step, true
}

// Cancel discards a user's form and reports whether one was active.
func (s *Sessions) Cancel(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Active(k); !ok {
		return false
	}
	s.cache.Delete(k.String())
	return true
}
