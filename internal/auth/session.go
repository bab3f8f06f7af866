package auth

import (
	"context"
	"sync"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// SessionStore holds the current session and publishes every change to
// its subscribers. It starts in the loading state.
type SessionStore struct {
	mu      sync.Mutex
	current models.Session
	subs    map[int]chan models.Session
	nextID  int
}

// NewSessionStore creates a store whose session is still loading.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		current: models.LoadingSession(),
		subs:    make(map[int]chan models.Session),
	}
}

// Current returns the session as of now.
func (s *SessionStore) Current() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Begin marks the session as resolving again, e.g. during a token refresh.
func (s *SessionStore) Begin() {
	s.publish(models.LoadingSession())
}

// Resolve finishes loading with the given user. A nil user resolves to an
// anonymous session.
func (s *SessionStore) Resolve(user models.User) {
	s.publish(models.AuthenticatedSession(user))
}

// Clear signs the user out.
func (s *SessionStore) Clear() {
	s.publish(models.AnonymousSession())
}

// Subscribe returns a channel that first receives the current session and
// then every later change. A slow subscriber only sees the newest session.
// The channel is closed when ctx is done.
func (s *SessionStore) Subscribe(ctx context.Context) <-chan models.Session {
	ch := make(chan models.Session, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.current
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

func (s *SessionStore) publish(session models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = session
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- session
	}
}
