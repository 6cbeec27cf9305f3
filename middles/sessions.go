package middles

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"cattlecloud.net/go/bizdash/middles/identity"
	"cattlecloud.net/go/bizdash/middles/oauth"
	"github.com/shoenig/go-conceal"
)

// CurrentSession is the capability through which components read the current
// session, and are notified of changes to it.
type CurrentSession interface {
	Get() identity.Session
	Set(identity.Session)
	OnChange(func(identity.Session)) (cancel func())
}

// NewStore creates a Store holding s.
func NewStore(s identity.Session) *Store {
	return &Store{
		lock:      new(sync.RWMutex),
		current:   s,
		listeners: make(map[int]func(identity.Session)),
	}
}

// Store is the implementation of CurrentSession. It is safe for concurrent
// use; listeners are invoked synchronously by Set, outside of the lock.
type Store struct {
	lock      *sync.RWMutex
	current   identity.Session
	listeners map[int]func(identity.Session)
	next      int
}

func (s *Store) Get() identity.Session {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.current
}

func (s *Store) Set(session identity.Session) {
	s.lock.Lock()
	s.current = session
	notify := make([]func(identity.Session), 0, len(s.listeners))
	for i := 0; i < s.next; i++ {
		if f, exists := s.listeners[i]; exists {
			notify = append(notify, f)
		}
	}
	s.lock.Unlock()

	for _, f := range notify {
		f(session)
	}
}

func (s *Store) OnChange(f func(identity.Session)) func() {
	s.lock.Lock()
	defer s.lock.Unlock()

	id := s.next
	s.next++
	s.listeners[id] = f

	return func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		delete(s.listeners, id)
	}
}

type userSessionKey struct{}

var sessionContextKey = userSessionKey{}

// WithSession returns a copy of ctx carrying the CurrentSession c.
func WithSession(ctx context.Context, c CurrentSession) context.Context {
	return context.WithValue(ctx, sessionContextKey, c)
}

// FromContext extracts the CurrentSession out of ctx.
//
// If no session is found, a detached store with no user is returned,
// indicating there is no session.
func FromContext(ctx context.Context) CurrentSession {
	value, ok := ctx.Value(sessionContextKey).(CurrentSession)
	if !ok {
		return NewStore(identity.Session{})
	}
	return value
}

// GetSession extracts the CurrentSession out of the http.Request.
func GetSession(r *http.Request) CurrentSession {
	return FromContext(r.Context())
}

// Directory resolves user identifiers into user records.
type Directory interface {
	Lookup(context.Context, string) (*identity.User, error)
}

// Sessions verifies a session token belongs to a user; see oauth.Sessions.
type Sessions interface {
	Match(string, *conceal.Text) error
}

// SetSession establishes the session for every request before passing it on
// to Next. One SetSession wraps the entire application.
type SetSession struct {
	Cookies   *oauth.CookieFactory
	Sessions  Sessions
	Directory Directory
	Logger    *slog.Logger
	Next      http.Handler
}

func (ss *SetSession) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session := ss.establish(r)
	store := NewStore(session)
	r2 := r.WithContext(WithSession(r.Context(), store))
	ss.Next.ServeHTTP(w, r2)
}

// establish resolves the session of r; every failure results in a session
// with no user, ensuring no operation requiring a user works.
func (ss *SetSession) establish(r *http.Request) identity.Session {
	none := identity.Session{}

	// try to get a cookie from the request
	content, cerr := ss.Cookies.Read(r)
	if cerr != nil {
		return none
	}

	// there is a cookie, now we must verify the cookie is legit
	if merr := ss.Sessions.Match(content.Identity(), content.Token()); merr != nil {
		// probably expired, maybe malicious; assume no session
		ss.Logger.Debug("session not matched", "user", content.Identity(), "error", merr)
		return none
	}

	user, lerr := ss.Directory.Lookup(r.Context(), content.Identity())
	if lerr != nil {
		ss.Logger.Debug("session user not resolved", "user", content.Identity(), "error", lerr)
		return none
	}

	if !user.Valid() {
		ss.Logger.Warn("session user not valid", "user", content.Identity())
		return none
	}

	return identity.Session{User: user}
}
