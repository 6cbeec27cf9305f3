package middles

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cattlecloud.net/go/bizdash/middles/identity"
	"cattlecloud.net/go/bizdash/middles/oauth"
	"cattlecloud.net/go/scope"
	"github.com/shoenig/test/must"
)

var errNoUser = errors.New("no such user")

type fakeDirectory map[string]*identity.User

func (fd fakeDirectory) Lookup(_ context.Context, id string) (*identity.User, error) {
	if u, exists := fd[id]; exists {
		return u, nil
	}
	return nil, errNoUser
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStore_GetSet(t *testing.T) {
	t.Parallel()

	s := NewStore(identity.Session{})
	must.False(t, s.Get().Authenticated())

	user := &identity.User{ID: "u1", Role: identity.RoleEmployee}
	s.Set(identity.Session{User: user})
	must.Eq(t, "u1", s.Get().User.ID)

	s.Set(identity.Session{})
	must.False(t, s.Get().Authenticated())
}

func TestStore_OnChange(t *testing.T) {
	t.Parallel()

	s := NewStore(identity.Session{})

	var first, second []identity.Session
	cancel := s.OnChange(func(n identity.Session) { first = append(first, n) })
	_ = s.OnChange(func(n identity.Session) { second = append(second, n) })

	s.Set(identity.Session{User: &identity.User{ID: "u1", Role: identity.RoleAdmin}})
	cancel()
	cancel() // idempotent
	s.Set(identity.Session{})

	must.SliceLen(t, 1, first)
	must.Eq(t, "u1", first[0].User.ID)

	must.SliceLen(t, 2, second)
	must.False(t, second[1].Authenticated())
}

func TestStore_listenerMayRead(t *testing.T) {
	t.Parallel()

	s := NewStore(identity.Session{})

	var seen identity.Session
	s.OnChange(func(identity.Session) { seen = s.Get() })

	s.Set(identity.Session{User: &identity.User{ID: "u7", Role: identity.RoleEmployee}})
	must.Eq(t, "u7", seen.User.ID)
}

func TestStore_concurrent(t *testing.T) {
	t.Parallel()

	s := NewStore(identity.Session{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Set(identity.Session{User: &identity.User{ID: "u1", Role: identity.RoleEmployee}})
		}()
		go func() {
			defer wg.Done()
			_ = s.Get()
		}()
	}
	wg.Wait()

	must.Eq(t, "u1", s.Get().User.ID)
}

func TestFromContext_missing(t *testing.T) {
	t.Parallel()

	current := FromContext(scope.New())
	must.NotNil(t, current)
	must.False(t, current.Get().Authenticated())
}

func TestFromContext_present(t *testing.T) {
	t.Parallel()

	store := NewStore(identity.Session{User: &identity.User{ID: "u2", Role: identity.RoleAdmin}})
	ctx := WithSession(scope.New(), store)

	must.Eq(t, "u2", FromContext(ctx).Get().User.ID)
}

type provider struct {
	cookies  *oauth.CookieFactory
	sessions *oauth.Sessions
	handler  http.Handler
	seen     identity.Session
}

func newProvider(directory fakeDirectory) *provider {
	p := &provider{
		cookies: &oauth.CookieFactory{Name: "bizdash", Clock: time.Now},
	}
	p.sessions = oauth.NewSessions(oauth.NewVolatileCache[string](4), p.cookies)
	p.handler = &SetSession{
		Cookies:   p.cookies,
		Sessions:  p.sessions,
		Directory: directory,
		Logger:    discard(),
		Next: http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			p.seen = GetSession(r).Get()
		}),
	}
	return p
}

func (p *provider) serve(cookie *http.Cookie) identity.Session {
	r := httptest.NewRequest(http.MethodGet, "/finance/expenses", nil)
	if cookie != nil {
		r.AddCookie(cookie)
	}
	p.handler.ServeHTTP(httptest.NewRecorder(), r)
	return p.seen
}

func TestSetSession_authenticated(t *testing.T) {
	t.Parallel()

	p := newProvider(fakeDirectory{
		"u1": {ID: "u1", Email: "ada@example.com", Role: identity.RoleEmployee},
	})

	cookie := p.sessions.Create("u1", 1*time.Hour)
	session := p.serve(cookie)

	must.True(t, session.Authenticated())
	must.Eq(t, "u1", session.User.ID)
	must.Eq(t, identity.RoleEmployee, session.User.Role)
}

func TestSetSession_noCookie(t *testing.T) {
	t.Parallel()

	p := newProvider(fakeDirectory{})
	must.False(t, p.serve(nil).Authenticated())
}

func TestSetSession_malformedCookie(t *testing.T) {
	t.Parallel()

	p := newProvider(fakeDirectory{})
	session := p.serve(&http.Cookie{Name: "bizdash", Value: "garbage"})
	must.False(t, session.Authenticated())
}

func TestSetSession_forgedIdentity(t *testing.T) {
	t.Parallel()

	p := newProvider(fakeDirectory{
		"u1": {ID: "u1", Role: identity.RoleEmployee},
		"u2": {ID: "u2", Role: identity.RoleAdmin},
	})

	// a real token for u1, presented as if it belonged to u2
	issued := p.sessions.Create("u1", 1*time.Hour)
	content, err := p.cookies.Read(withCookie(issued))
	must.NoError(t, err)

	forged := p.cookies.Create("u2", content.Token(), 1*time.Hour)
	must.False(t, p.serve(forged).Authenticated())
}

func TestSetSession_revoked(t *testing.T) {
	t.Parallel()

	p := newProvider(fakeDirectory{
		"u1": {ID: "u1", Role: identity.RoleEmployee},
	})

	cookie := p.sessions.Create("u1", 1*time.Hour)
	content, err := p.cookies.Read(withCookie(cookie))
	must.NoError(t, err)

	p.sessions.Revoke(content.Token())
	must.False(t, p.serve(cookie).Authenticated())
}

func TestSetSession_userRemoved(t *testing.T) {
	t.Parallel()

	p := newProvider(fakeDirectory{})

	cookie := p.sessions.Create("u1", 1*time.Hour)
	must.False(t, p.serve(cookie).Authenticated())
}

func TestSetSession_invalidUser(t *testing.T) {
	t.Parallel()

	p := newProvider(fakeDirectory{
		"u1": {ID: "u1", Role: identity.RoleNone},
	})

	cookie := p.sessions.Create("u1", 1*time.Hour)
	must.False(t, p.serve(cookie).Authenticated())
}

func withCookie(c *http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(c)
	return r
}
