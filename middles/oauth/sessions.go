package oauth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/shoenig/go-conceal"
)

var (
	// ErrNotFound indicates no session was found for the token.
	ErrNotFound = errors.New("session: not found")

	// ErrNotMatch indicates the stored session does not match the session from
	// the request, likely indicating a malicious user fudging a session
	// value.
	ErrNotMatch = errors.New("session: not a match")
)

// Cache could be implemented using an in-memory cache, a redis instance,
// or even persistent storage.
type Cache[K, T any] interface {
	Get(K) (T, bool)
	Put(K, T, time.Duration)
	Remove(K)
}

// Sessions issues and verifies session tokens, mapping each token to the
// identifier of the user it was issued to.
type Sessions struct {
	Cache         Cache[string, string]
	CookieFactory *CookieFactory
}

func NewSessions(cache Cache[string, string], cookies *CookieFactory) *Sessions {
	return &Sessions{
		Cache:         cache,
		CookieFactory: cookies,
	}
}

// digest is the cache key of token; raw tokens are never stored.
func digest(token *conceal.Text) string {
	sum := sha256.Sum256([]byte(token.Unveil()))
	return hex.EncodeToString(sum[:])
}

// Create a new session for the user identified by id, returning the cookie
// to hand to the client.
func (s *Sessions) Create(id string, ttl time.Duration) *http.Cookie {
	token := conceal.UUIDv4()
	cookie := s.CookieFactory.Create(id, token, ttl)
	s.Cache.Put(digest(token), id, ttl)
	return cookie
}

// Match verifies token was issued to the user identified by id.
func (s *Sessions) Match(id string, token *conceal.Text) error {
	actual, exists := s.Cache.Get(digest(token))

	switch {
	case !exists:
		return ErrNotFound
	case id != actual:
		return ErrNotMatch
	default:
		return nil
	}
}

// Revoke invalidates token, ending the session it belongs to.
func (s *Sessions) Revoke(token *conceal.Text) {
	s.Cache.Remove(digest(token))
}
