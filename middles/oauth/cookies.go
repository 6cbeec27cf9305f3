package oauth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shoenig/go-conceal"
)

var (
	// ErrMalformedCookie indicates the session cookie value could not be
	// decoded into CookieContent.
	ErrMalformedCookie = errors.New("session: malformed cookie")
)

// CookieFactory is used to bake cookies representing a user identity and
// associated unique session token.
//
// Each cookie minted is of the same name; i.e. the name associated with the
// cookie in the requester's cookie jar (web browser / http client).
type CookieFactory struct {
	Name   string
	Secure bool
	Clock  func() time.Time
}

// CookieContent is the data stored per session.
type CookieContent struct {
	UserToken string `json:"token"`
	UserID    string `json:"user_id"`
}

// Token returns the secret token associated with the cookie.
func (cc *CookieContent) Token() *conceal.Text {
	return conceal.New(cc.UserToken)
}

// Identity returns the user identifier associated with the cookie.
func (cc *CookieContent) Identity() string {
	return cc.UserID
}

// Create the cookie.
func (cf *CookieFactory) Create(
	id string,
	token *conceal.Text,
	ttl time.Duration,
) *http.Cookie {
	// compute the future time cookie expires
	expiration := cf.Clock().Add(ttl)

	// encode the cookie payload as base64 json
	b, _ := json.Marshal(&CookieContent{
		UserToken: token.Unveil(),
		UserID:    id,
	})
	encoded := base64.StdEncoding.EncodeToString(b)

	return &http.Cookie{
		Name:     cf.Name,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Expires:  expiration,
		SameSite: http.SameSiteLaxMode,
		Secure:   cf.Secure,
	}
}

// Expire creates a cookie instructing the client to drop its session cookie.
func (cf *CookieFactory) Expire() *http.Cookie {
	return &http.Cookie{
		Name:     cf.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		SameSite: http.SameSiteLaxMode,
		Secure:   cf.Secure,
	}
}

// Read extracts the CookieContent from the session cookie of r, if any.
func (cf *CookieFactory) Read(r *http.Request) (*CookieContent, error) {
	cookie, err := r.Cookie(cf.Name)
	if err != nil {
		return nil, err
	}

	b, err := base64.StdEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil, ErrMalformedCookie
	}

	content := new(CookieContent)
	if err = json.Unmarshal(b, content); err != nil {
		return nil, ErrMalformedCookie
	}

	if content.UserID == "" || content.UserToken == "" {
		return nil, ErrMalformedCookie
	}

	return content, nil
}
