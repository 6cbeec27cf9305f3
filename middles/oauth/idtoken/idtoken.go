package idtoken

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"time"

	"cattlecloud.net/go/bizdash/middles/oauth"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrKeyNotFound   = errors.New("oauth/idtoken: signing key not found")
	ErrIssuer        = errors.New("oauth/idtoken: issuer not valid")
	ErrAudience      = errors.New("oauth/idtoken: audience not valid")
	ErrExpired       = errors.New("oauth/idtoken: token is expired")
	ErrEmailVerified = errors.New("oauth/idtoken: email is not verified")
	ErrProvider      = errors.New("oauth/idtoken: unknown provider")
)

type Claims struct {
	// JWT standard types (scope: oidc)
	jwt.RegisteredClaims

	// scope: email, profile
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

type Options struct {
	endpoint   string
	issuer     func(string) bool
	cache      oauth.Cache[string, *rsa.PublicKey]
	httpClient *http.Client
	clientID   string
	clock      func() time.Time
}

type OptionFunc func(*Options)

func SetHTTP(client *http.Client) OptionFunc {
	return func(o *Options) { o.httpClient = client }
}

func SetClientID(id string) OptionFunc {
	return func(o *Options) { o.clientID = id }
}

// SetEndpoint sets the JWKS url of the identity provider.
func SetEndpoint(s string) OptionFunc {
	return func(o *Options) { o.endpoint = s }
}

// SetIssuer sets the issuer ID tokens must carry.
func SetIssuer(s string) OptionFunc {
	return func(o *Options) {
		o.issuer = func(iss string) bool { return iss == s }
	}
}

// Provider configures the issuer and JWKS endpoint of a well known identity
// provider: "google", "apple" or "microsoft".
func Provider(name string) (OptionFunc, error) {
	switch name {
	case "google":
		return func(o *Options) {
			o.endpoint = "https://www.googleapis.com/oauth2/v3/certs"
			o.issuer = func(iss string) bool {
				return iss == "accounts.google.com" || iss == "https://accounts.google.com"
			}
		}, nil
	case "apple":
		return func(o *Options) {
			o.endpoint = "https://appleid.apple.com/auth/keys"
			o.issuer = func(iss string) bool { return iss == "https://appleid.apple.com" }
		}, nil
	case "microsoft":
		return func(o *Options) {
			// tenant specific issuers share the common key set
			o.endpoint = "https://login.microsoftonline.com/common/discovery/v2.0/keys"
			o.issuer = func(iss string) bool {
				return strings.HasPrefix(iss, "https://login.microsoftonline.com/")
			}
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrProvider, name)
	}
}

func SetClock(clock func() time.Time) OptionFunc {
	return func(o *Options) { o.clock = clock }
}

// Verifier validates OpenID Connect ID tokens issued by the configured
// identity provider.
type Verifier interface {
	Verify(context.Context, string) (*Claims, error)
}

func New(opts ...OptionFunc) Verifier {
	options := &Options{
		cache:      oauth.NewVolatileCache[*rsa.PublicKey](8),
		httpClient: &http.Client{Timeout: 1 * time.Minute},
		clock:      time.Now,
		issuer:     func(string) bool { return false },
	}

	for _, opt := range opts {
		opt(options)
	}

	return &verifier{
		vc:     options.cache,
		hc:     options.httpClient,
		id:     options.clientID,
		url:    options.endpoint,
		issuer: options.issuer,
		clock:  options.clock,
	}
}

type verifier struct {
	vc     oauth.Cache[string, *rsa.PublicKey]
	hc     *http.Client
	id     string
	url    string
	issuer func(string) bool
	clock  func() time.Time
}

func (v *verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	claims := new(Claims)

	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) {
			keyID, _ := t.Header["kid"].(string)
			return v.publicKey(ctx, keyID)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(v.clock),
		jwt.WithExpirationRequired(),
	)

	// unable to get token or parse it
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("oauth/idtoken: unable to parse JWT: %w", err)
	}

	if !parsed.Valid {
		return nil, errors.New("oauth/idtoken: JWT not valid")
	}

	if !v.issuer(claims.Issuer) {
		return nil, ErrIssuer
	}

	if !slices.Contains(claims.Audience, v.id) {
		return nil, ErrAudience
	}

	if !claims.EmailVerified {
		return nil, ErrEmailVerified
	}

	return claims, nil
}

type jwks struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *verifier) publicKey(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	if public, exists := v.vc.Get(keyID); exists {
		return public, nil
	}

	// no such key in the cache;
	// continue with http request to the provider for its key set
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	request, _ := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	response, derr := v.hc.Do(request)
	if derr != nil {
		return nil, derr
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauth/idtoken: key set request failed: %s", response.Status)
	}

	ttl := keysTTL(v.clock(), response)

	var data jwks
	if err := json.NewDecoder(response.Body).Decode(&data); err != nil {
		return nil, err
	}

	var found *rsa.PublicKey
	for _, key := range data.Keys {
		if key.Kty != "" && key.Kty != "RSA" {
			continue
		}
		public, err := decodeRSA(key.N, key.E)
		if err != nil {
			return nil, err
		}
		v.vc.Put(key.Kid, public, ttl)
		if key.Kid == keyID {
			found = public
		}
	}

	if found == nil {
		return nil, ErrKeyNotFound
	}
	return found, nil
}

func decodeRSA(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// keysTTL uses the Expires header of the key set response to decide how long
// keys remain cached.
func keysTTL(now time.Time, r *http.Response) time.Duration {
	header := r.Header.Get("Expires")

	expiration, err := http.ParseTime(header)
	if err != nil || !expiration.After(now) {
		return 1 * time.Hour
	}

	return expiration.Sub(now)
}
