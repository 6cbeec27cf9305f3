package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"cattlecloud.net/go/bizdash/middles/oauth/idtoken"
	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Sessions SessionsConfig
	Auth     AuthConfig
	UI       UIConfig
	LogLevel string
}

// HTTPConfig contains web server settings.
type HTTPConfig struct {
	Address     string        // listen address (e.g. ":8080")
	ReadTimeout time.Duration // per request read timeout
	LoginRate   float64       // sign-in attempts per second, per client
	LoginBurst  int           // sign-in attempts allowed in a burst

	// TrustedProxies are the reverse proxies whose X-Forwarded-For header
	// identifies the client; empty means clients connect directly.
	TrustedProxies []netip.Prefix
}

// DatabaseConfig contains user directory settings.
type DatabaseConfig struct {
	Path string // SQLite database file path
}

// SessionsConfig contains session cookie and storage settings.
type SessionsConfig struct {
	CookieName    string
	Secure        bool
	TTL           time.Duration
	Backend       string // memory or redis
	RedisAddress  string
	RedisPassword string
	RedisPrefix   string
}

// AuthConfig contains identity provider settings.
type AuthConfig struct {
	Provider string // google, apple or microsoft; replaces Issuer and KeysURL
	Issuer   string // OpenID Connect issuer
	ClientID string // audience of ID tokens
	KeysURL  string // JWKS endpoint of the issuer
}

// UIConfig contains root layout settings.
type UIConfig struct {
	Title           string
	Description     string
	UploadWidgetURL string
}

var (
	ErrInvalid = errors.New("config: invalid")
)

// LoadDotEnv loads variables from the given .env files into the process
// environment; missing files are ignored. Variables already set win.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("config: unable to load %s: %w", file, err)
		}
	}
	return nil
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom loads configuration using lookup to read variables.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	env := &reader{lookup: lookup}

	cfg := &Config{
		HTTP: HTTPConfig{
			Address:     env.str("BIZDASH_ADDRESS", ":8080"),
			ReadTimeout: env.duration("BIZDASH_READ_TIMEOUT", 15*time.Second),
			LoginRate:   env.float("BIZDASH_LOGIN_RATE", 0.2),
			LoginBurst:  env.integer("BIZDASH_LOGIN_BURST", 10),

			TrustedProxies: env.prefixes("BIZDASH_TRUSTED_PROXIES"),
		},
		Database: DatabaseConfig{
			Path: env.str("BIZDASH_DB_PATH", "bizdash.db"),
		},
		Sessions: SessionsConfig{
			CookieName:    env.str("BIZDASH_SESSION_COOKIE", "bizdash_session"),
			Secure:        env.boolean("BIZDASH_SESSION_SECURE", true),
			TTL:           env.duration("BIZDASH_SESSION_TTL", 12*time.Hour),
			Backend:       env.str("BIZDASH_SESSION_BACKEND", BackendMemory),
			RedisAddress:  env.str("BIZDASH_REDIS_ADDRESS", "localhost:6379"),
			RedisPassword: env.str("BIZDASH_REDIS_PASSWORD", ""),
			RedisPrefix:   env.str("BIZDASH_REDIS_PREFIX", "bizdash:session:"),
		},
		Auth: AuthConfig{
			Provider: env.str("BIZDASH_OIDC_PROVIDER", ""),
			Issuer:   env.str("BIZDASH_OIDC_ISSUER", ""),
			ClientID: env.str("BIZDASH_OIDC_CLIENT_ID", ""),
			KeysURL:  env.str("BIZDASH_OIDC_KEYS_URL", ""),
		},
		UI: UIConfig{
			Title:           env.str("BIZDASH_TITLE", "Business Dashboard"),
			Description:     env.str("BIZDASH_DESCRIPTION", "Finance, vendors, expenses and payroll"),
			UploadWidgetURL: env.str("BIZDASH_UPLOAD_WIDGET_URL", "https://upload-widget.cloudinary.com/global/all.js"),
		},
		LogLevel: env.str("LOG_LEVEL", "info"),
	}

	if env.err != nil {
		return nil, env.err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Sessions.TTL <= 0:
		return fmt.Errorf("%w: BIZDASH_SESSION_TTL must be positive", ErrInvalid)
	case c.Sessions.CookieName == "":
		return fmt.Errorf("%w: BIZDASH_SESSION_COOKIE must be set", ErrInvalid)
	case c.Sessions.Backend != BackendMemory && c.Sessions.Backend != BackendRedis:
		return fmt.Errorf("%w: BIZDASH_SESSION_BACKEND must be %q or %q", ErrInvalid, BackendMemory, BackendRedis)
	case c.HTTP.LoginRate <= 0 || c.HTTP.LoginBurst <= 0:
		return fmt.Errorf("%w: sign-in rate limit must be positive", ErrInvalid)
	}

	if c.Auth.Provider != "" {
		if _, err := idtoken.Provider(c.Auth.Provider); err != nil {
			return fmt.Errorf("%w: BIZDASH_OIDC_PROVIDER: %v", ErrInvalid, err)
		}
	}
	return nil
}

// SignIn returns whether an identity provider is configured; without one the
// dashboard can only be used anonymously.
func (c *Config) SignIn() bool {
	switch {
	case c.Auth.ClientID == "":
		return false
	case c.Auth.Provider != "":
		return true
	default:
		return c.Auth.Issuer != "" && c.Auth.KeysURL != ""
	}
}

// Verifier returns the options of the ID token verifier for the configured
// identity provider.
func (c *Config) Verifier() ([]idtoken.OptionFunc, error) {
	opts := []idtoken.OptionFunc{idtoken.SetClientID(c.Auth.ClientID)}

	if c.Auth.Provider == "" {
		return append(opts,
			idtoken.SetIssuer(c.Auth.Issuer),
			idtoken.SetEndpoint(c.Auth.KeysURL),
		), nil
	}

	preset, err := idtoken.Provider(c.Auth.Provider)
	if err != nil {
		return nil, err
	}
	return append(opts, preset), nil
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{HTTP: %s, DB: %s, Sessions: %s/%s, Issuer: %q, Redis password: *** (masked) ***}",
		c.HTTP.Address, c.Database.Path, c.Sessions.Backend, c.Sessions.TTL, c.Auth.Issuer,
	)
}

// reader reads typed variables, remembering the first parse failure.
type reader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *reader) str(key, fallback string) string {
	if value, exists := r.lookup(key); exists {
		return value
	}
	return fallback
}

func (r *reader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, value, err)
	}
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	value, exists := r.lookup(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.fail(key, value, err)
		return fallback
	}
	return d
}

func (r *reader) integer(key string, fallback int) int {
	value, exists := r.lookup(key)
	if !exists {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, value, err)
		return fallback
	}
	return i
}

func (r *reader) float(key string, fallback float64) float64 {
	value, exists := r.lookup(key)
	if !exists {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.fail(key, value, err)
		return fallback
	}
	return f
}

func (r *reader) boolean(key string, fallback bool) bool {
	value, exists := r.lookup(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		r.fail(key, value, err)
		return fallback
	}
	return b
}

// prefixes reads a comma separated list of CIDR prefixes; bare addresses
// stand for themselves.
func (r *reader) prefixes(key string) []netip.Prefix {
	value, exists := r.lookup(key)
	if !exists || strings.TrimSpace(value) == "" {
		return nil
	}

	var out []netip.Prefix
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !strings.Contains(item, "/") {
			addr, err := netip.ParseAddr(item)
			if err != nil {
				r.fail(key, value, err)
				return nil
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(item)
		if err != nil {
			r.fail(key, value, err)
			return nil
		}
		out = append(out, prefix.Masked())
	}
	return out
}
