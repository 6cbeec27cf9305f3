package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cattlecloud.net/go/bizdash/internal/config"
	"cattlecloud.net/go/bizdash/internal/directory"
	"cattlecloud.net/go/bizdash/internal/metrics"
	"cattlecloud.net/go/bizdash/middles"
	"cattlecloud.net/go/bizdash/middles/oauth"
	"cattlecloud.net/go/bizdash/middles/oauth/idtoken"
	"cattlecloud.net/go/bizdash/middles/oauth/nonces"
	"cattlecloud.net/go/bizdash/pages"
	"cattlecloud.net/go/bizdash/ui"
	"cattlecloud.net/go/scope"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const (
	maintenanceInterval = 5 * time.Minute
	shutdownTimeout     = 15 * time.Second
	nonceCapacity       = 4096
	volatileSize        = 1024
)

func newServeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, o.cfg, o.logger)
		},
	}
}

// app is the assembled dashboard: one session provider wrapping every
// route, plus the resources it holds.
type app struct {
	handler   http.Handler
	directory *directory.Directory
	volatile  *oauth.VolatileCache[string] // nil when sessions live in redis
	redis     *redis.Client                // nil when sessions live in memory
	limiter   *middles.RateLimiter
	logger    *slog.Logger
}

func assemble(cfg *config.Config, logger *slog.Logger) (*app, error) {
	dir, err := directory.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening directory: %w", err)
	}

	a := &app{
		directory: dir,
		limiter:   middles.NewRateLimiter(cfg.HTTP.LoginRate, cfg.HTTP.LoginBurst, cfg.HTTP.TrustedProxies...),
		logger:    logger,
	}

	var cache oauth.Cache[string, string]
	switch cfg.Sessions.Backend {
	case config.BackendRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Sessions.RedisAddress,
			Password: cfg.Sessions.RedisPassword,
		})
		cache = oauth.NewRedisCache(a.redis, cfg.Sessions.RedisPrefix, logger)
	default:
		a.volatile = oauth.NewVolatileCache[string](volatileSize)
		cache = a.volatile
	}

	cookies := &oauth.CookieFactory{
		Name:   cfg.Sessions.CookieName,
		Secure: cfg.Sessions.Secure,
		Clock:  time.Now,
	}
	sessions := oauth.NewSessions(cache, cookies)

	var verifier idtoken.Verifier
	if cfg.SignIn() {
		opts, verr := cfg.Verifier()
		if verr != nil {
			_ = a.Close()
			return nil, verr
		}
		verifier = idtoken.New(opts...)
	} else {
		logger.Warn("no identity provider configured, sign in is disabled")
	}

	m := metrics.New()

	p := &pages.Pages{
		Layout: &ui.Layout{
			Metadata: ui.Metadata{
				Title:       cfg.UI.Title,
				Description: cfg.UI.Description,
			},
			Scripts: scripts(cfg.UI.UploadWidgetURL),
		},
		Features: pages.Placeholders(),
		Nonces:   nonces.New(nonceCapacity),
		Metrics:  m,
		Logger:   logger,
	}

	auth := &pages.Auth{
		Pages:    p,
		Verifier: verifier,
		Users:    dir,
		Sessions: sessions,
		TTL:      cfg.Sessions.TTL,
	}

	a.handler = &middles.RequestLog{
		Logger: logger,
		Clock:  time.Now,
		Next: &middles.SetSession{
			Cookies:   cookies,
			Sessions:  sessions,
			Directory: dir,
			Logger:    logger,
			Next:      pages.Routes(p, auth, a.limiter, m.Handler()),
		},
	}

	return a, nil
}

func scripts(urls ...string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// maintain drops expired sessions and idle rate limiters until ctx is done.
func (a *app) maintain(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tidy(interval)
		}
	}
}

func (a *app) tidy(idle time.Duration) {
	if a.volatile != nil {
		if n := a.volatile.Purge(); n > 0 {
			a.logger.Debug("purged expired sessions", "count", n, "remaining", a.volatile.Len())
		}
	}
	a.limiter.Sweep(idle)
}

func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.directory.Close())
	return errors.Join(errs...)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := assemble(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Error("closing resources", "error", cerr)
		}
	}()

	server := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           a.handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}

	go a.maintain(ctx, maintenanceInterval)

	failed := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.HTTP.Address, "sessions", cfg.Sessions.Backend)
		if lerr := server.ListenAndServe(); !errors.Is(lerr, http.ErrServerClosed) {
			failed <- lerr
		}
		close(failed)
	}()

	select {
	case lerr := <-failed:
		return fmt.Errorf("serving http: %w", lerr)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	sctx, cancel := scope.TTL(shutdownTimeout)
	defer cancel()

	return server.Shutdown(sctx)
}
