package middles

import (
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"cattlecloud.net/go/bizdash"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides per client rate limiting, identifying clients by the
// connection address, or by X-Forwarded-For when the connection comes from
// one of the trusted proxies.
type RateLimiter struct {
	lock     *sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	trusted  []netip.Prefix
	clock    func() time.Time
}

// NewRateLimiter creates a RateLimiter allowing perSecond requests with
// bursts up to burst, per client.
func NewRateLimiter(perSecond float64, burst int, trusted ...netip.Prefix) *RateLimiter {
	return &RateLimiter{
		lock:     new(sync.Mutex),
		limiters: make(map[string]*clientLimiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		trusted:  trusted,
		clock:    time.Now,
	}
}

func (rl *RateLimiter) get(client string) *rate.Limiter {
	rl.lock.Lock()
	defer rl.lock.Unlock()

	now := rl.clock()
	if l, exists := rl.limiters[client]; exists {
		l.lastSeen = now
		return l.limiter
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[client] = &clientLimiter{limiter: limiter, lastSeen: now}
	return limiter
}

// Sweep forgets clients not seen for longer than idle.
func (rl *RateLimiter) Sweep(idle time.Duration) {
	rl.lock.Lock()
	defer rl.lock.Unlock()

	now := rl.clock()
	for client, l := range rl.limiters {
		if now.Sub(l.lastSeen) > idle {
			delete(rl.limiters, client)
		}
	}
}

// Wrap returns a handler enforcing the rate limit in front of next.
func (rl *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := bizdash.Origins(r).Peer(rl.trusted)

		if !rl.get(client).Allow() {
			retryAfter := max(int(1.0/float64(rl.rate)), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			bizdash.SetContentType(w, bizdash.ContentTypeText)
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("rate limit exceeded\n"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
