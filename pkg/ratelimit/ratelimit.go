// Package ratelimit provides per-client token bucket limiting for the API.
package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"ledgercache/pkg/logging"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config tunes the limiter registry.
type Config struct {
	// Rate is the steady-state tokens per second granted to each client.
	// Default 10.
	Rate float64

	// Burst is each client's bucket size. Default 20.
	Burst int

	// IdleTimeout evicts a client's bucket after this much inactivity.
	// Default 10m.
	IdleTimeout time.Duration

	// Header names the request header identifying the client. Remote IP is
	// the fallback. Default "X-API-Key".
	Header string
}

func (c *Config) applyDefaults() {
	if c.Rate <= 0 {
		c.Rate = 10
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	if c.Header == "" {
		c.Header = "X-API-Key"
	}
}

// Limiter keeps one token bucket per client key. Idle buckets are janitored
// out so the registry does not grow with every IP that ever connected.
type Limiter struct {
	config Config
	logger *logging.Logger

	mu      sync.Mutex
	clients map[string]*client

	stop chan struct{}
	done chan struct{}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter registry and starts its janitor.
func New(config Config, logger *logging.Logger) *Limiter {
	config.applyDefaults()
	if logger == nil {
		logger = logging.L()
	}

	l := &Limiter{
		config:  config,
		logger:  logger.Named("ratelimit"),
		clients: make(map[string]*client),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Close stops the janitor.
func (l *Limiter) Close() error {
	close(l.stop)
	<-l.done
	return nil
}

// Decision is the outcome of one admission check, with enough bucket state
// to fill the rate limit headers honestly.
type Decision struct {
	Allowed   bool
	Remaining int

	// RetryAfter is how long a denied request must wait before the same
	// cost could succeed. Zero when allowed.
	RetryAfter time.Duration

	// Reset is how long until the client's bucket is full again.
	Reset time.Duration
}

// AllowN decides whether the client may spend cost tokens now. The denial
// wait is derived from the bucket state, so an expensive request at a slow
// rate reports the multi-second backoff it actually needs.
func (l *Limiter) AllowN(key string, cost int) Decision {
	if cost <= 0 {
		cost = 1
	}

	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(l.config.Rate), l.config.Burst)}
		l.clients[key] = c
	}
	c.lastSeen = time.Now()
	l.mu.Unlock()

	now := time.Now()
	var d Decision
	res := c.limiter.ReserveN(now, cost)
	if !res.OK() {
		// Cost exceeds the bucket size, so no wait inside one bucket
		// helps; report the full refill time for the cost.
		d.RetryAfter = time.Duration(float64(cost) / l.config.Rate * float64(time.Second))
	} else if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		d.RetryAfter = delay
	} else {
		d.Allowed = true
	}

	tokens := c.limiter.TokensAt(now)
	if tokens < 0 {
		tokens = 0
	}
	d.Remaining = int(tokens)
	if deficit := float64(l.config.Burst) - tokens; deficit > 0 {
		d.Reset = time.Duration(deficit / l.config.Rate * float64(time.Second))
	}
	return d
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) janitor() {
	defer close(l.done)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-l.config.IdleTimeout)
			l.mu.Lock()
			for key, c := range l.clients {
				if c.lastSeen.Before(cutoff) {
					delete(l.clients, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// ClientKey extracts the limiter key for a request: the API key header when
// present, the remote IP otherwise.
func (l *Limiter) ClientKey(r *http.Request) string {
	if key := r.Header.Get(l.config.Header); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// CostFunc assigns a token cost to a request. Listings fan out to more rows
// than point reads, so they may charge more.
type CostFunc func(r *http.Request) int

// DefaultCost charges one token per request.
func DefaultCost(*http.Request) int { return 1 }

// Middleware enforces the limiter on every request. Throttled requests get
// 429 with Retry-After; every response carries the X-RateLimit headers.
func (l *Limiter) Middleware(cost CostFunc) func(http.Handler) http.Handler {
	if cost == nil {
		cost = DefaultCost
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := l.ClientKey(r)
			d := l.AllowN(key, cost(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.config.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(d.Reset).Unix(), 10))

			if !d.Allowed {
				l.logger.Debug("request throttled",
					zap.String("client", key), zap.Duration("retry_after", d.RetryAfter))
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"too many requests"}}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds rounds the wait up to whole seconds, minimum 1.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
