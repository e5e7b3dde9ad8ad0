package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dmmcquay/katago-web/internal/config"
	"github.com/dmmcquay/katago-web/internal/logging"
)

// ErrLimited is matched by every LimitError.
var ErrLimited = errors.New("rate limit exceeded")

// LimitError reports which limit rejected a request.
type LimitError struct {
	Scope      string // "global", "route", "client" or "client-route"
	Route      string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	if e.Route != "" && (e.Scope == "route" || e.Scope == "client-route") {
		return fmt.Sprintf("%s rate limit exceeded for %s", e.Scope, e.Route)
	}
	return fmt.Sprintf("%s rate limit exceeded", e.Scope)
}

func (e *LimitError) Is(target error) bool { return target == ErrLimited }

// Recorder receives rate limit decisions.
type Recorder interface {
	RecordRateLimit(route string, hit bool)
}

// Limiter applies global, per-route and per-client token buckets. Client
// buckets live in an expiring store and are dropped after ClientTTL idle.
type Limiter struct {
	logger       logging.ContextLogger
	config       *config.RateLimitConfig
	recorder     Recorder
	globalBucket *TokenBucket
	routeBuckets map[string]*TokenBucket

	mu      sync.Mutex
	clients *gocache.Cache
}

type clientBuckets struct {
	global *TokenBucket
	routes map[string]*TokenBucket
}

// NewLimiter returns nil when rate limiting is disabled. A nil Limiter allows
// everything.
func NewLimiter(cfg *config.RateLimitConfig, logger logging.ContextLogger, recorder Recorder) *Limiter {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	ttl := config.Seconds(cfg.ClientTTL)
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	l := &Limiter{
		logger:       logger,
		config:       cfg,
		recorder:     recorder,
		globalBucket: NewTokenBucket(cfg.BurstSize, perSecond(cfg.RequestsPerMin)),
		routeBuckets: make(map[string]*TokenBucket, len(cfg.PerRouteLimits)),
		clients:      gocache.New(ttl, ttl/2),
	}
	for route := range cfg.PerRouteLimits {
		l.routeBuckets[route] = l.newRouteBucket(route)
	}
	return l
}

func perSecond(perMin int) float64 {
	return float64(perMin) / 60.0
}

// Route bursts keep the global burst ratio.
func (l *Limiter) newRouteBucket(route string) *TokenBucket {
	limit := l.config.PerRouteLimits[route]
	burst := 1
	if l.config.RequestsPerMin > 0 {
		burst = l.config.BurstSize * limit / l.config.RequestsPerMin
	}
	if burst < 1 {
		burst = 1
	}
	return NewTokenBucket(burst, perSecond(limit))
}

// Allow consumes a token for clientID on route. A rejection returns a
// *LimitError and refunds tokens taken from the wider scopes.
func (l *Limiter) Allow(clientID, route string) error {
	if l == nil {
		return nil
	}

	err := l.allow(clientID, route)
	if l.recorder != nil {
		l.recorder.RecordRateLimit(route, err != nil)
	}
	if err != nil {
		l.logger.Warn("Rate limit exceeded", "client", clientID, "route", route, "scope", err.Scope)
		return err
	}
	return nil
}

func (l *Limiter) allow(clientID, route string) *LimitError {
	now := time.Now()

	if !l.globalBucket.AllowAt(1, now) {
		return &LimitError{Scope: "global", RetryAfter: l.globalBucket.RetryAfter(1, now)}
	}

	routeBucket, hasRoute := l.routeBuckets[route]
	if hasRoute && !routeBucket.AllowAt(1, now) {
		l.globalBucket.Refund(1)
		return &LimitError{Scope: "route", Route: route, RetryAfter: routeBucket.RetryAfter(1, now)}
	}

	if clientID == "" {
		return nil
	}

	if err := l.allowClient(clientID, route, now); err != nil {
		l.globalBucket.Refund(1)
		if hasRoute {
			routeBucket.Refund(1)
		}
		return err
	}
	return nil
}

func (l *Limiter) allowClient(clientID, route string, now time.Time) *LimitError {
	l.mu.Lock()
	defer l.mu.Unlock()

	var client *clientBuckets
	if v, ok := l.clients.Get(clientID); ok {
		client = v.(*clientBuckets)
	} else {
		client = &clientBuckets{
			global: NewTokenBucket(l.config.BurstSize, perSecond(l.config.RequestsPerMin)),
			routes: make(map[string]*TokenBucket),
		}
	}
	// Re-set on every request so the idle timer restarts.
	l.clients.SetDefault(clientID, client)

	if !client.global.AllowAt(1, now) {
		return &LimitError{Scope: "client", RetryAfter: client.global.RetryAfter(1, now)}
	}

	if _, limited := l.config.PerRouteLimits[route]; limited {
		bucket, ok := client.routes[route]
		if !ok {
			bucket = l.newRouteBucket(route)
			client.routes[route] = bucket
		}
		if !bucket.AllowAt(1, now) {
			client.global.Refund(1)
			return &LimitError{Scope: "client-route", Route: route, RetryAfter: bucket.RetryAfter(1, now)}
		}
	}
	return nil
}

// Reset refills every bucket and forgets all clients.
func (l *Limiter) Reset() {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.globalBucket.Reset()
	for _, bucket := range l.routeBuckets {
		bucket.Reset()
	}
	l.clients.Flush()
}

// Status describes the limiter for the status endpoint.
type Status struct {
	Enabled        bool               `json:"enabled"`
	RequestsPerMin int                `json:"requestsPerMin,omitempty"`
	BurstSize      int                `json:"burstSize,omitempty"`
	GlobalTokens   float64            `json:"globalTokens,omitempty"`
	ActiveClients  int                `json:"activeClients"`
	RouteTokens    map[string]float64 `json:"routeTokens,omitempty"`
}

func (l *Limiter) Status() Status {
	if l == nil {
		return Status{Enabled: false}
	}

	s := Status{
		Enabled:        true,
		RequestsPerMin: l.config.RequestsPerMin,
		BurstSize:      l.config.BurstSize,
		GlobalTokens:   l.globalBucket.Tokens(),
		ActiveClients:  l.clients.ItemCount(),
		RouteTokens:    make(map[string]float64, len(l.routeBuckets)),
	}
	for route, bucket := range l.routeBuckets {
		s.RouteTokens[route] = bucket.Tokens()
	}
	return s
}
