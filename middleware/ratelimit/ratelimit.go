package ratelimit

import (
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned once a client exhausts its request budget.
var ErrRateLimited = goerrors.New("too many requests", goerrors.CategoryRateLimit).
	WithTextCode("RATE_LIMITED").
	WithCode(goerrors.CodeTooManyRequests)

// Config controls per-client request throttling. The zero value throttles
// by forwarded client address at 1 req/s with a burst of 5, which suits
// login and code-resend endpoints.
type Config struct {
	// Filter skips rate limiting when it returns true.
	Filter func(router.Context) bool

	// Rate is the sustained request rate per key.
	Rate rate.Limit

	// Burst is the number of requests a key may spend at once.
	Burst int

	// KeyFunc derives the throttle key from the request. Default: the
	// forwarded client address, falling back to a single global bucket.
	KeyFunc func(router.Context) string

	// ErrorHandler renders the rejection. Default: JSON 429.
	ErrorHandler router.ErrorHandler

	// IdleTTL is how long an idle key keeps its bucket before the
	// registry drops it. Default: 10 minutes.
	IdleTTL time.Duration
}

// New creates a throttling middleware with a shared limiter registry.
func New(config ...Config) router.MiddlewareFunc {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Rate == 0 {
		cfg.Rate = rate.Limit(1)
	}
	if cfg.Burst == 0 {
		cfg.Burst = 5
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientAddressKey
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = 10 * time.Minute
	}

	registry := newLimiterRegistry(cfg.Rate, cfg.Burst, cfg.IdleTTL)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			key := cfg.KeyFunc(ctx)
			if !registry.allow(key) {
				return cfg.ErrorHandler(ctx, ErrRateLimited)
			}

			return ctx.Next()
		}
	}
}

// ClientAddressKey derives the throttle key from proxy forwarding headers.
// Requests with no client information share one bucket.
func ClientAddressKey(ctx router.Context) string {
	if forwarded := ctx.GetString("X-Forwarded-For", ""); forwarded != "" {
		parts := strings.SplitN(forwarded, ",", 2)
		if addr := strings.TrimSpace(parts[0]); addr != "" {
			return addr
		}
	}

	if addr := strings.TrimSpace(ctx.GetString("X-Real-Ip", "")); addr != "" {
		return addr
	}

	return "global"
}

// IdentifierKey throttles by the login identifier in the request body so
// one account cannot be hammered from many addresses. Falls back to the
// client address when the body carries no identifier.
func IdentifierKey(field string) func(router.Context) string {
	return func(ctx router.Context) string {
		var payload map[string]any
		if err := ctx.Bind(&payload); err == nil {
			if raw, ok := payload[field].(string); ok {
				if id := strings.ToLower(strings.TrimSpace(raw)); id != "" {
					return id
				}
			}
		}
		return ClientAddressKey(ctx)
	}
}

func defaultErrorHandler(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusTooManyRequests, map[string]any{
		"success": false,
		"error":   "too many requests",
	})
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterRegistry struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rate    rate.Limit
	burst   int
	idleTTL time.Duration
	sweepAt time.Time
}

func newLimiterRegistry(r rate.Limit, burst int, idleTTL time.Duration) *limiterRegistry {
	return &limiterRegistry{
		entries: map[string]*limiterEntry{},
		rate:    r,
		burst:   burst,
		idleTTL: idleTTL,
		sweepAt: time.Now().Add(idleTTL),
	}
}

func (r *limiterRegistry) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.After(r.sweepAt) {
		r.sweep(now)
		r.sweepAt = now.Add(r.idleTTL)
	}

	entry, ok := r.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(r.rate, r.burst)}
		r.entries[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}

// sweep drops buckets idle past the TTL. Caller holds the lock.
func (r *limiterRegistry) sweep(now time.Time) {
	for key, entry := range r.entries {
		if now.Sub(entry.lastSeen) > r.idleTTL {
			delete(r.entries, key)
		}
	}
}
