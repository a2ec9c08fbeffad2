package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

const (
	SCOPE_CHAT         = "chat"
	SCOPE_CONVERSATION = "conversation"
	SCOPE_GLOBAL       = "global"

	DefaultCleanupInterval = 5 * time.Minute
	DefaultSharedBackoff   = 5 * time.Second
)

// Policy is one fixed window rule, e.g. 20 requests per hour.
type Policy struct {
	Scope  string
	Max    int
	Window time.Duration
}

func (p Policy) Key(identifier string) string {
	return p.Scope + ":" + identifier
}

// Result describes the window state after a Check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (r Result) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

type window struct {
	count   int
	resetAt time.Time
}

// fixedWindowScript increments the counter and sets its expiry on the
// first hit of a window. It returns {count, pttl}.
var fixedWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// Limiter is a fixed window counter. Redis is authoritative when
// configured; the in-process table is a best effort fallback and is never
// reconciled with redis.
type Limiter struct {
	redis   redis.UniversalClient
	prefix  string
	local   cmap.ConcurrentMap[string, window]
	cleanup time.Duration
	cron    *cron.Cron
	now     func() time.Time

	// after a failed redis call the shared tier is skipped until this
	// instant (unix nanos)
	sharedBackoff   time.Duration
	sharedDownUntil atomic.Int64
}

type Option func(*Limiter)

// WithRedis enables the shared tier. A nil client keeps the limiter local.
func WithRedis(client redis.UniversalClient, keyPrefix string) Option {
	return func(l *Limiter) {
		l.redis = client
		l.prefix = keyPrefix
	}
}

// WithSharedBackoff sets how long the limiter stays on the local table
// after a redis failure.
func WithSharedBackoff(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.sharedBackoff = d
		}
	}
}

func WithCleanupInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.cleanup = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func New(opts ...Option) *Limiter {
	l := &Limiter{
		local:   cmap.New[window](),
		cleanup:       DefaultCleanupInterval,
		now:           time.Now,
		sharedBackoff: DefaultSharedBackoff,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start schedules the periodic purge of expired local windows.
func (l *Limiter) Start() error {
	if l.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", l.cleanup), func() {
		if n := l.Cleanup(); n > 0 {
			slog.Debug("rate limiter cleanup", slog.Int("removed", n), slog.String("component", "ratelimit"))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule rate limiter cleanup, %w", err)
	}
	c.Start()
	l.cron = c
	return nil
}

// Stop halts the cleanup schedule and waits for a running purge.
func (l *Limiter) Stop() {
	if l.cron == nil {
		return
	}
	<-l.cron.Stop().Done()
	l.cron = nil
}

// Cleanup removes expired local windows and reports how many were dropped.
func (l *Limiter) Cleanup() int {
	now := l.now()
	removed := 0
	for _, key := range l.local.Keys() {
		if l.local.RemoveCb(key, func(_ string, w window, exists bool) bool {
			return exists && !now.Before(w.resetAt)
		}) {
			removed++
		}
	}
	return removed
}

// Size is the number of local windows currently held.
func (l *Limiter) Size() int {
	return l.local.Count()
}

// Check counts one request for identifier against max per window.
func (l *Limiter) Check(ctx context.Context, identifier string, max int, period time.Duration) (Result, error) {
	if max <= 0 || period <= 0 {
		return Result{}, fmt.Errorf("invalid rate limit policy: max=%d window=%s", max, period)
	}
	if l.sharedUsable() {
		res, err := l.checkShared(ctx, identifier, max, period)
		if err == nil {
			return res, nil
		}
		l.sharedDownUntil.Store(l.now().Add(l.sharedBackoff).UnixNano())
		slog.Warn("rate limiter shared store unavailable, using local window",
			slog.String("identifier", identifier),
			slog.String("error", err.Error()),
			slog.Duration("backoff", l.sharedBackoff),
			slog.String("component", "ratelimit"))
	}
	return l.checkLocal(identifier, max, period), nil
}

func (l *Limiter) sharedUsable() bool {
	return l.redis != nil && l.now().UnixNano() >= l.sharedDownUntil.Load()
}

func (l *Limiter) checkShared(ctx context.Context, identifier string, max int, period time.Duration) (Result, error) {
	vals, err := fixedWindowScript.Run(ctx, l.redis, []string{l.prefix + identifier}, period.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("unexpected rate limit script reply: %v", vals)
	}
	count, ttl := int(vals[0]), time.Duration(vals[1])*time.Millisecond
	return Result{
		Allowed:   count <= max,
		Limit:     max,
		Remaining: remaining(max, count),
		ResetAt:   l.now().Add(ttl),
	}, nil
}

func (l *Limiter) checkLocal(identifier string, max int, period time.Duration) Result {
	now := l.now()
	var res Result
	l.local.Upsert(identifier, window{}, func(exist bool, cur window, _ window) window {
		if !exist || !now.Before(cur.resetAt) {
			cur = window{resetAt: now.Add(period)}
		}
		if cur.count >= max {
			res = Result{Allowed: false, Limit: max, Remaining: 0, ResetAt: cur.resetAt}
			return cur
		}
		cur.count++
		res = Result{Allowed: true, Limit: max, Remaining: remaining(max, cur.count), ResetAt: cur.resetAt}
		return cur
	})
	return res
}

// GetRetryAfter returns the time left until identifier's window resets,
// zero when no window is open.
func (l *Limiter) GetRetryAfter(ctx context.Context, identifier string) time.Duration {
	if l.sharedUsable() {
		ttl, err := l.redis.PTTL(ctx, l.prefix+identifier).Result()
		if err == nil {
			if ttl < 0 {
				return 0
			}
			return ttl
		}
	}
	w, ok := l.local.Get(identifier)
	if !ok {
		return 0
	}
	if d := w.resetAt.Sub(l.now()); d > 0 {
		return d
	}
	return 0
}

// Allow applies policy to identifier (usually the client ip).
func (l *Limiter) Allow(ctx context.Context, policy Policy, identifier string) (Result, error) {
	return l.Check(ctx, policy.Key(identifier), policy.Max, policy.Window)
}

func remaining(max, count int) int {
	if count >= max {
		return 0
	}
	return max - count
}
