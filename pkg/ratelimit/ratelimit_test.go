package ratelimit

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestFixedWindowAllowsExactlyMax(t *testing.T) {
	clock := newClock()
	l := New(WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		res, err := l.Check(ctx, "chat:1.2.3.4", 20, time.Hour)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 20-(i+1), res.Remaining)
	}

	res, err := l.Check(ctx, "chat:1.2.3.4", 20, time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 20, res.Limit)

	retry := l.GetRetryAfter(ctx, "chat:1.2.3.4")
	assert.True(t, retry > 0 && retry <= time.Hour)
}

func TestWindowRollsOver(t *testing.T) {
	clock := newClock()
	l := New(WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, _ := l.Check(ctx, "k", 5, time.Minute)
		assert.True(t, res.Allowed)
	}
	res, _ := l.Check(ctx, "k", 5, time.Minute)
	assert.False(t, res.Allowed)

	clock.Advance(30 * time.Second)
	assert.Equal(t, 30*time.Second, l.GetRetryAfter(ctx, "k"))
	res, _ = l.Check(ctx, "k", 5, time.Minute)
	assert.False(t, res.Allowed)

	clock.Advance(30 * time.Second)
	res, _ = l.Check(ctx, "k", 5, time.Minute)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, clock.Now().Add(time.Minute), res.ResetAt)
}

func TestIdentifiersAreIndependent(t *testing.T) {
	l := New(WithClock(newClock().Now))
	ctx := context.Background()

	res, _ := l.Check(ctx, "a", 1, time.Minute)
	assert.True(t, res.Allowed)
	res, _ = l.Check(ctx, "a", 1, time.Minute)
	assert.False(t, res.Allowed)
	res, _ = l.Check(ctx, "b", 1, time.Minute)
	assert.True(t, res.Allowed)
}

func TestGetRetryAfterUnknownKey(t *testing.T) {
	l := New()
	assert.Equal(t, time.Duration(0), l.GetRetryAfter(context.Background(), "missing"))
}

func TestInvalidPolicy(t *testing.T) {
	l := New()
	_, err := l.Check(context.Background(), "k", 0, time.Minute)
	assert.Error(t, err)
	_, err = l.Check(context.Background(), "k", 1, 0)
	assert.Error(t, err)
}

func TestCleanupDropsExpiredWindows(t *testing.T) {
	clock := newClock()
	l := New(WithClock(clock.Now))
	ctx := context.Background()

	l.Check(ctx, "short", 10, time.Minute)
	l.Check(ctx, "long", 10, time.Hour)
	assert.Equal(t, 2, l.Size())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, l.Cleanup())
	assert.Equal(t, 1, l.Size())
	assert.Equal(t, 0, l.Cleanup())
}

func TestStartStop(t *testing.T) {
	l := New(WithCleanupInterval(time.Hour))
	require.NoError(t, l.Start())
	require.NoError(t, l.Start())
	l.Stop()
	l.Stop()
}

func TestAllowUsesScopedKey(t *testing.T) {
	l := New(WithClock(newClock().Now))
	ctx := context.Background()
	p := Policy{Scope: SCOPE_CONVERSATION, Max: 1, Window: time.Hour}

	res, err := l.Allow(ctx, p, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, _ = l.Allow(ctx, p, "10.0.0.1")
	assert.False(t, res.Allowed)
	assert.True(t, l.GetRetryAfter(ctx, "conversation:10.0.0.1") > 0)

	// other scopes keep their own windows
	res, _ = l.Allow(ctx, Policy{Scope: SCOPE_CHAT, Max: 1, Window: time.Hour}, "10.0.0.1")
	assert.True(t, res.Allowed)
}

func TestFallsBackToLocalWhenRedisUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := New(WithRedis(client, "test:"), WithClock(newClock().Now))
	ctx := context.Background()

	res, err := l.Check(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Check(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "a broken shared store must never degrade to allowed")
	assert.Equal(t, time.Minute, l.GetRetryAfter(ctx, "k"))
}

type countingHook struct {
	commands atomic.Int32
}

func (h *countingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *countingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *countingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestSharedTierBacksOffAfterFailure(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	hook := &countingHook{}
	client.AddHook(hook)

	clock := newClock()
	l := New(WithRedis(client, "test:"), WithClock(clock.Now), WithSharedBackoff(10*time.Second))
	ctx := context.Background()

	_, err := l.Check(ctx, "k", 5, time.Minute)
	require.NoError(t, err)
	afterFailure := hook.commands.Load()
	require.Positive(t, afterFailure)

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, "k", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	l.GetRetryAfter(ctx, "k")
	assert.Equal(t, afterFailure, hook.commands.Load(), "redis must not be retried during the backoff")

	clock.Advance(10 * time.Second)
	_, err = l.Check(ctx, "k", 5, time.Minute)
	require.NoError(t, err)
	assert.Greater(t, hook.commands.Load(), afterFailure)
}

func TestConcurrentChecksCountEveryRequest(t *testing.T) {
	l := New()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _ := l.Check(ctx, "burst", 10, time.Hour)
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}
