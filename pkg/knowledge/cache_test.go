package knowledge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/supportchat/pkg/types"
)

type fakeSource struct {
	mu      sync.Mutex
	entries []*types.KnowledgeEntry
	calls   atomic.Int32
	err     error
}

func (s *fakeSource) ListActive(ctx context.Context) ([]*types.KnowledgeEntry, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]*types.KnowledgeEntry(nil), s.entries...), nil
}

func (s *fakeSource) set(entries ...*types.KnowledgeEntry) {
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
}

type memCache struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.data[key]
	if !ok {
		return "", types.ErrCacheMiss
	}
	return v, nil
}

func (m *memCache) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	m.ttl[key] = ttl
	return nil
}

func (m *memCache) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

func entry(category, title, content string, priority int) *types.KnowledgeEntry {
	return &types.KnowledgeEntry{Category: category, Title: title, Content: content, Priority: priority, IsActive: true}
}

func TestFormatGroupsAndOrders(t *testing.T) {
	doc := Format([]*types.KnowledgeEntry{
		entry("shipping", "Costs", "Free over $50.", 5),
		entry("return_policy", "Window", "30 days.", 1),
		entry("shipping", "Regions", "US and Canada.", 10),
		entry("shipping", "Carriers", "UPS.", 5),
		{Category: "hidden", Title: "Off", Content: "nope", IsActive: false},
	})

	want := "## Return Policy\n\n**Window**\n30 days.\n\n" +
		"## Shipping\n\n**Regions**\nUS and Canada.\n\n**Carriers**\nUPS.\n\n**Costs**\nFree over $50."
	assert.Equal(t, want, doc)
}

func TestFormatEmptyReturnsSentinel(t *testing.T) {
	assert.Equal(t, EMPTY_KNOWLEDGE, Format(nil))
	assert.Equal(t, EMPTY_KNOWLEDGE, Format([]*types.KnowledgeEntry{{Category: "a", IsActive: false}}))
}

func TestCategoryTitle(t *testing.T) {
	assert.Equal(t, "Return Policy", CategoryTitle("return_policy"))
	assert.Equal(t, "Faq", CategoryTitle("faq"))
	assert.Equal(t, "A  B", CategoryTitle("a__b"))
}

func TestFormatForPromptIsIdempotentAndCached(t *testing.T) {
	src := &fakeSource{}
	src.set(entry("support", "Hours", "9-5", 1))
	c := NewCache(src)
	ctx := context.Background()

	first, err := c.FormatForPrompt(ctx)
	require.NoError(t, err)
	second, err := c.FormatForPrompt(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestSentinelIsCached(t *testing.T) {
	src := &fakeSource{}
	c := NewCache(src)
	ctx := context.Background()

	doc, err := c.FormatForPrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, EMPTY_KNOWLEDGE, doc)

	_, _ = c.FormatForPrompt(ctx)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestInvalidateReflectsMutation(t *testing.T) {
	src := &fakeSource{}
	src.set(entry("support", "Hours", "9-5", 1))
	shared := newMemCache()
	c := NewCache(src, WithShared(shared, "test:"))
	ctx := context.Background()

	before, err := c.FormatForPrompt(ctx)
	require.NoError(t, err)
	assert.Contains(t, before, "9-5")

	src.set(entry("support", "Hours", "8-8", 1))
	c.Invalidate(ctx)

	after, err := c.FormatForPrompt(ctx)
	require.NoError(t, err)
	assert.Contains(t, after, "8-8")
	assert.Equal(t, int32(2), src.calls.Load())
}

// gatedCache holds the first SetEx until release is closed.
type gatedCache struct {
	*memCache
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedCache) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.memCache.SetEx(ctx, key, value, ttl)
}

func TestInvalidateDuringSharedWrite(t *testing.T) {
	src := &fakeSource{}
	src.set(entry("shipping", "Old", "v1", 1))
	shared := &gatedCache{memCache: newMemCache(), entered: make(chan struct{}), release: make(chan struct{})}
	c := NewCache(src, WithShared(shared, "test:"))
	ctx := context.Background()

	loaded := make(chan struct{})
	go func() {
		defer close(loaded)
		_, _ = c.FormatForPrompt(ctx)
	}()
	<-shared.entered

	src.set(entry("shipping", "New", "v2", 1))
	invalidated := make(chan struct{})
	go func() {
		defer close(invalidated)
		c.Invalidate(ctx)
	}()
	require.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.gen == 1
	}, time.Second, time.Millisecond)

	close(shared.release)
	<-loaded
	<-invalidated

	doc, err := c.FormatForPrompt(ctx)
	require.NoError(t, err)
	assert.Contains(t, doc, "v2")
	assert.NotContains(t, doc, "v1")
}

func TestLocalTTLExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{}
	c := NewCache(src, WithTTL(time.Minute, 0), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, _ = c.FormatForPrompt(ctx)
	now = now.Add(59 * time.Second)
	_, _ = c.FormatForPrompt(ctx)
	assert.Equal(t, int32(1), src.calls.Load())

	now = now.Add(time.Second)
	_, _ = c.FormatForPrompt(ctx)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestSharedTierWriteThroughAndHit(t *testing.T) {
	src := &fakeSource{}
	src.set(entry("payment", "Cards", "Visa", 1))
	shared := newMemCache()
	ctx := context.Background()

	a := NewCache(src, WithShared(shared, "sc:"), WithTTL(time.Minute, 10*time.Minute))
	doc, err := a.FormatForPrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, doc, shared.data["sc:"+cacheKey])
	assert.Equal(t, 10*time.Minute, shared.ttl["sc:"+cacheKey])

	// a second instance is served from the shared tier
	b := NewCache(src, WithShared(shared, "sc:"))
	got, err := b.FormatForPrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestSharedTierFailureFallsBack(t *testing.T) {
	src := &fakeSource{}
	src.set(entry("payment", "Cards", "Visa", 1))
	shared := newMemCache()
	shared.err = errors.New("connection refused")
	c := NewCache(src, WithShared(shared, ""))
	ctx := context.Background()

	doc, err := c.FormatForPrompt(ctx)
	require.NoError(t, err)
	assert.Contains(t, doc, "Visa")

	_, err = c.FormatForPrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load(), "local tier serves while shared is down")

	assert.NotPanics(t, func() { c.Invalidate(ctx) })
}

func TestSourceErrorPropagates(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	c := NewCache(src)
	_, err := c.FormatForPrompt(context.Background())
	assert.Error(t, err)
}

func TestConcurrentMissesLoadOnce(t *testing.T) {
	src := &fakeSource{}
	src.set(entry("a", "b", "c", 0))
	c := NewCache(src)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.FormatForPrompt(ctx)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
}
