package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/quka-ai/supportchat/pkg/types"
)

const (
	EMPTY_KNOWLEDGE = "No specific knowledge base available."

	DefaultLocalTTL  = time.Minute
	DefaultSharedTTL = 5 * time.Minute

	cacheKey = "knowledge:formatted"
)

const (
	TIER_SHARED = "shared"
	TIER_LOCAL  = "local"
	TIER_SOURCE = "source"
)

// Source yields the active knowledge entries.
type Source interface {
	ListActive(ctx context.Context) ([]*types.KnowledgeEntry, error)
}

// Recorder observes cache lookups; result is "hit" or "miss".
type Recorder interface {
	KnowledgeCacheInc(tier, result string)
}

// Cache memoizes the prompt ready knowledge document. Lookups try the
// shared tier, then the local copy, then rebuild from the source.
type Cache struct {
	source    Source
	shared    types.Cache
	key       string
	localTTL  time.Duration
	sharedTTL time.Duration
	recorder  Recorder
	now       func() time.Time

	mu        sync.RWMutex
	doc       string
	expiresAt time.Time
	valid     bool
	gen       uint64

	loadMu sync.Mutex
}

type Option func(*Cache)

// WithShared enables the multi-instance tier. keyPrefix namespaces the key.
func WithShared(c types.Cache, keyPrefix string) Option {
	return func(k *Cache) {
		k.shared = c
		k.key = keyPrefix + cacheKey
	}
}

func WithTTL(local, shared time.Duration) Option {
	return func(k *Cache) {
		if local > 0 {
			k.localTTL = local
		}
		if shared > 0 {
			k.sharedTTL = shared
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(k *Cache) {
		k.recorder = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(k *Cache) {
		k.now = now
	}
}

func NewCache(source Source, opts ...Option) *Cache {
	c := &Cache{
		source:    source,
		key:       cacheKey,
		localTTL:  DefaultLocalTTL,
		sharedTTL: DefaultSharedTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) record(tier, result string) {
	if c.recorder != nil {
		c.recorder.KnowledgeCacheInc(tier, result)
	}
}

// FormatForPrompt returns the knowledge document, rebuilding it only on a
// full miss.
func (c *Cache) FormatForPrompt(ctx context.Context) (string, error) {
	if doc, ok := c.fromShared(ctx); ok {
		return doc, nil
	}
	if doc, ok := c.fromLocal(); ok {
		return doc, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	// another caller may have rebuilt while we waited
	if doc, ok := c.fromLocal(); ok {
		return doc, nil
	}

	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	entries, err := c.source.ListActive(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load knowledge entries, %w", err)
	}
	c.record(TIER_SOURCE, "miss")
	doc := Format(entries)

	c.mu.Lock()
	stale := gen != c.gen
	if !stale {
		c.doc = doc
		c.expiresAt = c.now().Add(c.localTTL)
		c.valid = true
	}
	c.mu.Unlock()

	if !stale && c.shared != nil {
		if err := c.shared.SetEx(ctx, c.key, doc, c.sharedTTL); err != nil {
			slog.Warn("failed to write knowledge document to shared cache", slog.String("error", err.Error()), slog.String("component", "knowledge"))
		}
	}
	return doc, nil
}

func (c *Cache) fromShared(ctx context.Context) (string, bool) {
	if c.shared == nil {
		return "", false
	}
	doc, err := c.shared.Get(ctx, c.key)
	if err != nil {
		if !errors.Is(err, types.ErrCacheMiss) {
			slog.Warn("shared knowledge cache unavailable", slog.String("error", err.Error()), slog.String("component", "knowledge"))
		}
		c.record(TIER_SHARED, "miss")
		return "", false
	}
	c.record(TIER_SHARED, "hit")
	return doc, true
}

func (c *Cache) fromLocal() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.valid && c.now().Before(c.expiresAt) {
		c.record(TIER_LOCAL, "hit")
		return c.doc, true
	}
	c.record(TIER_LOCAL, "miss")
	return "", false
}

// Invalidate drops both tiers. A shared tier failure is logged; the local
// copy is always cleared before returning. The shared delete waits for an
// in-flight rebuild so its write cannot land after the delete.
func (c *Cache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.gen++
	c.valid = false
	c.doc = ""
	c.mu.Unlock()

	if c.shared == nil {
		return
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if err := c.shared.Del(ctx, c.key); err != nil {
		slog.Warn("failed to invalidate shared knowledge cache", slog.String("error", err.Error()), slog.String("component", "knowledge"))
	}
}

// Format renders active entries grouped by category. Groups are ordered by
// category name, entries by priority desc then title.
func Format(entries []*types.KnowledgeEntry) string {
	active := lo.Filter(entries, func(item *types.KnowledgeEntry, _ int) bool {
		return item != nil && item.IsActive
	})
	if len(active) == 0 {
		return EMPTY_KNOWLEDGE
	}

	grouped := lo.GroupBy(active, func(item *types.KnowledgeEntry) string {
		return item.Category
	})
	categories := lo.Keys(grouped)
	sort.Strings(categories)

	sections := make([]string, 0, len(categories))
	for _, category := range categories {
		items := grouped[category]
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Priority != items[j].Priority {
				return items[i].Priority > items[j].Priority
			}
			return items[i].Title < items[j].Title
		})
		body := lo.Map(items, func(item *types.KnowledgeEntry, _ int) string {
			return fmt.Sprintf("**%s**\n%s", item.Title, item.Content)
		})
		sections = append(sections, fmt.Sprintf("## %s\n\n%s", CategoryTitle(category), strings.Join(body, "\n\n")))
	}
	return strings.Join(sections, "\n\n")
}

// CategoryTitle turns "return_policy" into "Return Policy".
func CategoryTitle(category string) string {
	words := strings.Split(category, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
