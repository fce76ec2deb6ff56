package rules

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/backoffice/internal/mapping"
)

// Cache decorates a Store with per-supplier rule snapshots. Reads of a whole
// rule set are served from memory until the TTL expires; every mutation made
// through the cache drops the affected supplier's snapshot. Changes written
// to the underlying store by other processes are picked up after the TTL.
type Cache struct {
	Store

	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	hits    int64
	misses  int64
}

type cacheEntry struct {
	set     mapping.RuleSet
	expires time.Time
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// NewCache wraps store. A ttl of zero or less disables expiry.
func NewCache(store Store, ttl time.Duration) *Cache {
	return &Cache{
		Store:   store,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// LoadRuleSet returns the cached snapshot for supplier, loading it from the
// underlying store on a miss.
func (c *Cache) LoadRuleSet(ctx context.Context, supplier string) (mapping.RuleSet, error) {
	c.mu.Lock()
	if e, ok := c.entries[supplier]; ok && (c.ttl <= 0 || c.now().Before(e.expires)) {
		c.hits++
		c.mu.Unlock()
		return e.set, nil
	}
	c.misses++
	c.mu.Unlock()

	set, err := loadFromStore(ctx, c.Store, supplier)
	if err != nil {
		return mapping.RuleSet{}, err
	}

	c.mu.Lock()
	c.entries[supplier] = cacheEntry{set: set, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()

	slog.Debug("rule set cached",
		"supplier", supplier,
		"basic_rules", len(set.Basic),
		"advanced_rules", len(set.Advanced),
	)
	return set, nil
}

// Invalidate drops the snapshot for supplier.
func (c *Cache) Invalidate(supplier string) {
	c.mu.Lock()
	delete(c.entries, supplier)
	c.mu.Unlock()
}

// InvalidateAll drops every snapshot.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

func (c *Cache) ReplaceBasicRules(ctx context.Context, supplier string, rules []mapping.MappingRule) ([]mapping.MappingRule, error) {
	defer c.Invalidate(supplier)
	return c.Store.ReplaceBasicRules(ctx, supplier, rules)
}

func (c *Cache) SaveBasicRule(ctx context.Context, rule mapping.MappingRule) (mapping.MappingRule, error) {
	saved, err := c.Store.SaveBasicRule(ctx, rule)
	if err == nil {
		c.Invalidate(saved.Supplier)
	}
	return saved, err
}

func (c *Cache) DeleteBasicRule(ctx context.Context, id int64) (string, error) {
	supplier, err := c.Store.DeleteBasicRule(ctx, id)
	if err == nil {
		c.Invalidate(supplier)
	}
	return supplier, err
}

func (c *Cache) CreateAdvancedRule(ctx context.Context, rule mapping.AdvancedRule) (mapping.AdvancedRule, error) {
	created, err := c.Store.CreateAdvancedRule(ctx, rule)
	if err == nil {
		c.Invalidate(created.Supplier)
	}
	return created, err
}

func (c *Cache) SaveAdvancedRule(ctx context.Context, rule mapping.AdvancedRule) (mapping.AdvancedRule, error) {
	saved, err := c.Store.SaveAdvancedRule(ctx, rule)
	if err == nil {
		c.Invalidate(saved.Supplier)
	}
	return saved, err
}

func (c *Cache) DeactivateAdvancedRule(ctx context.Context, id int64) (string, error) {
	supplier, err := c.Store.DeactivateAdvancedRule(ctx, id)
	if err == nil {
		c.Invalidate(supplier)
	}
	return supplier, err
}
