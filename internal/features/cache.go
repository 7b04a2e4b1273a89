package features

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spherical-ai/smartshop-engine/internal/cache"
	"github.com/spherical-ai/smartshop-engine/internal/domain"
)

// rulesVersion is part of shared cache keys; bump it when the rule table changes.
const rulesVersion = "v1"

// Cache memoises attribute maps per product. Readers never block each other;
// two goroutines racing on the same key may both extract, and the first
// stored map wins.
type Cache struct {
	extractor *Extractor
	entries   sync.Map // key: product ID + title hash -> AttributeMap

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// NewCache creates a cache backed by the given extractor.
func NewCache(extractor *Extractor) *Cache {
	if extractor == nil {
		extractor = NewExtractor()
	}
	return &Cache{extractor: extractor}
}

// Extractor returns the underlying extractor.
func (c *Cache) Extractor() *Extractor {
	return c.extractor
}

// Attributes returns the attribute map for a product, extracting it on first use.
func (c *Cache) Attributes(p domain.Product) AttributeMap {
	key := CacheKey(p.ID, p.Title)
	if v, ok := c.entries.Load(key); ok {
		c.hits.Add(1)
		return v.(AttributeMap)
	}
	c.misses.Add(1)
	v, _ := c.entries.LoadOrStore(key, c.extractor.Extract(p.Title))
	return v.(AttributeMap)
}

// Warm fills the cache for products from a shared cache client, extracting
// and publishing the maps the client does not have yet. It returns how many
// maps were loaded from the client.
func (c *Cache) Warm(ctx context.Context, shared cache.Client, ttl time.Duration, products []domain.Product) (int, error) {
	loaded := 0
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}

		key := CacheKey(p.ID, p.Title)
		sharedKey := cache.Key("features", rulesVersion, key)

		var attrs AttributeMap
		found, err := cache.GetJSON(ctx, shared, sharedKey, &attrs)
		if err != nil {
			return loaded, fmt.Errorf("load attributes for %s: %w", p.ID, err)
		}
		if found {
			c.entries.LoadOrStore(key, attrs)
			loaded++
			continue
		}

		if err := cache.SetJSON(ctx, shared, sharedKey, c.Attributes(p), ttl); err != nil {
			return loaded, fmt.Errorf("store attributes for %s: %w", p.ID, err)
		}
	}
	return loaded, nil
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return CacheStats{Entries: n, Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// CacheKey generates the cache key for a product ID and title. A retitled
// product gets a fresh entry.
func CacheKey(productID, title string) string {
	hash := sha256.Sum256([]byte(title))
	return productID + ":" + hex.EncodeToString(hash[:8])
}
