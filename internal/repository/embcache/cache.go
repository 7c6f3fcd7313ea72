// Package embcache is the process-local query embedding cache.
package embcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Cache maps the sha256 of a query text to its embedding, with LRU eviction.
// Safe for concurrent use. Stored vectors are never mutated: Put keeps the
// first vector seen for a key and both Put and Get copy.
type Cache struct {
	entries    *lru.Cache[string, []float32]
	cacheTotal *prometheus.CounterVec
}

// New creates a cache holding at most capacity vectors.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"); may be nil.
func New(capacity int, cacheTotal *prometheus.CounterVec) (*Cache, error) {
	entries, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru (capacity %d): %w", capacity, err)
	}
	return &Cache{entries: entries, cacheTotal: cacheTotal}, nil
}

// Get returns a copy of the cached vector for text and refreshes its recency.
func (c *Cache) Get(text string) ([]float32, bool) {
	vec, ok := c.entries.Get(Key(text))
	if !ok {
		c.incCache("miss")
		return nil, false
	}
	c.incCache("hit")
	return clone(vec), true
}

// Put stores vec for text unless an entry already exists.
func (c *Cache) Put(text string, vec []float32) {
	c.entries.ContainsOrAdd(Key(text), clone(vec))
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int { return c.entries.Len() }

// Key is the content key of a text: hex sha256 of its exact bytes.
func Key(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
