// Package cache holds recent hybrid search results.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"devsolver/internal/domain"
)

// Key identifies one search.
type Key struct {
	Technology string
	Query      string
	TopK       int
	Source     domain.SourceLabel
}

func (k Key) hash() string {
	h := sha256.New()
	h.Write([]byte(k.Technology))
	h.Write([]byte{0})
	h.Write([]byte(k.Query))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(k.TopK)))
	h.Write([]byte{0})
	h.Write([]byte(k.Source))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

type cacheEntry struct {
	results []domain.ScoredResult
	gen     uint64
}

// QueryCache is a size- and TTL-bounded LRU of search results. Invalidating a
// technology bumps its generation so older entries stop matching.
type QueryCache struct {
	lru *expirable.LRU[string, cacheEntry]

	mu   sync.Mutex
	gens map[string]uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		lru:  expirable.NewLRU[string, cacheEntry](maxSize, nil, ttl),
		gens: make(map[string]uint64),
	}
}

// Generation returns the current generation of a technology. Callers take
// it before reading the store and hand it back to Put.
func (c *QueryCache) Generation(tech string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[tech]
}

// Get returns a copy of the cached results for key.
func (c *QueryCache) Get(key Key) ([]domain.ScoredResult, bool) {
	h := key.hash()
	entry, ok := c.lru.Get(h)
	if !ok {
		return nil, false
	}
	if entry.gen != c.Generation(key.Technology) {
		c.lru.Remove(h)
		return nil, false
	}
	return append([]domain.ScoredResult(nil), entry.results...), true
}

// Put stores results computed from a snapshot taken at generation gen.
// Results from a snapshot older than the current generation are dropped.
func (c *QueryCache) Put(key Key, results []domain.ScoredResult, gen uint64) {
	if gen != c.Generation(key.Technology) {
		return
	}
	c.lru.Add(key.hash(), cacheEntry{
		results: append([]domain.ScoredResult(nil), results...),
		gen:     gen,
	})
}

// Invalidate drops every cached result for a technology.
func (c *QueryCache) Invalidate(tech string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[tech]++
}

// Purge drops everything.
func (c *QueryCache) Purge() {
	c.lru.Purge()
}

func (c *QueryCache) Size() int {
	return c.lru.Len()
}
