// Package cache holds the last known lookup result per identifier with a
// time-based expiry. Entries expire lazily: an expired entry is evicted by
// the Get that observes it. No background sweeper runs.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hazyhaar/avatard/profile"
)

// DefaultTTL is how long a stored result stays fresh.
const DefaultTTL = 24 * time.Hour

// Clock returns the current time. Tests replace it to simulate expiry.
type Clock func() time.Time

// Config configures a Cache.
type Config struct {
	// TTL is the freshness window. Default: 24h.
	TTL time.Duration

	// MaxEntries bounds the cache with LRU eviction. 0 = unbounded.
	MaxEntries int

	// Clock defaults to time.Now.
	Clock Clock
}

func (c *Config) defaults() {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Cache maps normalized identifiers to results. Safe for concurrent use.
type Cache struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]profile.Result // unbounded mode
	bounded *lru.Cache[string, profile.Result]

	hits, misses, expired int64
}

// New creates a Cache.
func New(cfg Config) *Cache {
	cfg.defaults()
	c := &Cache{cfg: cfg}
	if cfg.MaxEntries > 0 {
		// lru.New only fails on a non-positive size.
		c.bounded, _ = lru.New[string, profile.Result](cfg.MaxEntries)
	} else {
		c.entries = make(map[string]profile.Result)
	}
	return c
}

// Get returns the stored result for id. An entry older than the TTL is
// evicted and reported absent.
func (c *Cache) Get(id string) (profile.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.load(id)
	if !ok {
		c.misses++
		return profile.Result{}, false
	}
	if c.cfg.Clock().Sub(r.FetchedAt) > c.cfg.TTL {
		c.remove(id)
		c.expired++
		c.misses++
		return profile.Result{}, false
	}
	c.hits++
	return r, true
}

// Set stores r under id, stamping FetchedAt with the current time. Any
// previous entry is replaced.
func (c *Cache) Set(id string, r profile.Result) profile.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	r.FetchedAt = c.cfg.Clock()
	if c.bounded != nil {
		c.bounded.Add(id, r)
	} else {
		c.entries[id] = r
	}
	return r
}

// Len returns the number of stored entries, expired ones included until a
// Get evicts them.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bounded != nil {
		return c.bounded.Len()
	}
	return len(c.entries)
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Expired int64 `json:"expired"`
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	n := c.Len()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: n, Hits: c.hits, Misses: c.misses, Expired: c.expired}
}

func (c *Cache) load(id string) (profile.Result, bool) {
	if c.bounded != nil {
		return c.bounded.Get(id)
	}
	r, ok := c.entries[id]
	return r, ok
}

func (c *Cache) remove(id string) {
	if c.bounded != nil {
		c.bounded.Remove(id)
		return
	}
	delete(c.entries, id)
}
