// Package passphrase implements the process-wide passphrase cache named in
// spec.md §3: an ordered, deduplicated list of previously-successful
// passphrases, scrubbed on forget.
package passphrase

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/kryptco/sshkeyd/internal/zero"
)

const defaultCapacity = 32

// Cache is safe for concurrent use, though the agent core's single-thread
// discipline (spec.md §5) means it is normally only ever touched from the
// event loop goroutine.
type Cache struct {
	mu sync.Mutex
	c  *lru.Cache
}

// New builds a cache bounded to capacity entries; the least-recently-used
// passphrase is evicted (and scrubbed) once the bound is exceeded, mirroring
// the recency structure the teacher builds with the same library
// (kryptco-kr/krd/ssh_agent.go's hostAuthCallbacksBySessionID).
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	c := &Cache{}
	inner, err := lru.NewWithEvict(capacity, c.onEvict)
	if err != nil {
		// Only returned for a non-positive size, which we've just guarded.
		panic(err)
	}
	c.c = inner
	return c
}

func (c *Cache) onEvict(_ interface{}, value interface{}) {
	if g, ok := value.(*zero.Guard); ok {
		g.Release()
	}
}

// Add pushes passphrase to the front of the cache. Empty strings are never
// stored ("not a useful entry", spec.md §4.5), and re-adding an already
// cached passphrase only bumps its recency rather than duplicating it.
func (c *Cache) Add(passphrase string) {
	if passphrase == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.c.Contains(passphrase) {
		c.c.Get(passphrase) // bump recency, no duplicate entry
		return
	}
	c.c.Add(passphrase, zero.NewGuard([]byte(passphrase)))
}

// Candidates returns the cached passphrases, most-recently-added first —
// the order spec.md §4.5's retry loop tries them in.
func (c *Cache) Candidates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.c.Keys() // oldest .. newest
	out := make([]string, len(keys))
	for i, k := range keys {
		out[len(keys)-1-i] = k.(string)
	}
	return out
}

// Len reports the number of cached passphrases.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.c.Len()
}

// Forget scrubs every cached passphrase's guard and empties the cache —
// the "forget_passphrases" operation named in spec.md §3.
func (c *Cache) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.c.Keys() {
		if v, ok := c.c.Peek(k); ok {
			if g, ok := v.(*zero.Guard); ok {
				g.Release()
			}
		}
	}
	c.c.Purge()
}
