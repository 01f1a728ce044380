package decompiler

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"

	"github.com/chazu/pyrecon/grammar"
	"github.com/chazu/pyrecon/pyc"
)

// Cache keeps reconstructed code units across requests, keyed by the
// content hash of the unit's marshal form. A nil *Cache caches nothing.
type Cache struct {
	lru    *lru.Cache[uint64, entry]
	hits   atomic.Int64
	misses atomic.Int64
}

// entry holds the results for a unit and its nested units, aligned with
// CodeUnit.Walk order. Units the reducer never reached are nil.
type entry []*grammar.Result

// NewCache returns a cache holding up to size units. A size of zero or
// less disables caching and returns nil.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}
	l, err := lru.New[uint64, entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Stats reports lookups that hit and missed.
func (c *Cache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached units.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

func (c *Cache) get(key uint64) (entry, bool) {
	if c == nil {
		return nil, false
	}
	e, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return e, ok
}

func (c *Cache) add(key uint64, e entry) {
	if c == nil {
		return
	}
	c.lru.Add(key, e)
}

// unitHash hashes the revision tag and the marshal form of u. Units that
// cannot be marshalled are not cached.
func unitHash(u *pyc.CodeUnit, revision string) (uint64, bool) {
	w, err := pyc.NewWriter(revision)
	if err != nil {
		return 0, false
	}
	data, err := w.Marshal(u)
	if err != nil {
		return 0, false
	}
	h := xxh3.New()
	h.Write([]byte(revision))
	h.Write([]byte{0})
	h.Write(data)
	return h.Sum64(), true
}
