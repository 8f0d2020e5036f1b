package mempool

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cellfuzz/txpoolfuzz/types"
)

// TxCache defines an interface for bounded caches keyed by transaction hash.
type TxCache[V any] interface {
	// Reset resets the cache to an empty state.
	Reset()

	// Push adds the given key to the cache and returns true if it was newly
	// added. Otherwise, it updates the value and returns false.
	Push(k types.Hash, v V) bool

	// Get returns the value stored for k.
	Get(k types.Hash) (V, bool)

	// Remove removes the given key from the cache.
	Remove(k types.Hash)

	// Has reports whether k is present in the cache. Checking for presence is
	// not treated as an access of the value.
	Has(k types.Hash) bool
}

var _ TxCache[struct{}] = (*LRUTxCache[struct{}])(nil)

// LRUTxCache maintains a thread-safe LRU cache of transaction hashes.
type LRUTxCache[V any] struct {
	cache *lru.Cache[types.Hash, V]
}

// NewLRUTxCache returns a cache holding up to cacheSize entries. It panics
// if cacheSize is not positive.
func NewLRUTxCache[V any](cacheSize int) *LRUTxCache[V] {
	cache, err := lru.New[types.Hash, V](cacheSize)
	if err != nil {
		panic(err)
	}
	return &LRUTxCache[V]{cache: cache}
}

func (c *LRUTxCache[V]) Reset() {
	c.cache.Purge()
}

func (c *LRUTxCache[V]) Push(k types.Hash, v V) bool {
	if c.cache.Contains(k) {
		c.cache.Add(k, v)
		return false
	}
	c.cache.Add(k, v)
	return true
}

func (c *LRUTxCache[V]) Get(k types.Hash) (V, bool) {
	return c.cache.Get(k)
}

func (c *LRUTxCache[V]) Remove(k types.Hash) {
	c.cache.Remove(k)
}

func (c *LRUTxCache[V]) Has(k types.Hash) bool {
	return c.cache.Contains(k)
}

// Len returns the number of cached entries.
func (c *LRUTxCache[V]) Len() int {
	return c.cache.Len()
}

// NopTxCache defines a no-op transaction cache.
type NopTxCache[V any] struct{}

var _ TxCache[struct{}] = (*NopTxCache[struct{}])(nil)

func (NopTxCache[V]) Reset() {}
func (NopTxCache[V]) Push(types.Hash, V) bool { return true }
func (NopTxCache[V]) Get(types.Hash) (v V, _ bool) { return v, false }
func (NopTxCache[V]) Remove(types.Hash) {}
func (NopTxCache[V]) Has(types.Hash) bool { return false }

func newTxCache[V any](size int) TxCache[V] {
	if size > 0 {
		return NewLRUTxCache[V](size)
	}
	return NopTxCache[V]{}
}
