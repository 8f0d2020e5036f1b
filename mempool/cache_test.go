package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellfuzz/txpoolfuzz/types"
)

func TestCacheRemove(t *testing.T) {
	cache := NewLRUTxCache[types.RejectReason](100)
	key := types.Sum([]byte{0x01})

	require.True(t, cache.Push(key, types.ReasonDoubleSpend))
	assert.True(t, cache.Has(key))
	reason, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, types.ReasonDoubleSpend, reason)

	cache.Remove(key)
	assert.False(t, cache.Has(key))
}

func TestCachePushUpdates(t *testing.T) {
	cache := NewLRUTxCache[types.RejectReason](100)
	key := types.Sum([]byte{0x01})

	require.True(t, cache.Push(key, types.ReasonUnknownInput))
	require.False(t, cache.Push(key, types.ReasonDoubleSpend))
	reason, _ := cache.Get(key)
	assert.Equal(t, types.ReasonDoubleSpend, reason)
}

func TestCacheEvictsOldest(t *testing.T) {
	cache := NewLRUTxCache[struct{}](2)
	a, b, c := types.Sum([]byte{1}), types.Sum([]byte{2}), types.Sum([]byte{3})
	cache.Push(a, struct{}{})
	cache.Push(b, struct{}{})
	cache.Push(c, struct{}{})

	assert.False(t, cache.Has(a))
	assert.True(t, cache.Has(b))
	assert.True(t, cache.Has(c))
	assert.Equal(t, 2, cache.Len())

	cache.Reset()
	assert.Zero(t, cache.Len())
}

func TestNopTxCache(t *testing.T) {
	cache := newTxCache[struct{}](0)
	key := types.Sum([]byte{1})
	assert.True(t, cache.Push(key, struct{}{}))
	assert.False(t, cache.Has(key))
}
