package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	l := NewLRU[int, []byte](2)

	l.Put(0, []byte("zero"))
	l.Put(1, []byte("one"))

	// touch 0 so 1 becomes the eviction candidate
	_, ok := l.Get(0)
	assert.True(t, ok)

	l.Put(2, []byte("two"))
	assert.Equal(t, 2, l.Len())

	_, ok = l.Get(1)
	assert.False(t, ok, "block 1 should have been evicted")

	v, ok := l.Get(0)
	assert.True(t, ok)
	assert.Equal(t, []byte("zero"), v)

	v, ok = l.Get(2)
	assert.True(t, ok)
	assert.Equal(t, []byte("two"), v)
}

func TestLRUPutReplacesExisting(t *testing.T) {
	l := NewLRU[string, int](1)

	l.Put("a", 1)
	l.Put("a", 2)
	assert.Equal(t, 1, l.Len())

	v, ok := l.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestLRUZeroCapacityKeepsNothing(t *testing.T) {
	l := NewLRU[int, string](0)
	l.Put(1, "x")

	_, ok := l.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, l.Len())

	// evicting an empty cache is a no-op
	l.Evict()
	assert.Equal(t, 0, l.Len())
}
