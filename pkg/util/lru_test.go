package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCapacity(t *testing.T) {
	var evicted []string
	c, err := NewLRU[string, int](CacheConfig{Capacity: 2}, func(k string, _ int) {
		evicted = append(evicted, k)
	})
	require.NoError(t, err)

	c.Put("a", 1, 1)
	c.Put("b", 2, 1)
	_, ok := c.Get("a") // a 变为最近使用
	require.True(t, ok)
	c.Put("c", 3, 1)

	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, c.Len())

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.Equal(t, []string{"b"}, evicted)
}

func TestLRUWeightAndTTL(t *testing.T) {
	c, err := NewLRU[string, string](CacheConfig{MaxWeight: 10, TTL: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	c.Put("x", "x", 6)
	c.Put("y", "y", 6)
	_, ok := c.Get("x")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get("y")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	_, err = NewLRU[string, int](CacheConfig{}, nil)
	assert.Error(t, err)
}
