package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheAddAndGet(t *testing.T) {
	c, err := NewCache(2)
	require.NoError(t, err)

	c.Add("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, c.Contains("a"))
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewCache(1)
	require.NoError(t, err)

	c.Add("a", 1)
	c.Add("b", 2)
	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))
}

func TestCacheRemove(t *testing.T) {
	c, err := NewCache(2)
	require.NoError(t, err)
	c.Add("a", 1)
	c.Remove("a")
	assert.False(t, c.Contains("a"))
}

func TestNewCacheRejectsNonPositiveSize(t *testing.T) {
	_, err := NewCache(0)
	assert.Error(t, err)
}
