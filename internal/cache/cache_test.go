package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	c.Set(ctx, "quote:AAPL", []byte(`{"symbol":"AAPL"}`), time.Minute)

	val, ok := c.Get(ctx, "quote:AAPL")
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"symbol":"AAPL"}`), val)
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache()

	_, ok := c.Get(context.Background(), "quote:MSFT")
	assert.False(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	c.Set(ctx, "quote:TSLA", []byte("x"), -time.Second)

	_, ok := c.Get(ctx, "quote:TSLA")
	assert.False(t, ok)

	// expired entry is evicted, not just hidden
	c.mu.RLock()
	_, exists := c.items["quote:TSLA"]
	c.mu.RUnlock()
	assert.False(t, exists)
}

func TestMemoryCacheOverwrite(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("old"), time.Minute)
	c.Set(ctx, "k", []byte("new"), time.Minute)

	val, ok := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("new"), val)
}
