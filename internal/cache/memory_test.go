package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemory_IncrAndVersion(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	v, err := Version(ctx, c, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	for want := int64(1); want <= 3; want++ {
		n, err := c.Incr(ctx, "gen")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	v, err = Version(ctx, c, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestMemory_ExpireKeepsValue(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	_, err := c.Incr(ctx, "counter")
	require.NoError(t, err)
	require.NoError(t, c.Expire(ctx, "counter", 20*time.Millisecond))

	n, err := c.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	time.Sleep(40 * time.Millisecond)
	_, err = c.Get(ctx, "counter")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	type payload struct {
		Name string `json:"name"`
	}

	require.NoError(t, SetJSON(ctx, c, "p", payload{Name: "a"}, time.Minute))
	var out payload
	require.NoError(t, GetJSON(ctx, c, "p", &out))
	assert.Equal(t, "a", out.Name)
}
