package cache

import (
	"testing"

	"github.com/buildforge/engine/asset"
	"github.com/stretchr/testify/assert"
)

func TestCacheCreation(t *testing.T) {
	t.Parallel()

	c := New[string]()
	assert.Equal(t, 0, c.Len())
}

func TestCacheStringOperation(t *testing.T) {
	t.Parallel()

	c := New[string]()

	value, found := c.Get("potato")
	assert.False(t, found)
	assert.Empty(t, value)

	c.Put("potato", "carrot")
	value, found = c.Get("potato")

	assert.True(t, found)
	assert.Equal(t, "carrot", value)
	assert.Equal(t, 1, c.Len())
}

func TestCacheDigestOperation(t *testing.T) {
	t.Parallel()

	c := New[asset.Digest]()
	id := asset.New("pkg", "lib/a.txt")
	digest := asset.Compute(id, []byte("hello"))

	c.Put(id.String(), digest)
	got, found := c.Get(id.String())

	assert.True(t, found)
	assert.Equal(t, digest, got)
}
