package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	n    int
	name string
}

func TestArenaAllocGetFree(t *testing.T) {
	a := NewArena[item](ArenaConfig{ChunkSize: 4, Prealloc: 4})
	require.Equal(t, 4, a.Cap())

	h, v := a.Alloc()
	v.n = 7
	require.False(t, h.IsNil())
	assert.Equal(t, 7, a.Get(h).n)
	assert.Equal(t, 1, a.Len())

	a.Free(h)
	assert.Nil(t, a.Get(h), "stale handle must not resolve")
	assert.Equal(t, 0, a.Len())

	h2, v2 := a.Alloc()
	assert.Equal(t, 0, v2.n, "reused slot is zeroed")
	assert.NotEqual(t, h, h2)
	assert.Nil(t, a.Get(h))
}

func TestArenaNilHandle(t *testing.T) {
	a := NewArena[item](ArenaConfig{ChunkSize: 2})
	assert.True(t, Nil.IsNil())
	assert.Nil(t, a.Get(Nil))
	assert.Panics(t, func() { a.Free(Nil) })
}

func TestArenaDoubleFreePanics(t *testing.T) {
	a := NewArena[item](ArenaConfig{ChunkSize: 2})
	h, _ := a.Alloc()
	a.Free(h)
	assert.Panics(t, func() { a.Free(h) })
}

func TestArenaPointersStableAcrossGrowth(t *testing.T) {
	a := NewArena[item](ArenaConfig{ChunkSize: 2})
	h, p := a.Alloc()
	p.name = "first"

	for i := 0; i < 100; i++ {
		a.Alloc()
	}
	assert.Same(t, p, a.Get(h))
	assert.Equal(t, "first", a.Get(h).name)
	assert.GreaterOrEqual(t, a.Cap(), 101)
}

func TestArenaTrimDropsTrailingIdleChunks(t *testing.T) {
	a := NewArena[item](ArenaConfig{ChunkSize: 4, MinFree: 2, MaxFree: 4})

	handles := make([]Handle, 0, 16)
	for i := 0; i < 16; i++ {
		h, _ := a.Alloc()
		handles = append(handles, h)
	}
	require.Equal(t, 16, a.Cap())

	// keep the first chunk busy, release the rest
	keep := handles[0]
	for _, h := range handles[1:] {
		a.Free(h)
	}
	require.Equal(t, 15, a.Available())

	a.Trim()
	assert.LessOrEqual(t, a.Available(), 7)
	assert.GreaterOrEqual(t, a.Available(), 2)
	assert.NotNil(t, a.Get(keep))
	for _, h := range handles[4:] {
		assert.Nil(t, a.Get(h))
	}

	// handles issued after a trim never collide with dropped ones
	h, _ := a.Alloc()
	for _, old := range handles[1:] {
		assert.NotEqual(t, old, h)
	}
}

func TestArenaTrimTopsUp(t *testing.T) {
	a := NewArena[item](ArenaConfig{ChunkSize: 3, MinFree: 5})
	a.Trim()
	assert.GreaterOrEqual(t, a.Available(), 5)
}
