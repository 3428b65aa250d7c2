package memory

import "fmt"

// Handle addresses one slot of an Arena. The zero Handle is nil.
type Handle struct {
	idx uint32
	gen uint64
}

// Nil is the handle that never resolves.
var Nil Handle

func (h Handle) IsNil() bool {
	return h.gen == 0
}

// ArenaConfig sizes an Arena.
type ArenaConfig struct {
	// ChunkSize is the growth batch: slots are allocated this many at a time.
	ChunkSize int
	// Prealloc slots are reserved up front.
	Prealloc int
	// Trim keeps the number of free slots within [MinFree, MaxFree] where
	// chunk boundaries allow.
	MinFree int
	MaxFree int
}

func (c ArenaConfig) normalized() ArenaConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 256
	}
	if c.MaxFree > 0 && c.MaxFree < c.MinFree {
		c.MaxFree = c.MinFree
	}
	return c
}

type slot[T any] struct {
	val T
	gen uint64 // 0 while free
}

// Arena owns values of type T. Pointers returned by Alloc and Get stay valid
// until the slot is freed: chunks are never moved, only appended or dropped.
type Arena[T any] struct {
	cfg    ArenaConfig
	chunks [][]slot[T]
	free   []uint32
	gen    uint64
	live   int
}

func NewArena[T any](cfg ArenaConfig) *Arena[T] {
	a := &Arena[T]{cfg: cfg.normalized()}
	for a.Cap() < a.cfg.Prealloc {
		a.grow()
	}
	return a
}

// Alloc takes a free slot, growing the arena by one chunk when none is left.
// The returned value is zeroed.
func (a *Arena[T]) Alloc() (Handle, *T) {
	if len(a.free) == 0 {
		a.grow()
	}
	i := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]

	s := a.slotAt(i)
	a.gen++
	s.gen = a.gen
	a.live++
	return Handle{idx: i, gen: s.gen}, &s.val
}

// Get resolves h, or returns nil if h is nil or stale.
func (a *Arena[T]) Get(h Handle) *T {
	s := a.lookup(h)
	if s == nil {
		return nil
	}
	return &s.val
}

// Free clears the slot behind h and returns it to the free stack.
// Freeing a stale handle is a programming error and panics.
func (a *Arena[T]) Free(h Handle) {
	s := a.lookup(h)
	if s == nil {
		panic(fmt.Sprintf("memory: free of stale handle %d/%d", h.idx, h.gen))
	}
	var zero T
	s.val = zero
	s.gen = 0
	a.free = append(a.free, h.idx)
	a.live--
}

// Trim tops the free stack up to MinFree and drops trailing chunks that are
// entirely free while more than MaxFree slots are idle.
func (a *Arena[T]) Trim() {
	for len(a.free) < a.cfg.MinFree {
		a.grow()
	}
	if a.cfg.MaxFree <= 0 {
		return
	}

	cs := a.cfg.ChunkSize
	idle := len(a.free)
	keep := len(a.chunks)
	for keep > 1 && idle > a.cfg.MaxFree && idle-cs >= a.cfg.MinFree && chunkIdle(a.chunks[keep-1]) {
		keep--
		idle -= cs
	}
	if keep == len(a.chunks) {
		return
	}

	for i := keep; i < len(a.chunks); i++ {
		a.chunks[i] = nil
	}
	a.chunks = a.chunks[:keep]

	limit := uint32(keep * cs)
	kept := a.free[:0]
	for _, i := range a.free {
		if i < limit {
			kept = append(kept, i)
		}
	}
	a.free = kept
}

// Len is the number of live slots.
func (a *Arena[T]) Len() int { return a.live }

// Available is the number of free slots.
func (a *Arena[T]) Available() int { return len(a.free) }

// Cap is the number of slots currently backed by memory.
func (a *Arena[T]) Cap() int { return len(a.chunks) * a.cfg.ChunkSize }

// ---- internal ----

func (a *Arena[T]) grow() {
	cs := a.cfg.ChunkSize
	base := len(a.chunks) * cs
	a.chunks = append(a.chunks, make([]slot[T], cs))
	// push in reverse so the lowest index is handed out first
	for o := cs - 1; o >= 0; o-- {
		a.free = append(a.free, uint32(base+o))
	}
}

func (a *Arena[T]) slotAt(i uint32) *slot[T] {
	cs := uint32(a.cfg.ChunkSize)
	return &a.chunks[i/cs][i%cs]
}

func (a *Arena[T]) lookup(h Handle) *slot[T] {
	if h.gen == 0 {
		return nil
	}
	cs := uint32(a.cfg.ChunkSize)
	c := int(h.idx / cs)
	if c >= len(a.chunks) {
		return nil
	}
	s := &a.chunks[c][h.idx%cs]
	if s.gen != h.gen {
		return nil
	}
	return s
}

func chunkIdle[T any](chunk []slot[T]) bool {
	for i := range chunk {
		if chunk[i].gen != 0 {
			return false
		}
	}
	return true
}
