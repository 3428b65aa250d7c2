package snapshot

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"matchbook/domain/orderbook"
)

// Snapshot is one published view. It must be treated as read-only.
type Snapshot struct {
	// Seq is the sequence of the last message applied before the view was taken.
	Seq       uint64
	Published time.Time
	View      orderbook.BookView
}

type Store struct {
	books sync.Map // instrument -> *atomic.Pointer[Snapshot]
	epoch atomic.Uint64
}

func NewStore() *Store {
	return &Store{}
}

// Publish replaces the view of v.Instrument.
func (s *Store) Publish(seq uint64, v orderbook.BookView) {
	snap := &Snapshot{Seq: seq, Published: time.Now(), View: v}
	p, _ := s.books.LoadOrStore(v.Instrument, new(atomic.Pointer[Snapshot]))
	p.(*atomic.Pointer[Snapshot]).Store(snap)
	s.epoch.Add(1)
}

// Load returns the latest view of instrument.
func (s *Store) Load(instrument string) (*Snapshot, bool) {
	p, ok := s.books.Load(instrument)
	if !ok {
		return nil, false
	}
	snap := p.(*atomic.Pointer[Snapshot]).Load()
	return snap, snap != nil
}

// Remove forgets instrument. Readers holding a Snapshot keep it.
func (s *Store) Remove(instrument string) {
	s.books.Delete(instrument)
	s.epoch.Add(1)
}

// Instruments lists the instruments with a published view, sorted.
func (s *Store) Instruments() []string {
	var out []string
	s.books.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	slices.Sort(out)
	return out
}

// Epoch advances on every Publish and Remove.
func (s *Store) Epoch() uint64 {
	return s.epoch.Load()
}
