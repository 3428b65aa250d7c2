package orderbook

// Reader is the read-only surface of an OrderBook. It must only be used
// from the goroutine that owns the book; other goroutines read published
// BookViews instead.
type Reader interface {
	Instrument() string
	BestBid() (Order, bool)
	BestAsk() (Order, bool)
	BestPrice(side Side) (float64, bool)
	HasOrder(orderID uint64) bool
	Lookup(orderID uint64) (Order, bool)
	Len() int
	LevelCount(side Side) int
	Snapshot() BookView
	Depth(n int) BookView
	PriceRange(min, max float64) BookView
	CheckInvariants() error
}

var _ Reader = (*OrderBook)(nil)
