package orderbook

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"matchbook/infra/memory"
)

// Config sizes the node and level arenas of a book.
type Config struct {
	Nodes  memory.ArenaConfig
	Levels memory.ArenaConfig
	// TrimEvery releases, both arenas are trimmed back toward their
	// [MinFree, MaxFree] range. 0 disables trimming.
	TrimEvery int
}

func DefaultConfig() Config {
	return Config{
		Nodes: memory.ArenaConfig{
			ChunkSize: 2000,
			Prealloc:  10000,
			MinFree:   5000,
			MaxFree:   20000,
		},
		Levels: memory.ArenaConfig{
			ChunkSize: 200,
			Prealloc:  1000,
			MinFree:   1000,
			MaxFree:   2000,
		},
		TrimEvery: 4096,
	}
}

type Option func(*OrderBook)

func WithConfig(cfg Config) Option {
	return func(b *OrderBook) { b.cfg = cfg }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *OrderBook) {
		if l != nil {
			b.log = l
		}
	}
}

// OrderBook is single-writer and deterministic.
type OrderBook struct {
	instrument string
	cfg        Config
	log        *zap.Logger

	bestBid memory.Handle
	bestAsk memory.Handle

	levels map[levelKey]memory.Handle
	orders map[uint64]memory.Handle

	nodes *memory.Arena[orderNode]
	lvls  *memory.Arena[priceLevel]

	releases int
}

func New(instrument string, opts ...Option) *OrderBook {
	b := &OrderBook{
		instrument: instrument,
		cfg:        DefaultConfig(),
		log:        zap.NewNop(),
		levels:     make(map[levelKey]memory.Handle),
		orders:     make(map[uint64]memory.Handle),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(zap.String("instrument", instrument))
	b.nodes = memory.NewArena[orderNode](b.cfg.Nodes)
	b.lvls = memory.NewArena[priceLevel](b.cfg.Levels)
	return b
}

func (b *OrderBook) Instrument() string {
	return b.instrument
}

// ──────────────────────────────────────────────────────────
// Mutations
// ──────────────────────────────────────────────────────────

// AddLimitOrder appends o to the tail of its price level, creating and
// splicing the level into its side's chain when it does not exist yet.
// The book takes ownership of o.
func (b *OrderBook) AddLimitOrder(o *Order) error {
	if !validPrice(o.Price) {
		return fmt.Errorf("%w: got %g", ErrInvalidPrice, o.Price)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, o.Quantity)
	}
	if _, dup := b.orders[o.ID]; dup {
		return fmt.Errorf("%w: %d", ErrOrderExists, o.ID)
	}

	nh, node := b.nodes.Alloc()
	node.order = o

	key := levelKey{side: o.Side, price: o.Price}
	lh, ok := b.levels[key]
	if ok {
		lvl := b.lvls.Get(lh)
		b.nodes.Get(lvl.tail).next = nh
		node.prev = lvl.tail
		lvl.tail = nh
		lvl.totalQty += o.Quantity
		lvl.count++
	} else {
		var lvl *priceLevel
		lh, lvl = b.lvls.Alloc()
		lvl.price = o.Price
		lvl.side = o.Side
		lvl.totalQty = o.Quantity
		lvl.count = 1
		lvl.head = nh
		lvl.tail = nh
		b.levels[key] = lh
		b.linkLevel(lh, lvl)
	}
	node.level = lh
	b.orders[o.ID] = nh
	return nil
}

// CancelLimitOrder removes a resting order. Unknown ids are tolerated:
// cancels racing fills are normal traffic. Reports whether anything was removed.
func (b *OrderBook) CancelLimitOrder(orderID uint64) bool {
	nh, ok := b.orders[orderID]
	if !ok {
		b.log.Debug("cancel: order not in book", zap.Uint64("order_id", orderID))
		return false
	}
	b.removeNode(nh)
	return true
}

// Modification describes what ModifyLimitOrder did.
type Modification struct {
	// Cancelled is set when the new quantity was zero.
	Cancelled bool
	// Resubmit is set when the price changed. The old order has already been
	// removed; the caller must run Resubmit through matching since the new
	// price may cross the book.
	Resubmit *Order
}

// ModifyLimitOrder changes price and/or quantity of a resting order.
//
// Same price: quantity is updated in place and time priority is kept.
// New price: the order is removed and returned for resubmission with the
// same id and a fresh timestamp.
func (b *OrderBook) ModifyLimitOrder(orderID uint64, newPrice float64, newQty int64) (Modification, error) {
	nh, ok := b.orders[orderID]
	if !ok {
		b.log.Debug("modify: order not in book", zap.Uint64("order_id", orderID))
		return Modification{}, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	if !validPrice(newPrice) {
		return Modification{}, fmt.Errorf("%w: got %g", ErrInvalidPrice, newPrice)
	}
	if newQty < 0 {
		return Modification{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, newQty)
	}
	if newQty == 0 {
		b.removeNode(nh)
		return Modification{Cancelled: true}, nil
	}

	node := b.nodes.Get(nh)
	o := node.order

	if newPrice == o.Price {
		lvl := b.lvls.Get(node.level)
		lvl.totalQty += newQty - o.Quantity
		o.Quantity = newQty
		return Modification{}, nil
	}

	resubmit := &Order{
		ID:         o.ID,
		Instrument: o.Instrument,
		Price:      newPrice,
		Quantity:   newQty,
		Side:       o.Side,
		Type:       Limit,
		Timestamp:  time.Now(),
	}
	b.removeNode(nh)
	return Modification{Resubmit: resubmit}, nil
}

// ──────────────────────────────────────────────────────────
// Matching primitives
// ──────────────────────────────────────────────────────────

// Front returns the oldest order of the best level on side.
// The order stays owned by the book; only FillFront may change it.
func (b *OrderBook) Front(side Side) (*Order, bool) {
	lh := *b.best(side)
	if lh.IsNil() {
		return nil, false
	}
	lvl := b.lvls.Get(lh)
	return b.nodes.Get(lvl.head).order, true
}

// FillFront takes qty from the front order of side. A maker that reaches
// zero is removed, and its level with it if the level empties. Reports
// whether the maker was fully filled.
func (b *OrderBook) FillFront(side Side, qty int64) bool {
	lh := *b.best(side)
	if lh.IsNil() {
		panic(fmt.Sprintf("orderbook %s: fill on empty %s side", b.instrument, side))
	}
	lvl := b.lvls.Get(lh)
	nh := lvl.head
	o := b.nodes.Get(nh).order

	if qty <= 0 || qty > o.Quantity {
		panic(fmt.Sprintf("orderbook %s: fill of %d against resting %d on order %d",
			b.instrument, qty, o.Quantity, o.ID))
	}
	if qty == o.Quantity {
		b.removeNode(nh)
		return true
	}

	o.Quantity -= qty
	lvl.totalQty -= qty
	if lvl.totalQty <= 0 {
		panic(fmt.Sprintf("orderbook %s: level %g quantity %d after partial fill",
			b.instrument, lvl.price, lvl.totalQty))
	}
	return false
}

// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────

// BestBid returns a copy of the highest-priority resting buy order.
func (b *OrderBook) BestBid() (Order, bool) {
	return b.frontCopy(Buy)
}

// BestAsk returns a copy of the highest-priority resting sell order.
func (b *OrderBook) BestAsk() (Order, bool) {
	return b.frontCopy(Sell)
}

// BestPrice returns the price of the best level on side.
func (b *OrderBook) BestPrice(side Side) (float64, bool) {
	lh := *b.best(side)
	if lh.IsNil() {
		return 0, false
	}
	return b.lvls.Get(lh).price, true
}

func (b *OrderBook) HasOrder(orderID uint64) bool {
	_, ok := b.orders[orderID]
	return ok
}

// Lookup returns a copy of a resting order.
func (b *OrderBook) Lookup(orderID uint64) (Order, bool) {
	nh, ok := b.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *b.nodes.Get(nh).order, true
}

// Len is the number of resting orders.
func (b *OrderBook) Len() int {
	return len(b.orders)
}

// LevelCount is the number of price levels on side.
func (b *OrderBook) LevelCount(side Side) int {
	n := 0
	b.walk(side, func(*priceLevel) bool {
		n++
		return true
	})
	return n
}

// Release drops every resting order and level. The book is empty afterwards.
func (b *OrderBook) Release() {
	for _, nh := range b.orders {
		b.nodes.Free(nh)
	}
	for _, lh := range b.levels {
		b.lvls.Free(lh)
	}
	clear(b.orders)
	clear(b.levels)
	b.bestBid = memory.Nil
	b.bestAsk = memory.Nil
}

// ──────────────────────────────────────────────────────────
// Internal
// ──────────────────────────────────────────────────────────

func (b *OrderBook) best(side Side) *memory.Handle {
	if side == Buy {
		return &b.bestBid
	}
	return &b.bestAsk
}

func (b *OrderBook) frontCopy(side Side) (Order, bool) {
	o, ok := b.Front(side)
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// linkLevel splices a new level into its side's chain. The walk starts at
// the best level and stops at the first level the new price beats.
func (b *OrderBook) linkLevel(h memory.Handle, lvl *priceLevel) {
	best := b.best(lvl.side)

	prev := memory.Nil
	cur := *best
	for !cur.IsNil() {
		c := b.lvls.Get(cur)
		if !better(lvl.side, c.price, lvl.price) {
			break
		}
		prev = cur
		cur = c.nextPrice
	}

	lvl.prevPrice = prev
	lvl.nextPrice = cur
	if !cur.IsNil() {
		b.lvls.Get(cur).prevPrice = h
	}
	if prev.IsNil() {
		*best = h
	} else {
		b.lvls.Get(prev).nextPrice = h
	}
}

// removeNode unlinks a node from its level, drops it from the id index and
// releases it. An emptied level is removed from the chain.
func (b *OrderBook) removeNode(nh memory.Handle) {
	node := b.nodes.Get(nh)
	lh := node.level
	lvl := b.lvls.Get(lh)
	o := node.order

	if node.prev.IsNil() {
		lvl.head = node.next
	} else {
		b.nodes.Get(node.prev).next = node.next
	}
	if node.next.IsNil() {
		lvl.tail = node.prev
	} else {
		b.nodes.Get(node.next).prev = node.prev
	}

	lvl.totalQty -= o.Quantity
	lvl.count--
	delete(b.orders, o.ID)
	b.nodes.Free(nh)
	b.released()

	switch {
	case lvl.totalQty < 0:
		panic(fmt.Sprintf("orderbook %s: level %g quantity %d after removing order %d",
			b.instrument, lvl.price, lvl.totalQty, o.ID))
	case lvl.totalQty == 0:
		b.removeLevel(lh)
	}
}

// removeLevel unlinks an empty level from its chain, moving the best
// pointer when the level was the head.
func (b *OrderBook) removeLevel(lh memory.Handle) {
	lvl := b.lvls.Get(lh)
	if lvl.totalQty != 0 || lvl.count != 0 {
		panic(fmt.Sprintf("orderbook %s: removing level %g with quantity %d and %d orders",
			b.instrument, lvl.price, lvl.totalQty, lvl.count))
	}

	delete(b.levels, levelKey{side: lvl.side, price: lvl.price})

	if lvl.prevPrice.IsNil() {
		*b.best(lvl.side) = lvl.nextPrice
	} else {
		b.lvls.Get(lvl.prevPrice).nextPrice = lvl.nextPrice
	}
	if !lvl.nextPrice.IsNil() {
		b.lvls.Get(lvl.nextPrice).prevPrice = lvl.prevPrice
	}

	b.lvls.Free(lh)
	b.released()
}

func (b *OrderBook) released() {
	if b.cfg.TrimEvery <= 0 {
		return
	}
	b.releases++
	if b.releases%b.cfg.TrimEvery == 0 {
		b.nodes.Trim()
		b.lvls.Trim()
	}
}

// walk visits the levels of side best-first until fn returns false.
func (b *OrderBook) walk(side Side, fn func(*priceLevel) bool) {
	for h := *b.best(side); !h.IsNil(); {
		lvl := b.lvls.Get(h)
		if !fn(lvl) {
			return
		}
		h = lvl.nextPrice
	}
}
