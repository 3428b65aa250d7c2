package orderbook

import (
	"fmt"
	"math"
	"time"
)

// OrderView is an immutable copy of a resting order.
type OrderView struct {
	ID        uint64    `json:"id"`
	Quantity  int64     `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// LevelView is an immutable copy of one price level, orders in time priority.
type LevelView struct {
	Price         float64     `json:"price"`
	TotalQuantity int64       `json:"totalQuantity"`
	Orders        []OrderView `json:"orders,omitempty"`
}

// BookView is a point-in-time copy of (part of) a book. Bids are ordered
// highest first, asks lowest first. Safe to share across goroutines.
type BookView struct {
	Instrument string      `json:"instrument"`
	Bids       []LevelView `json:"bids"`
	Asks       []LevelView `json:"asks"`
	Taken      time.Time   `json:"taken"`

	// Set by the engine, which owns last trade prices.
	LastTradePrice float64 `json:"lastTradePrice,omitempty"`
	HasLastTrade   bool    `json:"hasLastTrade,omitempty"`
}

func (v BookView) BestBid() (LevelView, bool) {
	if len(v.Bids) == 0 {
		return LevelView{}, false
	}
	return v.Bids[0], true
}

func (v BookView) BestAsk() (LevelView, bool) {
	if len(v.Asks) == 0 {
		return LevelView{}, false
	}
	return v.Asks[0], true
}

// Snapshot copies every level of both sides.
func (b *OrderBook) Snapshot() BookView {
	return b.view(math.MaxInt, math.Inf(-1), math.Inf(1))
}

// Depth copies the best n levels of each side.
func (b *OrderBook) Depth(n int) BookView {
	return b.view(n, math.Inf(-1), math.Inf(1))
}

// PriceRange copies the levels whose price lies in [min, max].
func (b *OrderBook) PriceRange(min, max float64) BookView {
	return b.view(math.MaxInt, min, max)
}

func (b *OrderBook) view(depth int, min, max float64) BookView {
	v := BookView{
		Instrument: b.instrument,
		Taken:      time.Now(),
	}
	v.Bids = b.sideView(Buy, depth, min, max)
	v.Asks = b.sideView(Sell, depth, min, max)
	return v
}

func (b *OrderBook) sideView(side Side, depth int, min, max float64) []LevelView {
	out := []LevelView{}
	b.walk(side, func(lvl *priceLevel) bool {
		if len(out) >= depth {
			return false
		}
		if lvl.price < min || lvl.price > max {
			return true
		}
		lv := LevelView{
			Price:         lvl.price,
			TotalQuantity: lvl.totalQty,
			Orders:        make([]OrderView, 0, lvl.count),
		}
		for h := lvl.head; !h.IsNil(); {
			n := b.nodes.Get(h)
			lv.Orders = append(lv.Orders, OrderView{
				ID:        n.order.ID,
				Quantity:  n.order.Quantity,
				Timestamp: n.order.Timestamp,
			})
			h = n.next
		}
		out = append(out, lv)
		return true
	})
	return out
}

// CheckInvariants walks both chains and verifies ordering, back links,
// level totals and that both indexes agree with the chains.
func (b *OrderBook) CheckInvariants() error {
	levels, orders := 0, 0
	for _, side := range []Side{Buy, Sell} {
		prev := *b.best(side)
		if !prev.IsNil() && !b.lvls.Get(prev).prevPrice.IsNil() {
			return fmt.Errorf("%s best level has a prevPrice link", side)
		}

		var err error
		var last *priceLevel
		b.walk(side, func(lvl *priceLevel) bool {
			levels++
			if lvl.side != side {
				err = fmt.Errorf("level %g on %s chain has side %s", lvl.price, side, lvl.side)
				return false
			}
			if last != nil && !better(side, last.price, lvl.price) {
				err = fmt.Errorf("%s chain out of order: %g before %g", side, last.price, lvl.price)
				return false
			}
			if lh, ok := b.levels[levelKey{side: side, price: lvl.price}]; !ok || b.lvls.Get(lh) != lvl {
				err = fmt.Errorf("level %g missing from price index", lvl.price)
				return false
			}
			if lvl.totalQty <= 0 {
				err = fmt.Errorf("level %g has non-positive quantity %d", lvl.price, lvl.totalQty)
				return false
			}

			var sum int64
			n := 0
			var prevNode *orderNode
			for h := lvl.head; !h.IsNil(); {
				node := b.nodes.Get(h)
				if node == nil {
					err = fmt.Errorf("level %g links a released node", lvl.price)
					return false
				}
				if prevNode != nil && b.nodes.Get(node.prev) != prevNode {
					err = fmt.Errorf("order %d has a broken prev link", node.order.ID)
					return false
				}
				if node.order.Price != lvl.price || node.order.Side != side {
					err = fmt.Errorf("order %d rests on the wrong level", node.order.ID)
					return false
				}
				if ih, ok := b.orders[node.order.ID]; !ok || ih != h {
					err = fmt.Errorf("order %d missing from id index", node.order.ID)
					return false
				}
				sum += node.order.Quantity
				n++
				prevNode = node
				h = node.next
			}
			if sum != lvl.totalQty || n != lvl.count {
				err = fmt.Errorf("level %g total %d/%d orders, resident sum %d/%d orders",
					lvl.price, lvl.totalQty, lvl.count, sum, n)
				return false
			}
			orders += n
			last = lvl
			return true
		})
		if err != nil {
			return err
		}
	}

	if levels != len(b.levels) {
		return fmt.Errorf("price index has %d levels, chains have %d", len(b.levels), levels)
	}
	if orders != len(b.orders) {
		return fmt.Errorf("id index has %d orders, levels hold %d", len(b.orders), orders)
	}
	return nil
}
