package orderbook

import "matchbook/infra/memory"

// orderNode wraps exactly one resting order. prev/next link nodes of the
// same price level only.
type orderNode struct {
	order *Order
	level memory.Handle
	prev  memory.Handle
	next  memory.Handle
}

// priceLevel is all resting quantity at one price on one side.
//
// totalQty always equals the sum of its nodes' order quantities; a level
// whose total reaches zero is unlinked immediately. prevPrice points toward
// the best price of the side, nextPrice away from it.
type priceLevel struct {
	price    float64
	totalQty int64
	count    int
	side     Side

	head memory.Handle
	tail memory.Handle

	prevPrice memory.Handle
	nextPrice memory.Handle
}

type levelKey struct {
	side  Side
	price float64
}

// better reports whether price a has priority over price b on side.
func better(side Side, a, b float64) bool {
	if side == Buy {
		return a > b
	}
	return a < b
}
