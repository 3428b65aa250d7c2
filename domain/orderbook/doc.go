// Package orderbook holds the resting orders of one instrument in
// price-time priority.
//
// Each side is a chain of price levels ordered best-first (bids descending,
// asks ascending); each level is a FIFO list of order nodes. Levels and nodes
// live in memory.Arena slots and reference each other by handle. Two hash
// indexes (price -> level, order id -> node) make cancel and modify O(1).
//
// An OrderBook is single-writer: it must only be mutated from the goroutine
// that owns the matching engine. It performs no locking.
package orderbook
