// Package matching owns one order book per instrument and is the single
// authority for trade creation.
//
// Incoming orders are matched against the opposite side under price-time
// priority; every trade executes at the resting (maker) order's price.
// Like the books it owns, an Engine is single-writer.
package matching
