// Package snapshot publishes read-only book views for readers outside the
// matching goroutine.
//
// The order manager is the only publisher. Every publish swaps a pointer to
// a fresh immutable Snapshot, so readers never block the writer and never
// observe a half-applied message.
package snapshot
