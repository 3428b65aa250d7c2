// Package memory provides the allocation primitives used by the order book.
//
// Arena is a chunked slot map addressed by generational handles. A handle is
// a weak reference: once its slot is released, lookups through the handle
// return nil instead of aliasing whatever reuses the slot. Arenas are not
// safe for concurrent use; they live on the single writer goroutine.
package memory
