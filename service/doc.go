// Package service runs the single writer of the matching engine.
//
// Producers on any goroutine Submit intents; the OrderManager pops them one
// at a time from the queue and applies them to the engine, journal, trade
// outbox and snapshot store. Nothing else mutates engine state.
package service
