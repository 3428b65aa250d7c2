package sequence

// IDGenerator hands out order IDs and trade IDs.
//
// It is constructed once per engine lifetime and passed to whoever needs
// fresh identifiers. No globals: tests get isolation by building a new one.
type IDGenerator struct {
	orders *Sequencer
	trades *Sequencer
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		orders: New(0),
		trades: New(0),
	}
}

// NextOrderID returns a previously unissued order ID. Never 0.
func (g *IDGenerator) NextOrderID() uint64 {
	return g.orders.Next()
}

// NextTradeID returns a previously unissued trade ID. Never 0.
func (g *IDGenerator) NextTradeID() uint64 {
	return g.trades.Next()
}

// Reset rewinds both counters. Test isolation only.
func (g *IDGenerator) Reset() {
	g.orders.Reset(0)
	g.trades.Reset(0)
}
