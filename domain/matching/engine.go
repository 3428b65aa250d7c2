package matching

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"matchbook/domain/orderbook"
	"matchbook/infra/sequence"
)

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithBookConfig sizes the arenas of every book the engine creates.
func WithBookConfig(cfg orderbook.Config) Option {
	return func(e *Engine) { e.bookCfg = cfg }
}

// Execution is the outcome of one engine call.
type Execution struct {
	// Order is a copy of the order after the call. Quantity is what is left.
	Order  orderbook.Order
	Trades []Trade
	// Resting is set when the order is in the book afterwards.
	Resting bool
	// Discarded is the unfilled remainder of a market order.
	Discarded int64
	// Cancelled is set when a modify to zero quantity removed the order.
	Cancelled bool
}

// Filled is the quantity traded during the call.
func (x Execution) Filled() int64 {
	var n int64
	for _, t := range x.Trades {
		n += t.Quantity
	}
	return n
}

// Engine is single-writer: every mutating method must be called from the
// same goroutine.
type Engine struct {
	ids     *sequence.IDGenerator
	log     *zap.Logger
	bookCfg orderbook.Config

	books     map[string]*orderbook.OrderBook
	lastPrice map[string]float64
	// every order id ever accepted, with its type
	orderIDs map[uint64]orderbook.OrderType
	trades   []Trade
}

func New(ids *sequence.IDGenerator, opts ...Option) *Engine {
	e := &Engine{
		ids:       ids,
		log:       zap.NewNop(),
		bookCfg:   orderbook.DefaultConfig(),
		books:     make(map[string]*orderbook.OrderBook),
		lastPrice: make(map[string]float64),
		orderIDs:  make(map[uint64]orderbook.OrderType),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ──────────────────────────────────────────────────────────
// Books
// ──────────────────────────────────────────────────────────

func (e *Engine) CreateOrderBook(instrument string) error {
	if instrument == "" {
		return fmt.Errorf("%w: empty instrument", orderbook.ErrInvalidArgument)
	}
	if _, ok := e.books[instrument]; ok {
		return fmt.Errorf("%w: %s", ErrBookExists, instrument)
	}
	e.books[instrument] = orderbook.New(instrument,
		orderbook.WithConfig(e.bookCfg),
		orderbook.WithLogger(e.log.Named("orderbook")),
	)
	e.log.Info("order book created", zap.String("instrument", instrument))
	return nil
}

// RemoveOrderBook drops the book and every order resting in it.
func (e *Engine) RemoveOrderBook(instrument string) error {
	b, ok := e.books[instrument]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInstrument, instrument)
	}
	resting := b.Len()
	b.Release()
	delete(e.books, instrument)
	delete(e.lastPrice, instrument)
	e.log.Info("order book removed",
		zap.String("instrument", instrument),
		zap.Int("dropped_orders", resting))
	return nil
}

// ──────────────────────────────────────────────────────────
// Orders
// ──────────────────────────────────────────────────────────

// ProcessNewOrder validates o, records its id and executes it by type. An
// order that fails validation leaves the engine untouched. The engine takes
// ownership of o.
func (e *Engine) ProcessNewOrder(o *orderbook.Order) (Execution, error) {
	if o == nil {
		return Execution{}, fmt.Errorf("%w: nil order", orderbook.ErrInvalidArgument)
	}
	book, ok := e.books[o.Instrument]
	if !ok {
		return Execution{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, o.Instrument)
	}
	if _, seen := e.orderIDs[o.ID]; seen {
		return Execution{}, fmt.Errorf("%w: %d", ErrDuplicateOrderID, o.ID)
	}
	if err := o.Validate(); err != nil {
		return Execution{}, err
	}
	e.orderIDs[o.ID] = o.Type

	switch o.Type {
	case orderbook.Limit:
		return e.executeLimit(book, o)
	case orderbook.Market:
		return e.executeMarket(book, o), nil
	case orderbook.Stop:
		e.log.Warn("stop order rejected",
			zap.Uint64("order_id", o.ID),
			zap.String("instrument", o.Instrument))
		return Execution{Order: *o}, fmt.Errorf("%w: %s", ErrUnsupportedOrderType, o.Type)
	}
	return Execution{}, fmt.Errorf("%w: %d", orderbook.ErrInvalidType, o.Type)
}

// CancelOrder removes a resting order. An id that is not resting yields
// orderbook.ErrOrderNotFound, which callers are expected to tolerate.
func (e *Engine) CancelOrder(orderID uint64, instrument string) error {
	book, ok := e.books[instrument]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInstrument, instrument)
	}
	if e.isMarket(orderID) {
		e.log.Warn("cancel refused for market order", zap.Uint64("order_id", orderID))
		return fmt.Errorf("%w: %d", ErrMarketOrderImmutable, orderID)
	}
	if !book.CancelLimitOrder(orderID) {
		return fmt.Errorf("%w: %d", orderbook.ErrOrderNotFound, orderID)
	}
	return nil
}

// ModifyOrder changes a resting order. A price change removes the order and
// resubmits it, same id, through limit matching: it may trade immediately.
func (e *Engine) ModifyOrder(orderID uint64, instrument string, newPrice float64, newQty int64) (Execution, error) {
	book, ok := e.books[instrument]
	if !ok {
		return Execution{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, instrument)
	}
	if e.isMarket(orderID) {
		e.log.Warn("modify refused for market order", zap.Uint64("order_id", orderID))
		return Execution{}, fmt.Errorf("%w: %d", ErrMarketOrderImmutable, orderID)
	}

	prev, _ := book.Lookup(orderID)
	mod, err := book.ModifyLimitOrder(orderID, newPrice, newQty)
	if err != nil {
		return Execution{}, err
	}

	switch {
	case mod.Cancelled:
		prev.Quantity = 0
		return Execution{Order: prev, Cancelled: true}, nil
	case mod.Resubmit != nil:
		return e.executeLimit(book, mod.Resubmit)
	}
	cur, _ := book.Lookup(orderID)
	return Execution{Order: cur, Resting: true}, nil
}

// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────

// Trades returns a copy of the trade history, oldest first.
func (e *Engine) Trades() []Trade {
	return slices.Clone(e.trades)
}

func (e *Engine) TradeCount() int {
	return len(e.trades)
}

// LastTradePrice is the price of the most recent trade on instrument.
func (e *Engine) LastTradePrice(instrument string) (float64, bool) {
	p, ok := e.lastPrice[instrument]
	return p, ok
}

// OrderBook returns a read-only handle on instrument's book. It must not be
// used outside the engine's goroutine.
func (e *Engine) OrderBook(instrument string) (orderbook.Reader, bool) {
	b, ok := e.books[instrument]
	if !ok {
		return nil, false
	}
	return b, true
}

// View copies the best depth levels of instrument's book, with the last
// trade price. depth <= 0 copies the whole book.
func (e *Engine) View(instrument string, depth int) (orderbook.BookView, bool) {
	b, ok := e.books[instrument]
	if !ok {
		return orderbook.BookView{}, false
	}
	var v orderbook.BookView
	if depth <= 0 {
		v = b.Snapshot()
	} else {
		v = b.Depth(depth)
	}
	v.LastTradePrice, v.HasLastTrade = e.lastPrice[instrument]
	return v, true
}

// HasOrder reports whether orderID rests in instrument's book.
func (e *Engine) HasOrder(instrument string, orderID uint64) bool {
	b, ok := e.books[instrument]
	return ok && b.HasOrder(orderID)
}

func (e *Engine) HasInstrument(instrument string) bool {
	_, ok := e.books[instrument]
	return ok
}

// HasOrderID reports whether orderID was ever accepted.
func (e *Engine) HasOrderID(orderID uint64) bool {
	_, ok := e.orderIDs[orderID]
	return ok
}

func (e *Engine) isMarket(orderID uint64) bool {
	typ, ok := e.orderIDs[orderID]
	return ok && typ == orderbook.Market
}

// Instruments lists the instruments with a book, sorted.
func (e *Engine) Instruments() []string {
	out := make([]string, 0, len(e.books))
	for k := range e.books {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// OrderCount is the number of resting orders across all books.
func (e *Engine) OrderCount() int {
	n := 0
	for _, b := range e.books {
		n += b.Len()
	}
	return n
}

// ──────────────────────────────────────────────────────────
// Matching
// ──────────────────────────────────────────────────────────

func (e *Engine) executeLimit(book *orderbook.OrderBook, o *orderbook.Order) (Execution, error) {
	var trades []Trade
	if crosses(book, o) {
		trades = e.match(book, o)
	}

	x := Execution{Trades: trades}
	if o.Quantity > 0 {
		if err := book.AddLimitOrder(o); err != nil {
			return x, err
		}
		x.Resting = true
	}
	x.Order = *o
	return x, nil
}

func (e *Engine) executeMarket(book *orderbook.OrderBook, o *orderbook.Order) Execution {
	trades := e.match(book, o)
	x := Execution{Order: *o, Trades: trades, Discarded: o.Quantity}
	if o.Quantity > 0 {
		e.log.Warn("market order remainder discarded",
			zap.Uint64("order_id", o.ID),
			zap.String("instrument", o.Instrument),
			zap.Int64("unfilled", o.Quantity),
			zap.Int("trades", len(trades)))
	}
	return x
}

// crosses reports whether a limit order can trade against the best
// opposite level.
func crosses(book *orderbook.OrderBook, o *orderbook.Order) bool {
	best, ok := book.BestPrice(o.Side.Opposite())
	if !ok {
		return false
	}
	return priceOK(o, best)
}

// priceOK reports whether taker o accepts a maker at price. Market orders
// accept any price.
func priceOK(o *orderbook.Order, price float64) bool {
	switch {
	case o.Type == orderbook.Market:
		return true
	case o.IsBuy():
		return price <= o.Price
	default:
		return price >= o.Price
	}
}

// match walks the opposite side best level first, FIFO within a level,
// until the taker is filled or no acceptable maker is left.
func (e *Engine) match(book *orderbook.OrderBook, taker *orderbook.Order) []Trade {
	side := taker.Side.Opposite()
	now := time.Now()

	var trades []Trade
	var lastMaker uint64
	for taker.Quantity > 0 {
		maker, ok := book.Front(side)
		if !ok || !priceOK(taker, maker.Price) {
			break
		}

		qty := min(taker.Quantity, maker.Quantity)
		t := Trade{
			ID:         e.ids.NextTradeID(),
			Instrument: taker.Instrument,
			Price:      maker.Price,
			Quantity:   qty,
			Timestamp:  now,
		}
		if taker.IsBuy() {
			t.BuyOrderID, t.SellOrderID = taker.ID, maker.ID
		} else {
			t.BuyOrderID, t.SellOrderID = maker.ID, taker.ID
		}
		lastMaker = maker.ID

		book.FillFront(side, qty)
		taker.Quantity -= qty
		trades = append(trades, t)
	}
	if len(trades) == 0 {
		return nil
	}

	for i := range trades[:len(trades)-1] {
		setStatus(&trades[i], taker, Success, PartiallyFilled)
	}
	makerStatus := Success
	if book.HasOrder(lastMaker) {
		makerStatus = PartiallyFilled
	}
	takerStatus := Success
	if taker.Quantity != 0 {
		takerStatus = PartiallyFilled
	}
	setStatus(&trades[len(trades)-1], taker, makerStatus, takerStatus)

	e.lastPrice[taker.Instrument] = trades[len(trades)-1].Price
	e.trades = append(e.trades, trades...)

	e.log.Debug("matched",
		zap.Uint64("taker", taker.ID),
		zap.String("instrument", taker.Instrument),
		zap.Int("trades", len(trades)),
		zap.Int64("remaining", taker.Quantity))
	return trades
}

func setStatus(t *Trade, taker *orderbook.Order, maker, takerStatus TradeStatus) {
	if taker.IsBuy() {
		t.BuyStatus, t.SellStatus = takerStatus, maker
	} else {
		t.BuyStatus, t.SellStatus = maker, takerStatus
	}
}
