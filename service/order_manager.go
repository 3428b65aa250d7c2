package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"matchbook/domain/intent"
	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
	"matchbook/infra/queue"
	"matchbook/infra/sequence"
	"matchbook/snapshot"
)

var (
	ErrStopped        = errors.New("order manager stopped")
	ErrAlreadyRunning = errors.New("order manager already running")
	ErrUnknownMessage = errors.New("unknown message kind")
	ErrJournal        = errors.New("journal append failed")
)

// Journal records every accepted intent before it is applied.
type Journal interface {
	Append(in intent.Intent) (uint64, error)
}

// Outbox takes the trades of one message for asynchronous delivery.
type Outbox interface {
	PutTrades(trades []matching.Trade) error
}

// Recorder observes the pipeline.
type Recorder interface {
	ObserveResult(r Result, latency time.Duration)
	SetQueueDepth(n int)
}

// Message is one queued intent.
type Message struct {
	Intent   intent.Intent
	Received time.Time

	reply chan Result
}

type Option func(*OrderManager)

func WithLogger(l *zap.Logger) Option {
	return func(m *OrderManager) {
		if l != nil {
			m.log = l
		}
	}
}

func WithJournal(j Journal) Option {
	return func(m *OrderManager) { m.journal = j }
}

func WithOutbox(o Outbox) Option {
	return func(m *OrderManager) { m.outbox = o }
}

func WithListener(l ...Listener) Option {
	return func(m *OrderManager) { m.listeners = append(m.listeners, l...) }
}

// WithSnapshots publishes the best depth levels of every touched book to
// store after each message. depth <= 0 publishes whole books.
func WithSnapshots(store *snapshot.Store, depth int) Option {
	return func(m *OrderManager) {
		m.snapshots = store
		m.depth = depth
	}
}

func WithRecorder(r Recorder) Option {
	return func(m *OrderManager) { m.recorder = r }
}

// OrderManager owns the consumer goroutine.
type OrderManager struct {
	engine *matching.Engine
	queue  *queue.Queue[Message]
	ids    *sequence.IDGenerator
	seq    *sequence.Sequencer
	log    *zap.Logger

	journal   Journal
	outbox    Outbox
	listeners []Listener
	snapshots *snapshot.Store
	depth     int
	recorder  Recorder

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

func NewOrderManager(engine *matching.Engine, q *queue.Queue[Message], ids *sequence.IDGenerator, opts ...Option) *OrderManager {
	m := &OrderManager{
		engine: engine,
		queue:  q,
		ids:    ids,
		seq:    sequence.New(0),
		log:    zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

//
// ──────────────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────────────
//

// Start launches the consumer. Cancelling ctx stops it without draining;
// Stop drains first.
func (m *OrderManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queue.Closed() {
		return ErrStopped
	}
	if m.started {
		m.log.Warn("order manager already running")
		return ErrAlreadyRunning
	}
	m.started = true

	go m.processLoop(ctx)
	m.log.Info("order manager started")
	return nil
}

// Stop shuts the queue, lets the consumer apply everything already queued
// and waits for it to exit. Without a prior Start nothing is applied: queued
// messages are rejected with ErrStopped and Done is closed. Idempotent.
func (m *OrderManager) Stop() {
	m.queue.Shutdown()

	m.mu.Lock()
	started := m.started
	m.started = true
	m.mu.Unlock()
	if !started {
		m.abandon()
		close(m.done)
		return
	}
	<-m.done
}

// Done is closed when the consumer has exited.
func (m *OrderManager) Done() <-chan struct{} {
	return m.done
}

// Applied is the number of messages applied so far.
func (m *OrderManager) Applied() uint64 {
	return m.seq.Current()
}

// QueueLen is the number of messages waiting.
func (m *OrderManager) QueueLen() int {
	return m.queue.Len()
}

//
// ──────────────────────────────────────────────────────────
// Producers
// ──────────────────────────────────────────────────────────
//

// Submit enqueues in. Safe from any goroutine; never blocks.
func (m *OrderManager) Submit(in intent.Intent) error {
	return m.push(Message{Intent: in, Received: time.Now()})
}

// SubmitAndWait enqueues in and waits for its Result.
func (m *OrderManager) SubmitAndWait(ctx context.Context, in intent.Intent) (Result, error) {
	reply := make(chan Result, 1)
	if err := m.push(Message{Intent: in, Received: time.Now(), reply: reply}); err != nil {
		return Result{}, err
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (m *OrderManager) push(msg Message) error {
	if err := m.queue.Push(msg); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return ErrStopped
		}
		return err
	}
	if m.recorder != nil {
		m.recorder.SetQueueDepth(m.queue.Len())
	}
	return nil
}

//
// ──────────────────────────────────────────────────────────
// Consumer
// ──────────────────────────────────────────────────────────
//

// processLoop is the only writer of engine state. Invariant violations
// panic out of it on purpose.
func (m *OrderManager) processLoop(ctx context.Context) {
	defer close(m.done)

	for {
		msg, ok := m.queue.Pop(ctx)
		if !ok {
			break
		}
		m.apply(msg)
	}

	m.abandon()
	m.log.Info("order manager stopped", zap.Uint64("applied", m.seq.Current()))
}

// abandon closes the queue and rejects whatever is still in it.
func (m *OrderManager) abandon() {
	m.queue.Shutdown()
	if n := m.queue.Len(); n > 0 {
		m.log.Warn("messages left in queue not processed", zap.Int("count", n))
	}
	for {
		msg, ok := m.queue.TryPop()
		if !ok {
			break
		}
		if msg.reply != nil {
			msg.reply <- Result{
				Kind:     msg.Intent.Kind,
				ClientID: msg.Intent.ClientID,
				Status:   StatusRejected,
				Err:      ErrStopped,
				Received: msg.Received,
			}
		}
	}
	if m.recorder != nil {
		m.recorder.SetQueueDepth(0)
	}
}

func (m *OrderManager) apply(msg Message) {
	start := time.Now()
	in := msg.Intent

	res := m.dispatch(in)
	res.Seq = m.seq.Next()
	res.Kind = in.Kind
	res.ClientID = in.ClientID
	res.Received = msg.Received
	res.Applied = time.Now()
	if res.Instrument == "" {
		res.Instrument = in.InstrumentName()
	}

	if len(res.Trades) > 0 && m.outbox != nil {
		if err := m.outbox.PutTrades(res.Trades); err != nil {
			m.log.Error("outbox write failed",
				zap.Uint64("seq", res.Seq),
				zap.Int("trades", len(res.Trades)),
				zap.Error(err))
		}
	}
	m.publish(res)

	for _, l := range m.listeners {
		l.OnResult(res)
	}
	if m.recorder != nil {
		m.recorder.ObserveResult(res, time.Since(start))
		m.recorder.SetQueueDepth(m.queue.Len())
	}
	if msg.reply != nil {
		msg.reply <- res
	}
}

func (m *OrderManager) dispatch(in intent.Intent) Result {
	if err := in.Validate(); err != nil {
		if in.Kind < intent.KindAdd || in.Kind > intent.KindRemoveBook {
			err = fmt.Errorf("%w: %d", ErrUnknownMessage, in.Kind)
		}
		return m.reject(in, 0, err)
	}
	if m.journal != nil {
		if _, err := m.journal.Append(in); err != nil {
			m.log.Error("journal append failed", zap.Stringer("kind", in.Kind), zap.Error(err))
			return m.reject(in, 0, fmt.Errorf("%w: %w", ErrJournal, err))
		}
	}

	switch in.Kind {
	case intent.KindAdd:
		return m.handleAdd(in)
	case intent.KindModify:
		return m.handleModify(in)
	case intent.KindCancel:
		return m.handleCancel(in)
	case intent.KindCreateBook:
		if err := m.engine.CreateOrderBook(in.Instrument); err != nil {
			return m.reject(in, 0, err)
		}
		return Result{Status: StatusAccepted}
	case intent.KindRemoveBook:
		if err := m.engine.RemoveOrderBook(in.Instrument); err != nil {
			return m.reject(in, 0, err)
		}
		return Result{Status: StatusAccepted}
	}
	return m.reject(in, 0, fmt.Errorf("%w: %d", ErrUnknownMessage, in.Kind))
}

// handleAdd resolves a fresh id, checks the instrument and id, builds the
// order through its type's factory and hands it to the engine.
func (m *OrderManager) handleAdd(in intent.Intent) Result {
	a := in.Add
	id := m.ids.NextOrderID()

	if !m.engine.HasInstrument(a.Instrument) {
		return m.reject(in, id, fmt.Errorf("%w: %s", matching.ErrUnknownInstrument, a.Instrument))
	}
	if m.engine.HasOrderID(id) {
		return m.reject(in, id, fmt.Errorf("%w: %d", matching.ErrDuplicateOrderID, id))
	}

	o, err := orderbook.NewOrder(id, a.Instrument, a.Price, a.Quantity, a.Side, a.Type)
	if err != nil {
		return m.reject(in, id, err)
	}
	x, err := m.engine.ProcessNewOrder(o)
	if err != nil {
		return m.reject(in, id, err)
	}

	res := Result{OrderID: id, Trades: x.Trades}
	switch {
	case o.Type == orderbook.Market:
		res.Unfilled = x.Discarded
		switch {
		case x.Discarded == 0:
			res.Status = StatusFilled
		case len(x.Trades) > 0:
			res.Status = StatusPartiallyFilled
		default:
			res.Status = StatusCancelled
		}
	case x.Resting:
		res.Remaining = x.Order.Quantity
		res.Status = StatusResting
		if len(x.Trades) > 0 {
			res.Status = StatusPartiallyFilled
		}
	default:
		res.Status = StatusFilled
	}
	return res
}

func (m *OrderManager) handleModify(in intent.Intent) Result {
	d := in.Modify
	x, err := m.engine.ModifyOrder(d.OrderID, d.Instrument, d.NewPrice, d.NewQuantity)
	if err != nil {
		return m.reject(in, d.OrderID, err)
	}

	res := Result{OrderID: d.OrderID, Trades: x.Trades}
	switch {
	case x.Cancelled:
		res.Status = StatusCancelled
	case !x.Resting:
		res.Status = StatusFilled
	case len(x.Trades) > 0:
		res.Status = StatusPartiallyFilled
		res.Remaining = x.Order.Quantity
	default:
		res.Status = StatusModified
		res.Remaining = x.Order.Quantity
	}
	return res
}

func (m *OrderManager) handleCancel(in intent.Intent) Result {
	c := in.Cancel
	if err := m.engine.CancelOrder(c.OrderID, c.Instrument); err != nil {
		return m.reject(in, c.OrderID, err)
	}
	return Result{OrderID: c.OrderID, Status: StatusCancelled}
}

// reject classifies err. Not-found is a tolerated race with fills.
func (m *OrderManager) reject(in intent.Intent, orderID uint64, err error) Result {
	fields := []zap.Field{
		zap.Stringer("kind", in.Kind),
		zap.String("client_id", in.ClientID),
		zap.String("instrument", in.InstrumentName()),
		zap.Uint64("order_id", orderID),
		zap.Error(err),
	}
	if errors.Is(err, orderbook.ErrOrderNotFound) {
		m.log.Info("order not in book, ignored", fields...)
		return Result{OrderID: orderID, Status: StatusIgnored, Err: err}
	}
	m.log.Warn("message rejected", fields...)
	return Result{OrderID: orderID, Status: StatusRejected, Err: err}
}

func (m *OrderManager) publish(res Result) {
	if m.snapshots == nil || res.Instrument == "" {
		return
	}
	v, ok := m.engine.View(res.Instrument, m.depth)
	if !ok {
		m.snapshots.Remove(res.Instrument)
		return
	}
	m.snapshots.Publish(res.Seq, v)
}
