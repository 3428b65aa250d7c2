// Package ws is the market data feed: trades and top of book pushed to
// websocket clients as JSON.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"matchbook/infra/codec"
	"matchbook/service"
	"matchbook/snapshot"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Event is one feed message.
type Event struct {
	Type       string   `json:"type"`
	Instrument string   `json:"instrument"`
	Seq        uint64   `json:"seq"`
	Trade      any      `json:"trade,omitempty"`
	Bid        *Quote   `json:"bid,omitempty"`
	Ask        *Quote   `json:"ask,omitempty"`
	Last       *float64 `json:"last,omitempty"`
}

type Quote struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

type client struct {
	conn *websocket.Conn
	// instrument filter; empty receives everything
	instrument string
	send       chan []byte
}

// Hub fans results out to connected clients. It is a service.Listener;
// OnResult never blocks the order manager.
type Hub struct {
	books    *snapshot.Store
	log      *zap.Logger
	upgrader websocket.Upgrader
	events   chan Event

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub(books *snapshot.Store, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		books: books,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		events:  make(chan Event, 4096),
		clients: make(map[*client]struct{}),
	}
}

var _ service.Listener = (*Hub)(nil)

func (h *Hub) OnResult(r service.Result) {
	switch {
	case r.Instrument == "", r.Status == service.StatusRejected, r.Status == service.StatusIgnored:
		return
	}
	for _, t := range r.Trades {
		h.enqueue(Event{Type: "trade", Instrument: t.Instrument, Seq: r.Seq, Trade: codec.TradeJSON(t)})
	}
	if ev, ok := h.top(r.Instrument); ok {
		h.enqueue(ev)
	}
}

func (h *Hub) enqueue(ev Event) {
	select {
	case h.events <- ev:
	default:
		h.log.Warn("feed buffer full, event dropped", zap.String("type", ev.Type), zap.Uint64("seq", ev.Seq))
	}
}

// top builds a top of book event from the latest published snapshot.
func (h *Hub) top(instrument string) (Event, bool) {
	if h.books == nil {
		return Event{}, false
	}
	snap, ok := h.books.Load(instrument)
	if !ok {
		return Event{}, false
	}
	ev := Event{Type: "top", Instrument: instrument, Seq: snap.Seq}
	if l, ok := snap.View.BestBid(); ok {
		ev.Bid = &Quote{Price: l.Price, Quantity: l.TotalQuantity}
	}
	if l, ok := snap.View.BestAsk(); ok {
		ev.Ask = &Quote{Price: l.Price, Quantity: l.TotalQuantity}
	}
	if snap.View.HasLastTrade {
		last := snap.View.LastTradePrice
		ev.Last = &last
	}
	return ev, true
}

// Run delivers queued events until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case ev := <-h.events:
			h.broadcast(ev)
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) broadcast(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("feed encode failed", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.instrument != "" && c.instrument != ev.Instrument {
			continue
		}
		select {
		case c.send <- b:
		default:
			h.log.Info("slow feed client disconnected", zap.String("remote", c.conn.RemoteAddr().String()))
			h.drop(c)
		}
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request. ?instrument=X limits the feed to one book;
// the latest top of book of that book is sent first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		conn:       conn,
		instrument: r.URL.Query().Get("instrument"),
		send:       make(chan []byte, sendBuffer),
	}
	if c.instrument != "" {
		if ev, ok := h.top(c.instrument); ok {
			if b, err := json.Marshal(ev); err == nil {
				c.send <- b
			}
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("feed client connected", zap.String("remote", conn.RemoteAddr().String()), zap.String("instrument", c.instrument))

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client input and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		h.drop(c)
		h.mu.Unlock()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
