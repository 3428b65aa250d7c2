// Package exit is the trade outbox: trades are written here by the order
// manager and drained to Kafka by the broadcaster. Delivery is at least once.
package exit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"

	"matchbook/domain/matching"
	"matchbook/infra/codec"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var ErrNotFound = errors.New("outbox: record not found")

// -------------------- Record --------------------

type Record struct {
	TradeID     uint64
	State       State
	Retries     uint32
	LastAttempt time.Time
	// Key is the Kafka partition key (the instrument).
	Key     []byte
	Payload []byte
}

// value: [state:1][retries:4][lastAttempt:8][keylen:2][key][payload]
const fixedLen = 1 + 4 + 8 + 2

func encodeRecord(r *Record) []byte {
	buf := make([]byte, fixedLen+len(r.Key)+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	var last int64
	if !r.LastAttempt.IsZero() {
		last = r.LastAttempt.UnixNano()
	}
	binary.BigEndian.PutUint64(buf[5:13], uint64(last))
	binary.BigEndian.PutUint16(buf[13:15], uint16(len(r.Key)))
	copy(buf[fixedLen:], r.Key)
	copy(buf[fixedLen+len(r.Key):], r.Payload)
	return buf
}

func decodeRecord(id uint64, b []byte) (*Record, error) {
	if len(b) < fixedLen {
		return nil, fmt.Errorf("outbox: record %d: short value (%d bytes)", id, len(b))
	}
	kl := int(binary.BigEndian.Uint16(b[13:15]))
	if len(b) < fixedLen+kl {
		return nil, fmt.Errorf("outbox: record %d: key overruns value", id)
	}
	r := &Record{
		TradeID: id,
		State:   State(b[0]),
		Retries: binary.BigEndian.Uint32(b[1:5]),
		Key:     append([]byte(nil), b[fixedLen:fixedLen+kl]...),
		Payload: append([]byte(nil), b[fixedLen+kl:]...),
	}
	if ns := int64(binary.BigEndian.Uint64(b[5:13])); ns != 0 {
		r.LastAttempt = time.Unix(0, ns)
	}
	return r, nil
}

// -------------------- Outbox --------------------

type Outbox struct {
	db    *pebble.DB
	codec codec.Codec
}

func Open(dir string, c codec.Codec) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db, codec: c}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// PutTrades stores the trades of one matching pass as NEW, atomically.
func (o *Outbox) PutTrades(trades []matching.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	b := o.db.NewBatch()
	defer b.Close()

	for _, t := range trades {
		payload, err := o.codec.EncodeTrade(t)
		if err != nil {
			return fmt.Errorf("encode trade %d: %w", t.ID, err)
		}
		rec := &Record{TradeID: t.ID, State: StateNew, Key: []byte(t.Instrument), Payload: payload}
		if err := b.Set(keyFor(t.ID), encodeRecord(rec), nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

func (o *Outbox) MarkSent(id uint64) error {
	return o.update(id, func(r *Record) {
		r.State = StateSent
		r.LastAttempt = time.Now()
	})
}

func (o *Outbox) MarkAcked(id uint64) error {
	return o.update(id, func(r *Record) { r.State = StateAcked })
}

// MarkFailed counts a failed attempt. The record stays pending.
func (o *Outbox) MarkFailed(id uint64) error {
	return o.update(id, func(r *Record) {
		r.State = StateFailed
		r.Retries++
		r.LastAttempt = time.Now()
	})
}

func (o *Outbox) Get(id uint64) (*Record, error) {
	val, closer, err := o.db.Get(keyFor(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return decodeRecord(id, val)
}

func (o *Outbox) update(id uint64, fn func(*Record)) error {
	r, err := o.Get(id)
	if err != nil {
		return err
	}
	fn(r)
	return o.db.Set(keyFor(id), encodeRecord(r), pebble.Sync)
}

// -------------------- Scan --------------------

// ScanPending visits every record not yet ACKED, in trade id order. SENT
// records are included: a crash between send and ack means they must be
// sent again.
func (o *Outbox) ScanPending(fn func(*Record) error) error {
	return o.scan(func(r *Record) (bool, error) {
		if r.State == StateAcked {
			return true, nil
		}
		return true, fn(r)
	})
}

// ScanByState visits every record in state.
func (o *Outbox) ScanByState(state State, fn func(*Record) error) error {
	return o.scan(func(r *Record) (bool, error) {
		if r.State != state {
			return true, nil
		}
		return true, fn(r)
	})
}

// Counts returns the number of records per state.
func (o *Outbox) Counts() (map[State]int, error) {
	out := make(map[State]int)
	err := o.scan(func(r *Record) (bool, error) {
		out[r.State]++
		return true, nil
	})
	return out, err
}

// TruncateAcked deletes ACKED records.
func (o *Outbox) TruncateAcked() (int, error) {
	var ids []uint64
	err := o.ScanByState(StateAcked, func(r *Record) error {
		ids = append(ids, r.TradeID)
		return nil
	})
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	b := o.db.NewBatch()
	defer b.Close()
	for _, id := range ids {
		if err := b.Delete(keyFor(id), nil); err != nil {
			return 0, err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (o *Outbox) scan(fn func(*Record) (bool, error)) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		id, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		r, err := decodeRecord(id, iter.Value())
		if err != nil {
			return err
		}
		more, err := fn(r)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

// -------------------- Helpers --------------------

const keyPrefix = "trade/"

func keyFor(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, id))
}

func parseKey(b []byte) (uint64, error) {
	s := string(b)
	if len(s) <= len(keyPrefix) {
		return 0, fmt.Errorf("outbox: bad key %q", s)
	}
	return strconv.ParseUint(s[len(keyPrefix):], 10, 64)
}
