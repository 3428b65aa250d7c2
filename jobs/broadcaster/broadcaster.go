// Package broadcaster drains the trade outbox to Kafka.
package broadcaster

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	exitwal "matchbook/infra/wal/exit"
)

// Outbox is the part of the exit outbox the broadcaster drives.
type Outbox interface {
	ScanPending(fn func(*exitwal.Record) error) error
	MarkSent(id uint64) error
	MarkAcked(id uint64) error
	MarkFailed(id uint64) error
	TruncateAcked() (int, error)
}

// Observer is told about every publish attempt.
type Observer interface {
	Published(n int)
	Failed(n int)
}

type Config struct {
	Topic    string
	Interval time.Duration
	// MaxRetries parks records after that many failed attempts. 0 retries forever.
	MaxRetries uint32
	// TruncateEvery passes, acked records are deleted. 0 disables.
	TruncateEvery int
	// Codec names the payload encoding, sent as a message header.
	Codec string
}

type Broadcaster struct {
	outbox   Outbox
	producer sarama.SyncProducer
	cfg      Config
	log      *zap.Logger
	observer Observer

	passes int
	done   chan struct{}
}

type Option func(*Broadcaster)

func WithLogger(l *zap.Logger) Option {
	return func(b *Broadcaster) {
		if l != nil {
			b.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(b *Broadcaster) { b.observer = o }
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(outbox Outbox, brokers []string, cfg Config, opts ...Option) (*Broadcaster, error) {
	sc := sarama.NewConfig()
	sc.ClientID = "matchbook-broadcaster"
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, sc)
	if err != nil {
		return nil, err
	}
	return NewWithProducer(outbox, producer, cfg, opts...), nil
}

func NewWithProducer(outbox Outbox, producer sarama.SyncProducer, cfg Config, opts ...Option) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	b := &Broadcaster{
		outbox:   outbox,
		producer: producer,
		cfg:      cfg,
		log:      zap.NewNop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

// Start drains the outbox every Interval until ctx is done. A final pass
// runs on the way out.
func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("broadcaster started", zap.String("topic", b.cfg.Topic))

	go func() {
		defer close(b.done)
		ticker := time.NewTicker(b.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				b.Flush()
				b.log.Info("broadcaster stopped")
				return
			case <-ticker.C:
				b.Flush()
			}
		}
	}()
}

// Done is closed when the loop started by Start has exited.
func (b *Broadcaster) Done() <-chan struct{} {
	return b.done
}

// ------------------------------------------------
// FLUSH
// ------------------------------------------------

// Flush publishes every pending record once and returns how many were
// acknowledged and how many failed.
func (b *Broadcaster) Flush() (sent, failed int) {
	err := b.outbox.ScanPending(func(rec *exitwal.Record) error {
		if b.cfg.MaxRetries > 0 && rec.Retries >= b.cfg.MaxRetries {
			return nil
		}

		if err := b.outbox.MarkSent(rec.TradeID); err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic: b.cfg.Topic,
			Key:   sarama.ByteEncoder(rec.Key),
			Value: sarama.ByteEncoder(rec.Payload),
			Headers: []sarama.RecordHeader{
				{Key: []byte("trade-id"), Value: []byte(strconv.FormatUint(rec.TradeID, 10))},
				{Key: []byte("codec"), Value: []byte(b.cfg.Codec)},
			},
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			failed++
			b.log.Warn("publish failed, will retry",
				zap.Uint64("trade_id", rec.TradeID),
				zap.Uint32("retries", rec.Retries+1),
				zap.Error(err))
			return b.outbox.MarkFailed(rec.TradeID)
		}

		sent++
		return b.outbox.MarkAcked(rec.TradeID)
	})
	if err != nil {
		b.log.Error("outbox scan failed", zap.Error(err))
	}

	if b.observer != nil {
		b.observer.Published(sent)
		b.observer.Failed(failed)
	}

	b.passes++
	if b.cfg.TruncateEvery > 0 && b.passes%b.cfg.TruncateEvery == 0 {
		if n, err := b.outbox.TruncateAcked(); err != nil {
			b.log.Error("outbox truncate failed", zap.Error(err))
		} else if n > 0 {
			b.log.Debug("outbox truncated", zap.Int("records", n))
		}
	}
	return sent, failed
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
