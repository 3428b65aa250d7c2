// Package kafka is the Kafka gateway: intents are consumed from one topic
// and reports of applied intents are produced to another.
package kafka

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"matchbook/domain/intent"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Submitter accepts parsed intents, normally the order manager.
type Submitter interface {
	Submit(in intent.Intent) error
}

// ParseFunc turns a message value into an intent.
type ParseFunc func(raw []byte) (intent.Intent, error)

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Consumer struct {
	reader MessageReader
	parse  ParseFunc
	sink   Submitter
	// stop is reported by sink once it no longer accepts intents.
	stop error
	log  *zap.Logger

	consumed, malformed uint64
}

type ConsumerOption func(*Consumer)

func WithConsumerLogger(l *zap.Logger) ConsumerOption {
	return func(c *Consumer) {
		if l != nil {
			c.log = l
		}
	}
}

// WithStopError names the Submit error that ends Run.
func WithStopError(err error) ConsumerOption {
	return func(c *Consumer) { c.stop = err }
}

func NewConsumer(cfg ConsumerConfig, parse ParseFunc, sink Submitter, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewConsumerWithReader(r, parse, sink, opts...)
}

func NewConsumerWithReader(r MessageReader, parse ParseFunc, sink Submitter, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader: r,
		parse:  parse,
		sink:   sink,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run fetches until ctx ends, the reader fails or the sink stops. A message
// is committed once it is queued; malformed messages are logged and
// committed so they do not block the partition.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("intent consumer started")
	defer c.log.Info("intent consumer stopped",
		zap.Uint64("consumed", c.consumed),
		zap.Uint64("malformed", c.malformed))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		in, err := c.parse(msg.Value)
		if err != nil {
			c.malformed++
			c.log.Warn("malformed intent dropped",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		} else if err := c.sink.Submit(in); err != nil {
			if c.stop != nil && errors.Is(err, c.stop) {
				return nil
			}
			return err
		} else {
			c.consumed++
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
