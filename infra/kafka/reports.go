package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"matchbook/service"
)

// EncodeFunc renders a result as a message key and value.
type EncodeFunc func(r service.Result) (key, value []byte, err error)

// ReportPublisher forwards results to Kafka off the consumer goroutine.
// OnResult never blocks: when the buffer is full the report is dropped.
type ReportPublisher struct {
	producer *Producer
	encode   EncodeFunc
	ch       chan service.Result
	timeout  time.Duration
	log      *zap.Logger
	done     chan struct{}

	dropped uint64
}

func NewReportPublisher(p *Producer, encode EncodeFunc, buffer int, log *zap.Logger) *ReportPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReportPublisher{
		producer: p,
		encode:   encode,
		ch:       make(chan service.Result, buffer),
		timeout:  5 * time.Second,
		log:      log,
		done:     make(chan struct{}),
	}
}

func (p *ReportPublisher) OnResult(r service.Result) {
	select {
	case p.ch <- r:
	default:
		p.dropped++
		p.log.Warn("report buffer full, dropped", zap.Uint64("seq", r.Seq), zap.Uint64("dropped", p.dropped))
	}
}

// Run sends buffered reports until ctx ends, then flushes what is left.
func (p *ReportPublisher) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case r := <-p.ch:
			p.send(r)
		case <-ctx.Done():
			for {
				select {
				case r := <-p.ch:
					p.send(r)
				default:
					return
				}
			}
		}
	}
}

func (p *ReportPublisher) Done() <-chan struct{} {
	return p.done
}

func (p *ReportPublisher) send(r service.Result) {
	key, value, err := p.encode(r)
	if err != nil {
		p.log.Error("report encode failed", zap.Uint64("seq", r.Seq), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.producer.Send(ctx, key, value); err != nil {
		p.log.Warn("report send failed", zap.Uint64("seq", r.Seq), zap.Error(err))
	}
}
