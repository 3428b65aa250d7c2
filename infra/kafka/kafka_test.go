package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/api/protocol"
	"matchbook/domain/intent"
	"matchbook/service"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type sink struct {
	mu  sync.Mutex
	got []intent.Intent
	err error
}

func (s *sink) Submit(in intent.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, in)
	return nil
}

func (s *sink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestConsumerSkipsMalformedMessages(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`{"type":"ADD_ORDER","instrument":"AAPL","price":150,"quantity":100,"isBuy":true,"orderType":"LIMIT"}`)},
		{Offset: 2, Value: []byte(`not json`)},
		{Offset: 3, Value: []byte(`{"type":"CANCEL_ORDER","orderId":1,"instrument":"AAPL","clientId":"c9"}`)},
	}}
	s := &sink{}
	c := NewConsumerWithReader(r, protocol.Parse, s)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errc)

	assert.Equal(t, []int64{1, 2, 3}, r.commits())
	require.Equal(t, 2, s.len())
	assert.Equal(t, intent.KindAdd, s.got[0].Kind)
	assert.Equal(t, "c9", s.got[1].ClientID)

	require.NoError(t, c.Close())
	assert.True(t, r.closed)
}

func TestConsumerStopsWhenSinkStops(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 7, Value: []byte(`{"type":"CANCEL_ORDER","orderId":1,"instrument":"AAPL"}`)},
	}}
	s := &sink{err: service.ErrStopped}
	c := NewConsumerWithReader(r, protocol.Parse, s, WithStopError(service.ErrStopped))

	require.NoError(t, c.Run(context.Background()))
	assert.Empty(t, r.commits(), "unqueued message must not be committed")
}

func TestConsumerReturnsSinkErrors(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 7, Value: []byte(`{"type":"CANCEL_ORDER","orderId":1,"instrument":"AAPL"}`)},
	}}
	boom := errors.New("boom")
	c := NewConsumerWithReader(r, protocol.Parse, &sink{err: boom})
	assert.ErrorIs(t, c.Run(context.Background()), boom)
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) sent() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func TestReportPublisherFlushesOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	p := NewReportPublisher(NewProducerWithWriter(w), protocol.EncodeReport, 8, nil)

	p.OnResult(service.Result{Seq: 1, ClientID: "a", Kind: intent.KindAdd, Status: service.StatusResting})
	p.OnResult(service.Result{Seq: 2, ClientID: "b", Kind: intent.KindCancel, Status: service.StatusCancelled})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	msgs := w.sent()
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("a"), msgs[0].Key)
	assert.Contains(t, string(msgs[1].Value), `"status":"CANCELLED"`)
	select {
	case <-p.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestReportPublisherDropsWhenFull(t *testing.T) {
	w := &fakeWriter{}
	p := NewReportPublisher(NewProducerWithWriter(w), protocol.EncodeReport, 1, nil)

	p.OnResult(service.Result{Seq: 1})
	p.OnResult(service.Result{Seq: 2})
	assert.Equal(t, uint64(1), p.dropped)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)
	assert.Len(t, w.sent(), 1)
}

func TestReportPublisherSurvivesSendErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewReportPublisher(NewProducerWithWriter(w), protocol.EncodeReport, 4, nil)
	p.OnResult(service.Result{Seq: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)
	assert.Empty(t, w.sent())
}
