// Package metrics provides Prometheus metrics for the matching pipeline.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
	"matchbook/service"
)

const namespace = "matchbook"

// Metrics implements service.Recorder and broadcaster.Observer.
type Metrics struct {
	registry *prometheus.Registry

	Messages       *prometheus.CounterVec
	Rejects        *prometheus.CounterVec
	Trades         prometheus.Counter
	TradedQuantity prometheus.Counter
	QueueDepth     prometheus.Gauge
	Latency        prometheus.Histogram
	QueueWait      prometheus.Histogram
	OutboxSent     prometheus.Counter
	OutboxFailed   prometheus.Counter
}

var _ service.Recorder = (*Metrics)(nil)

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages applied, by kind and result status.",
		}, []string{"kind", "status"}),
		Rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejects_total",
			Help:      "Rejected or ignored messages, by reason.",
		}, []string{"reason"}),
		Trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades executed.",
		}),
		TradedQuantity: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_quantity_total",
			Help:      "Sum of executed trade quantities.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Messages waiting for the consumer.",
		}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apply_seconds",
			Help:      "Time to apply one message.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		QueueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_wait_seconds",
			Help:      "Time from submit to applied.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		OutboxSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Trades acknowledged by Kafka.",
		}),
		OutboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_failed_total",
			Help:      "Failed trade publish attempts.",
		}),
	}
	m.registry.MustRegister(
		m.Messages, m.Rejects, m.Trades, m.TradedQuantity, m.QueueDepth,
		m.Latency, m.QueueWait, m.OutboxSent, m.OutboxFailed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveResult(r service.Result, latency time.Duration) {
	m.Messages.WithLabelValues(r.Kind.String(), r.Status.String()).Inc()
	if r.Err != nil {
		m.Rejects.WithLabelValues(reason(r.Err)).Inc()
	}
	for _, t := range r.Trades {
		m.Trades.Inc()
		m.TradedQuantity.Add(float64(t.Quantity))
	}
	m.Latency.Observe(latency.Seconds())
	if !r.Received.IsZero() && !r.Applied.IsZero() {
		m.QueueWait.Observe(r.Applied.Sub(r.Received).Seconds())
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) Published(n int) {
	m.OutboxSent.Add(float64(n))
}

func (m *Metrics) Failed(n int) {
	m.OutboxFailed.Add(float64(n))
}

func reason(err error) string {
	switch {
	case errors.Is(err, orderbook.ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, orderbook.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, matching.ErrUnknownInstrument):
		return "unknown_instrument"
	case errors.Is(err, matching.ErrBookExists):
		return "book_exists"
	case errors.Is(err, matching.ErrDuplicateOrderID):
		return "duplicate_order_id"
	case errors.Is(err, matching.ErrUnsupportedOrderType):
		return "unsupported_order_type"
	case errors.Is(err, matching.ErrMarketOrderImmutable):
		return "market_order_immutable"
	case errors.Is(err, service.ErrJournal):
		return "journal"
	case errors.Is(err, service.ErrUnknownMessage):
		return "unknown_message"
	}
	return "other"
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
