package metrics

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/domain/intent"
	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
	"matchbook/service"
)

func TestObserveResult(t *testing.T) {
	m := New()
	now := time.Now()

	m.ObserveResult(service.Result{
		Kind:     intent.KindAdd,
		Status:   service.StatusFilled,
		Trades:   []matching.Trade{{Quantity: 100}, {Quantity: 20}},
		Received: now.Add(-time.Millisecond),
		Applied:  now,
	}, 10*time.Microsecond)
	m.ObserveResult(service.Result{
		Kind:   intent.KindCancel,
		Status: service.StatusIgnored,
		Err:    fmt.Errorf("cancel 4: %w", orderbook.ErrOrderNotFound),
	}, time.Microsecond)
	m.ObserveResult(service.Result{
		Kind:   intent.KindAdd,
		Status: service.StatusRejected,
		Err:    orderbook.ErrInvalidPrice,
	}, time.Microsecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues("ADD_ORDER", "FILLED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues("CANCEL_ORDER", "IGNORED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejects.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejects.WithLabelValues("invalid_argument")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Trades))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.TradedQuantity))
	assert.Contains(t, scrape(t, m), "matchbook_apply_seconds_count 3")
	assert.Contains(t, scrape(t, m), "matchbook_queue_wait_seconds_count 1")

	m.SetQueueDepth(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueDepth))

	m.Published(3)
	m.Failed(1)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OutboxSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxFailed))
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.Trades.Inc()

	body := scrape(t, m)
	assert.Contains(t, body, "matchbook_trades_total 1")
	assert.Contains(t, body, "go_goroutines")
}
