package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/domain/intent"
	"matchbook/domain/orderbook"
	"matchbook/infra/codec"
	entrywal "matchbook/infra/wal/entry"
)

func writeJournal(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	w, err := entrywal.Open(entrywal.Config{Dir: dir})
	require.NoError(t, err)
	j := entrywal.NewJournal(w, codec.Proto{})

	for _, in := range []intent.Intent{
		intent.NewCreateBook("console", "AAPL"),
		intent.NewAdd("c1", intent.AddOrder{Instrument: "AAPL", Price: 150, Quantity: 100, Side: orderbook.Buy, Type: orderbook.Limit}),
		intent.NewCreateBook("console", "MSFT"),
		intent.NewCancel("c1", intent.CancelOrder{OrderID: 1, Instrument: "AAPL"}),
	} {
		_, err := j.Append(in)
		require.NoError(t, err)
	}
	require.NoError(t, j.Close())
	return dir
}

func TestDumpAll(t *testing.T) {
	dir := writeJournal(t)
	var out bytes.Buffer
	n, last, err := dump(&out, dir, codec.Proto{}, filter{})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, uint64(4), last)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "2\t"))
	assert.Contains(t, lines[1], `"type":"ADD_ORDER"`)
	assert.Contains(t, lines[1], `"isBuy":true`)
}

func TestDumpFilters(t *testing.T) {
	dir := writeJournal(t)

	var out bytes.Buffer
	n, _, err := dump(&out, dir, codec.Proto{}, filter{instrument: "AAPL", kind: intent.KindCancel})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, out.String(), "CANCEL_ORDER")

	out.Reset()
	n, _, err = dump(&out, dir, codec.Proto{}, filter{from: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotContains(t, out.String(), "ADD_ORDER")
}

func TestDumpWrongCodec(t *testing.T) {
	dir := writeJournal(t)
	_, _, err := dump(&bytes.Buffer{}, dir, codec.JSON{}, filter{})
	assert.ErrorIs(t, err, codec.ErrMalformed)
}
