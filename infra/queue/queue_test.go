package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Push(i))
	}
	assert.Equal(t, 5, q.Len())

	for i := 0; i < 5; i++ {
		v, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New[string]()
	got := make(chan string, 1)
	go func() {
		v, ok := q.Pop(context.Background())
		if ok {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("pop returned before push")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Push("x"))
	select {
	case v := <-got:
		assert.Equal(t, "x", v)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake")
	}
}

func TestShutdownDrainsThenStops(t *testing.T) {
	q := New[int]()
	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))

	q.Shutdown()
	q.Shutdown()
	assert.True(t, q.Closed())
	assert.ErrorIs(t, q.Push(3), ErrClosed)

	ctx := context.Background()
	v, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = q.Pop(ctx)
	assert.False(t, ok)
}

func TestShutdownWakesAllWaiters(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Pop(context.Background())
			assert.False(t, ok)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	q.Shutdown()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiters not released")
	}
}

func TestPopHonoursContext(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok := q.Pop(ctx)
	assert.False(t, ok)
}

func TestConcurrentProducersConsumers(t *testing.T) {
	const producers, perProducer, consumers = 8, 500, 3
	q := New[int]()

	var seen sync.Map
	var cwg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				v, ok := q.Pop(context.Background())
				if !ok {
					return
				}
				_, dup := seen.LoadOrStore(v, true)
				assert.False(t, dup, "item %d delivered twice", v)
			}
		}()
	}

	var pwg sync.WaitGroup
	for p := 0; p < producers; p++ {
		pwg.Add(1)
		go func(p int) {
			defer pwg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, q.Push(p*perProducer+i))
			}
		}(p)
	}
	pwg.Wait()
	q.Shutdown()
	cwg.Wait()

	n := 0
	seen.Range(func(_, _ any) bool { n++; return true })
	assert.Equal(t, producers*perProducer, n)
	assert.Equal(t, 0, q.Len())
}
