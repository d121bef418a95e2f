package queue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loranet/strp/internal/queue"
)

func TestTryEnqueueFailsAtCapacity(t *testing.T) {
	q := queue.New[int](2)

	require.True(t, q.TryEnqueue(1))
	require.True(t, q.TryEnqueue(2))
	require.False(t, q.TryEnqueue(3), "queue at capacity must reject TryEnqueue")
	require.Equal(t, 2, q.Len())
}

func TestBlockingEnqueueUnblocksOnDequeue(t *testing.T) {
	q := queue.New[int](1)
	require.True(t, q.TryEnqueue(1))

	done := make(chan struct{})
	go func() {
		require.NoError(t, q.Enqueue(2))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Enqueue returned before a slot was freed")
	case <-time.After(50 * time.Millisecond):
	}

	v, err := q.Dequeue()
	require.NoError(t, err)
	require.Equal(t, 1, v)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue did not unblock after Dequeue freed a slot")
	}

	v, err = q.Dequeue()
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestDequeueTimeoutDiscriminatesFromFailure(t *testing.T) {
	q := queue.New[int](1)

	_, err := q.DequeueTimeout(time.Now().Add(20 * time.Millisecond))
	require.ErrorIs(t, err, queue.ErrTimeout)

	require.True(t, q.TryEnqueue(42))
	v, err := q.DequeueTimeout(time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestFIFOOrder(t *testing.T) {
	q := queue.New[int](8)
	for i := 0; i < 8; i++ {
		require.True(t, q.TryEnqueue(i))
	}
	for i := 0; i < 8; i++ {
		v, ok := q.TryDequeue()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := q.TryDequeue()
	require.False(t, ok)
}

func TestConcurrentProducersConsumers(t *testing.T) {
	q := queue.New[int](4)
	const n = 500

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			require.NoError(t, q.Enqueue(i))
		}
	}()

	sum := 0
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			v, err := q.Dequeue()
			require.NoError(t, err)
			sum += v
		}
	}()

	wg.Wait()
	require.Equal(t, n*(n-1)/2, sum)
}

func TestCloseWakesBlockedWaiters(t *testing.T) {
	q := queue.New[int](1)

	errc := make(chan error, 1)
	go func() {
		_, err := q.Dequeue()
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, queue.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake blocked Dequeue")
	}
}
