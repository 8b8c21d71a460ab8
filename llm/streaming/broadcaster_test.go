package streaming

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](t *testing.T, r *Reader[T]) []T {
	t.Helper()
	var out []T
	for {
		v, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, v)
	}
}

func TestBroadcaster_ReadersSeeSameOrder(t *testing.T) {
	b := NewBroadcaster[int](BroadcastConfig{})
	r1 := b.NewReader()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Write(context.Background(), i))
	}
	// 后创建的读者从头回放
	r2 := b.NewReader()
	require.NoError(t, b.Close())

	assert.Equal(t, []int{0, 1, 2, 3, 4}, drain(t, r1))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, drain(t, r2))
}

func TestBroadcaster_WriteAfterClose(t *testing.T) {
	b := NewBroadcaster[string](BroadcastConfig{})
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Write(context.Background(), "x"), ErrStreamClosed)
	// 重复关闭无副作用
	assert.NoError(t, b.Close())
}

func TestBroadcaster_CloseWithError(t *testing.T) {
	b := NewBroadcaster[int](BroadcastConfig{})
	r := b.NewReader()
	require.NoError(t, b.Write(context.Background(), 1))
	boom := errors.New("boom")
	require.NoError(t, b.CloseWithError(boom))

	v, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestBroadcaster_BackpressureBlocksProducer(t *testing.T) {
	b := NewBroadcaster[int](BroadcastConfig{HighWaterMark: 2})
	r := b.NewReader()

	require.NoError(t, b.Write(context.Background(), 1))
	require.NoError(t, b.Write(context.Background(), 2))

	// 读者落后 2 个元素，第三次写入阻塞直到超时
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := b.Write(ctx, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), b.Stats().Blocked)

	// 读者前进后写入恢复
	done := make(chan error, 1)
	go func() { done <- b.Write(context.Background(), 3) }()
	v, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, <-done)
	assert.Equal(t, 3, b.Len())
}

func TestBroadcaster_ClosedReaderReleasesBackpressure(t *testing.T) {
	b := NewBroadcaster[int](BroadcastConfig{HighWaterMark: 1})
	r := b.NewReader()
	require.NoError(t, b.Write(context.Background(), 1))

	done := make(chan error, 1)
	go func() { done <- b.Write(context.Background(), 2) }()

	r.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("write stayed blocked after reader closed")
	}

	_, err := r.Next(context.Background())
	assert.ErrorIs(t, err, ErrReaderClosed)
	assert.Equal(t, 0, b.Stats().Readers)
}

func TestBroadcaster_NoReadersNeverBlocks(t *testing.T) {
	b := NewBroadcaster[int](BroadcastConfig{HighWaterMark: 1})
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Write(context.Background(), i))
	}
	assert.Len(t, b.Snapshot(), 10)
}

func TestReader_Chan(t *testing.T) {
	b := NewBroadcaster[int](BroadcastConfig{HighWaterMark: 4})
	c1 := b.NewReader().Chan(context.Background())
	c2 := b.NewReader().Chan(context.Background())

	go func() {
		for i := 0; i < 20; i++ {
			_ = b.Write(context.Background(), i)
		}
		_ = b.Close()
	}()

	var wg sync.WaitGroup
	results := make([][]int, 2)
	for i, c := range []<-chan int{c1, c2} {
		wg.Add(1)
		go func(i int, c <-chan int) {
			defer wg.Done()
			for v := range c {
				results[i] = append(results[i], v)
			}
		}(i, c)
	}
	wg.Wait()

	require.Len(t, results[0], 20)
	assert.Equal(t, results[0], results[1])
}

func TestReader_ChanCancelReleasesReader(t *testing.T) {
	b := NewBroadcaster[int](BroadcastConfig{HighWaterMark: 1})
	ctx, cancel := context.WithCancel(context.Background())
	c := b.NewReader().Chan(ctx)
	cancel()

	for range c {
	}
	assert.Eventually(t, func() bool { return b.Stats().Readers == 0 }, time.Second, 5*time.Millisecond)
}
