package streaming

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

var (
	ErrStreamClosed = errors.New("stream closed")
	ErrReaderClosed = errors.New("reader closed")
)

// BroadcastConfig 广播配置
type BroadcastConfig struct {
	// HighWaterMark 最慢活跃读者允许落后的元素数，<=0 表示不限制
	HighWaterMark int `json:"high_water_mark" yaml:"high_water_mark"`
}

// DefaultBroadcastConfig 返回默认配置
func DefaultBroadcastConfig() BroadcastConfig {
	return BroadcastConfig{HighWaterMark: 256}
}

// Broadcaster 单生产者、多读者的可回放缓冲
type Broadcaster[T any] struct {
	config BroadcastConfig

	mu      sync.Mutex
	items   []T
	closed  bool
	err     error
	readers map[*Reader[T]]struct{}
	changed chan struct{}

	produced atomic.Int64
	blocked  atomic.Int64
}

// NewBroadcaster 创建广播缓冲
func NewBroadcaster[T any](config BroadcastConfig) *Broadcaster[T] {
	return &Broadcaster[T]{
		config:  config,
		readers: make(map[*Reader[T]]struct{}),
		changed: make(chan struct{}),
	}
}

// notifyLocked 唤醒所有等待者，调用方持有锁
func (b *Broadcaster[T]) notifyLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// lagLocked 返回最慢活跃读者落后的元素数
func (b *Broadcaster[T]) lagLocked() int {
	lag := 0
	for r := range b.readers {
		if d := len(b.items) - r.pos; d > lag {
			lag = d
		}
	}
	return lag
}

// Write 追加元素；最慢读者落后达到 HighWaterMark 时阻塞
func (b *Broadcaster[T]) Write(ctx context.Context, item T) error {
	b.mu.Lock()
	counted := false
	for !b.closed && b.config.HighWaterMark > 0 && b.lagLocked() >= b.config.HighWaterMark {
		if !counted {
			b.blocked.Add(1)
			counted = true
		}
		wait := b.changed
		b.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
		b.mu.Lock()
	}
	defer b.mu.Unlock()

	if b.closed {
		return ErrStreamClosed
	}
	b.items = append(b.items, item)
	b.produced.Add(1)
	b.notifyLocked()
	return nil
}

// Close 结束写入；读者读完已缓冲的元素后收到 io.EOF
func (b *Broadcaster[T]) Close() error {
	return b.CloseWithError(nil)
}

// CloseWithError 结束写入，读者读完后收到 err（nil 时为 io.EOF）
func (b *Broadcaster[T]) CloseWithError(err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.err = err
	b.notifyLocked()
	return nil
}

// NewReader 创建从第一个元素开始的读者
func (b *Broadcaster[T]) NewReader() *Reader[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := &Reader[T]{b: b}
	b.readers[r] = struct{}{}
	return r
}

// Len 返回已写入的元素数
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Snapshot 返回已写入元素的副本
func (b *Broadcaster[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Stats 返回统计信息
func (b *Broadcaster[T]) Stats() BroadcastStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BroadcastStats{
		Produced: b.produced.Load(),
		Blocked:  b.blocked.Load(),
		Readers:  len(b.readers),
		MaxLag:   b.lagLocked(),
		Closed:   b.closed,
	}
}

// BroadcastStats 广播统计
type BroadcastStats struct {
	Produced int64 `json:"produced"`
	Blocked  int64 `json:"blocked"`
	Readers  int   `json:"readers"`
	MaxLag   int   `json:"max_lag"`
	Closed   bool  `json:"closed"`
}

// Reader 广播缓冲的独立读者
type Reader[T any] struct {
	b      *Broadcaster[T]
	pos    int
	closed bool
}

// Next 返回下一个元素；缓冲耗尽且已关闭时返回 io.EOF 或关闭时的错误
func (r *Reader[T]) Next(ctx context.Context) (T, error) {
	var zero T
	b := r.b
	b.mu.Lock()
	for {
		if r.closed {
			b.mu.Unlock()
			return zero, ErrReaderClosed
		}
		if r.pos < len(b.items) {
			item := b.items[r.pos]
			r.pos++
			b.notifyLocked()
			b.mu.Unlock()
			return item, nil
		}
		if b.closed {
			err := b.err
			b.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return zero, err
		}
		wait := b.changed
		b.mu.Unlock()
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wait:
		}
		b.mu.Lock()
	}
}

// Close 释放读者；不再参与背压计算
func (r *Reader[T]) Close() {
	b := r.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	delete(b.readers, r)
	b.notifyLocked()
}

// Chan 将读者转换为通道；ctx 取消或缓冲结束时关闭通道并释放读者
func (r *Reader[T]) Chan(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		defer r.Close()
		for {
			item, err := r.Next(ctx)
			if err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case out <- item:
			}
		}
	}()
	return out
}
