// Package event provides typed publish/subscribe topics for gateway events.
package event

import "sync"

// Handler receives one published value.
type Handler[T any] func(T)

// Topic is a typed event channel.
//
// Delivery is FIFO and synchronous, in subscription order. A Publish issued
// while an emission is in progress, from inside a handler or from another
// goroutine, is queued and delivered by the emitting goroutine once the
// current emission finishes. Handlers are never invoked recursively.
type Topic[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	subs     []subscription[T]
	queue    []T
	emitting bool
}

type subscription[T any] struct {
	id uint64
	fn Handler[T]
}

// NewTopic 创建事件主题
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{}
}

// Subscribe registers fn and returns a function that removes it.
func (t *Topic[T]) Subscribe(fn Handler[T]) (unsubscribe func()) {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscription[T]{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, s := range t.subs {
				if s.id == id {
					// 复制一份，避免影响正在分发的快照
					subs := make([]subscription[T], 0, len(t.subs)-1)
					subs = append(subs, t.subs[:i]...)
					t.subs = append(subs, t.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers v to every subscriber.
func (t *Topic[T]) Publish(v T) {
	t.Enqueue(v)
	t.Drain()
}

// Enqueue appends v without delivering it. Callers that must order events
// with their own state enqueue under their lock and Drain after releasing it.
func (t *Topic[T]) Enqueue(v T) {
	t.mu.Lock()
	t.queue = append(t.queue, v)
	t.mu.Unlock()
}

// Drain delivers queued values. It returns at once when another goroutine is
// already emitting; that goroutine delivers them instead.
func (t *Topic[T]) Drain() {
	t.mu.Lock()
	if t.emitting {
		t.mu.Unlock()
		return
	}
	t.emitting = true

	for len(t.queue) > 0 {
		next := t.queue[0]
		t.queue = t.queue[1:]
		subs := t.subs
		t.mu.Unlock()

		for _, s := range subs {
			s.fn(next)
		}

		t.mu.Lock()
	}
	t.emitting = false
	t.mu.Unlock()
}

// Len returns the number of subscribers.
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}
