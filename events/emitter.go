// Package events 提供按事件名划分的发布/订阅通道。
//
// 每个 Emitter 对应一种事件，订阅者按注册顺序收到每次 Emit，
// 且每次 Emit 对每个订阅者至多投递一次。回调在 Emit 的调用方
// goroutine 中同步执行，因此回调内取消订阅是安全的。
package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// Emitter 是单一事件类型的观察者列表。零值可直接使用。
type Emitter[E any] struct {
	mu        sync.Mutex
	listeners []*listener[E]
}

type listener[E any] struct {
	fn      func(E)
	once    bool
	removed atomic.Bool
}

// On 注册回调，返回取消订阅函数。取消函数可重复调用。
func (e *Emitter[E]) On(fn func(E)) (unsubscribe func()) {
	return e.add(&listener[E]{fn: fn})
}

// Once 注册只触发一次的回调。
func (e *Emitter[E]) Once(fn func(E)) (unsubscribe func()) {
	return e.add(&listener[E]{fn: fn, once: true})
}

func (e *Emitter[E]) add(l *listener[E]) func() {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()

	return func() { e.remove(l) }
}

func (e *Emitter[E]) remove(l *listener[E]) {
	l.removed.Store(true)

	e.mu.Lock()
	defer e.mu.Unlock()
	for i, cur := range e.listeners {
		if cur == l {
			// 复制而非原地修改，正在进行的 Emit 持有旧快照
			next := make([]*listener[E], 0, len(e.listeners)-1)
			next = append(next, e.listeners[:i]...)
			next = append(next, e.listeners[i+1:]...)
			e.listeners = next
			return
		}
	}
}

// Emit 将事件投递给当前所有订阅者。
func (e *Emitter[E]) Emit(ev E) {
	e.mu.Lock()
	snapshot := e.listeners
	e.mu.Unlock()

	for _, l := range snapshot {
		if l.once {
			if !l.removed.CompareAndSwap(false, true) {
				continue
			}
			e.remove(l)
		} else if l.removed.Load() {
			continue
		}
		l.fn(ev)
	}
}

// Next 阻塞直到下一次 Emit 或 ctx 结束。
func (e *Emitter[E]) Next(ctx context.Context) (E, error) {
	ch := make(chan E, 1)
	unsubscribe := e.Once(func(ev E) { ch <- ev })
	defer unsubscribe()

	select {
	case ev := <-ch:
		return ev, nil
	case <-ctx.Done():
		var zero E
		return zero, ctx.Err()
	}
}

// Clear 移除所有订阅者。
func (e *Emitter[E]) Clear() {
	e.mu.Lock()
	old := e.listeners
	e.listeners = nil
	e.mu.Unlock()

	for _, l := range old {
		l.removed.Store(true)
	}
}

// Len 返回当前订阅者数量。
func (e *Emitter[E]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}
