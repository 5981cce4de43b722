package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_DeliversInRegistrationOrder(t *testing.T) {
	var e Emitter[int]
	var got []string

	e.On(func(v int) { got = append(got, "a") })
	e.On(func(v int) { got = append(got, "b") })
	e.Emit(1)

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestEmitter_OnceFiresAtMostOnce(t *testing.T) {
	var e Emitter[string]
	count := 0
	e.Once(func(string) { count++ })

	e.Emit("x")
	e.Emit("y")

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, e.Len())
}

func TestEmitter_UnsubscribeDuringEmit(t *testing.T) {
	var e Emitter[int]
	var calls []int

	var unsubB func()
	e.On(func(v int) {
		calls = append(calls, 1)
		unsubB()
	})
	unsubB = e.On(func(v int) { calls = append(calls, 2) })
	e.On(func(v int) { calls = append(calls, 3) })

	e.Emit(0)
	e.Emit(0)

	// 第一次 Emit 时 B 已在回调中被移除，不应再被调用
	assert.Equal(t, []int{1, 3, 1, 3}, calls)
	assert.Equal(t, 2, e.Len())
}

func TestEmitter_UnsubscribeIsIdempotent(t *testing.T) {
	var e Emitter[int]
	unsub := e.On(func(int) {})
	unsub()
	unsub()
	assert.Equal(t, 0, e.Len())
}

func TestEmitter_Next(t *testing.T) {
	var e Emitter[string]

	go func() {
		time.Sleep(10 * time.Millisecond)
		e.Emit("ready")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := e.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ready", v)
}

func TestEmitter_NextCancelled(t *testing.T) {
	var e Emitter[int]
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, e.Len())
}

func TestEmitter_ConcurrentEmitAndSubscribe(t *testing.T) {
	var e Emitter[int]
	var mu sync.Mutex
	total := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := e.On(func(v int) {
				mu.Lock()
				total += v
				mu.Unlock()
			})
			defer unsub()
		}()
		go func() {
			defer wg.Done()
			e.Emit(1)
		}()
	}
	wg.Wait()

	e.Clear()
	assert.Equal(t, 0, e.Len())
}
