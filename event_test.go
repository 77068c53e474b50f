package tpool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBusSubscribe(t *testing.T) {
	bus := NewEventBus()
	var called bool

	bus.Subscribe(100, func(p EventPayload) error {
		called = true
		return nil
	})

	bus.Publish(100, &ServerEventErrorPayload{})

	assert.True(t, called, "handler was not called")
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count int64

	for i := 0; i < 5; i++ {
		bus.Subscribe(200, func(p EventPayload) error {
			atomic.AddInt64(&count, 1)
			return nil
		})
	}

	bus.Publish(200, &WorkerEventPayload{})

	assert.Equal(t, int64(5), atomic.LoadInt64(&count))
}

func TestEventBusUnregisteredEvent(t *testing.T) {
	bus := NewEventBus()
	assert.NotPanics(t, func() {
		bus.Publish(999, &ServerEventErrorPayload{})
	})
}

func TestEventBusPublishAsync(t *testing.T) {
	bus := NewEventBus()
	defer bus.Release()
	var count int64
	var wg sync.WaitGroup

	wg.Add(3)
	for i := 0; i < 3; i++ {
		bus.Subscribe(500, func(p EventPayload) error {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
			return nil
		})
	}

	bus.PublishAsync(500, &ShutdownEventPayload{})

	wg.Wait()
	assert.Equal(t, int64(3), atomic.LoadInt64(&count))
}

func TestEventBusSubscribeFromHandler(t *testing.T) {
	bus := NewEventBus()
	var inner int64

	bus.Subscribe(700, func(p EventPayload) error {
		bus.Subscribe(701, func(p EventPayload) error {
			atomic.AddInt64(&inner, 1)
			return nil
		})
		return nil
	})

	bus.Publish(700, &WorkerEventPayload{})
	bus.Publish(701, &WorkerEventPayload{})

	assert.Equal(t, int64(1), atomic.LoadInt64(&inner))
}

func TestEventBusConcurrentPublish(t *testing.T) {
	bus := NewEventBus()
	var count int64
	var wg sync.WaitGroup

	bus.Subscribe(600, func(p EventPayload) error {
		atomic.AddInt64(&count, 1)
		return nil
	})

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(600, &ServerEventErrorPayload{})
		}()
	}

	wg.Wait()

	assert.Equal(t, int64(100), atomic.LoadInt64(&count))
}

func TestEventBusPublishAsyncAfterRelease(t *testing.T) {
	bus := NewEventBus()
	var count int64

	bus.Subscribe(800, func(p EventPayload) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	bus.Release()
	bus.Release()

	// handlers run inline once the async pool is gone
	bus.PublishAsync(800, &WorkerEventPayload{})
	assert.Equal(t, int64(1), atomic.LoadInt64(&count))

	bus.Publish(800, &WorkerEventPayload{})
	assert.Equal(t, int64(2), atomic.LoadInt64(&count))
}

func TestEventBusHandlerPanicIsContained(t *testing.T) {
	bus := NewEventBus()
	defer bus.Release()
	var after int64
	var wg sync.WaitGroup

	bus.Subscribe(900, func(p EventPayload) error {
		panic("bad subscriber")
	})
	bus.Subscribe(900, func(p EventPayload) error {
		defer wg.Done()
		atomic.AddInt64(&after, 1)
		return nil
	})

	wg.Add(1)
	assert.NotPanics(t, func() {
		bus.Publish(900, &WorkerEventPayload{})
	})
	wg.Wait()
	assert.Equal(t, int64(1), atomic.LoadInt64(&after))

	wg.Add(1)
	assert.NotPanics(t, func() {
		bus.PublishAsync(900, &WorkerEventPayload{})
	})
	wg.Wait()
	assert.Equal(t, int64(2), atomic.LoadInt64(&after))
}
