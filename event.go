package tpool

import (
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

const (
	PoolEventWorkerStarted     = 1
	PoolEventWorkerStopped     = 2
	PoolEventJobPanicked       = 3
	PoolEventShutdownStarted   = 4
	PoolEventShutdownCompleted = 5
	PoolEventJobExited         = 6

	ServerEventError         = 101
	ServerEventStarted       = 102
	ServerEventRequestServed = 103
	ServerEventStopped       = 104
)

type EventPayload interface {
	isEventPayload()
}

type WorkerEventPayload struct {
	WorkerID int
	Time     time.Time
}

func (p *WorkerEventPayload) isEventPayload() {}

type JobPanickedPayload struct {
	Err *JobPanicError
}

func (p *JobPanickedPayload) isEventPayload() {}

// JobExitedPayload reports a job that called runtime.Goexit. Its worker
// slot keeps serving on a new goroutine.
type JobExitedPayload struct {
	WorkerID int
	JobID    string
}

func (p *JobExitedPayload) isEventPayload() {}

type ShutdownEventPayload struct {
	Pending int // jobs still queued when the event fired
	Time    time.Time
}

func (p *ShutdownEventPayload) isEventPayload() {}

type ServerEventErrorPayload struct {
	Err  error
	Data map[string]any
}

func (p *ServerEventErrorPayload) isEventPayload() {}

type ServerEventStartedPayload struct {
	Addr string
	Time time.Time
}

func (p *ServerEventStartedPayload) isEventPayload() {}

type ServerEventRequestServedPayload struct {
	ConnID      uint64
	RemoteAddr  string
	RequestLine string
	Status      string
	Elapsed     time.Duration
}

func (p *ServerEventRequestServedPayload) isEventPayload() {}

type ServerEventStoppedPayload struct {
	Accepted uint64
	Time     time.Time
}

func (p *ServerEventStoppedPayload) isEventPayload() {}

// asyncHandlers bounds how many PublishAsync handlers run at once.
const asyncHandlers = 256

type EventBus struct {
	subscribers map[int][]func(payload EventPayload) error
	mu          sync.RWMutex
	async       *ants.Pool
}

func NewEventBus() *EventBus {
	bus := &EventBus{
		subscribers: make(map[int][]func(payload EventPayload) error),
	}
	// a nil pool makes PublishAsync run handlers inline
	if pool, err := ants.NewPool(asyncHandlers, ants.WithNonblocking(true)); err == nil {
		bus.async = pool
	}
	return bus
}

func (bus *EventBus) Subscribe(eventName int, handler func(payload EventPayload) error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.subscribers[eventName] = append(bus.subscribers[eventName], handler)
}

func (bus *EventBus) handlers(eventName int) []func(payload EventPayload) error {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return bus.subscribers[eventName]
}

// call runs one handler. A panicking handler is recovered so it cannot take
// down the publisher or keep later handlers from running.
func call(handler func(payload EventPayload) error, payload EventPayload) {
	defer func() { recover() }()
	handler(payload)
}

// Publish runs every handler for eventName on the calling goroutine.
func (bus *EventBus) Publish(eventName int, payload EventPayload) {
	for _, handler := range bus.handlers(eventName) {
		call(handler, payload)
	}
}

// PublishAsync hands each handler to the bus's ants pool. If the pool is
// full or released the handler runs inline.
func (bus *EventBus) PublishAsync(eventName int, payload EventPayload) {
	for _, handler := range bus.handlers(eventName) {
		h := handler
		if bus.async == nil || bus.async.Submit(func() { call(h, payload) }) != nil {
			call(h, payload)
		}
	}
}

// Release stops the async pool. Later PublishAsync calls run inline.
func (bus *EventBus) Release() {
	if bus.async != nil {
		bus.async.Release()
	}
}
