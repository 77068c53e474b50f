package tpool

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type options struct {
	log          *Log
	bus          *EventBus
	metrics      *Metrics
	panicHandler func(*JobPanicError)
	lockOSThread bool
}

type Option func(*options)

func WithLog(l *Log) Option {
	return func(o *options) { o.log = l }
}

// WithEventBus makes the pool publish its lifecycle events on bus.
func WithEventBus(bus *EventBus) Option {
	return func(o *options) { o.bus = bus }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithPanicHandler is called on the worker goroutine after a job panics.
func WithPanicHandler(h func(*JobPanicError)) Option {
	return func(o *options) { o.panicHandler = h }
}

// WithLockOSThread pins every worker goroutine to its own OS thread.
func WithLockOSThread(lock bool) Option {
	return func(o *options) { o.lockOSThread = lock }
}

// Submitter accepts jobs. *Pool implements it.
type Submitter interface {
	Submit(job Job) error
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Size      int
	Submitted uint64
	Rejected  uint64
	Completed uint64
	Panicked  uint64
	Exited    uint64 // jobs that called runtime.Goexit
	Pending   int
	Running   int
}

// Pool runs submitted jobs on a fixed set of workers. The zero value is not
// usable; create pools with NewPool and release them with Close or Shutdown.
type Pool struct {
	opts options
	log  *Log
	bus  *EventBus

	// ownBus is set when the pool created bus and so releases it
	ownBus  bool
	metrics *Metrics

	mu      sync.RWMutex
	sender  *Sender // nil once shutdown has started
	rx      *sharedReceiver
	workers []*Worker

	shutdownOnce sync.Once

	submitted atomic.Uint64
	rejected  atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
	exited    atomic.Uint64
	busy      atomic.Int64
}

// NewPool starts size workers. It returns ErrInvalidPoolSize when size is
// not positive.
func NewPool(size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		return nil, ErrInvalidPoolSize
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = NopLog()
	}
	ownBus := o.bus == nil
	if ownBus {
		o.bus = NewEventBus()
	}

	sender, receiver := NewQueue()
	p := &Pool{
		opts:    o,
		log:     o.log,
		bus:     o.bus,
		ownBus:  ownBus,
		metrics: o.metrics,
		sender:  sender,
		rx:      &sharedReceiver{rx: receiver},
		workers: make([]*Worker, 0, size),
	}
	for id := 0; id < size; id++ {
		p.workers = append(p.workers, newWorker(id, p))
	}
	p.log.App("pool started", zap.Int("size", size))
	return p, nil
}

func NewPoolWithConfig(cfg PoolConfig, opts ...Option) (*Pool, error) {
	return NewPool(cfg.Size, append([]Option{WithLockOSThread(cfg.LockOSThread)}, opts...)...)
}

// Submit queues job for execution. It never blocks on a busy pool.
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.sender == nil {
		p.rejected.Add(1)
		p.metrics.rejected()
		return ErrPoolClosed
	}
	if err := p.sender.Send(job); err != nil {
		p.rejected.Add(1)
		p.metrics.rejected()
		return ErrPoolClosed
	}
	p.submitted.Add(1)
	p.metrics.submitted()
	return nil
}

func (p *Pool) SubmitFunc(f func()) error {
	if f == nil {
		return ErrNilJob
	}
	return p.Submit(JobFunc(f))
}

// Shutdown stops admission, lets the workers drain every queued job and
// waits for all of them to exit. Concurrent and repeated calls block until
// the first one has finished. Calling it from inside a job deadlocks.
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(p.shutdown)
}

func (p *Pool) shutdown() {
	p.mu.Lock()
	sender := p.sender
	p.sender = nil
	p.mu.Unlock()

	pending := p.rx.rx.Len()
	p.log.App("pool shutting down", zap.Int("pending", pending))
	p.bus.Publish(PoolEventShutdownStarted, &ShutdownEventPayload{Pending: pending, Time: time.Now()})

	sender.Close()
	for _, w := range p.workers {
		w.join()
	}

	p.log.App("pool stopped",
		zap.Uint64("completed", p.completed.Load()),
		zap.Uint64("panicked", p.panicked.Load()),
		zap.Uint64("exited", p.exited.Load()),
	)
	p.bus.Publish(PoolEventShutdownCompleted, &ShutdownEventPayload{Time: time.Now()})
	if p.ownBus {
		p.bus.Release()
	}
}

// Close is Shutdown for use with defer. It always returns nil.
func (p *Pool) Close() error {
	p.Shutdown()
	return nil
}

// Closed reports whether shutdown has started.
func (p *Pool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sender == nil
}

func (p *Pool) Size() int {
	return len(p.workers)
}

// Pending reports the number of queued jobs not yet picked up by a worker.
func (p *Pool) Pending() int {
	return p.rx.rx.Len()
}

// Running reports the number of workers currently executing a job.
func (p *Pool) Running() int {
	return int(p.busy.Load())
}

func (p *Pool) WorkerStates() []WorkerState {
	states := make([]WorkerState, len(p.workers))
	for i, w := range p.workers {
		states[i] = w.State()
	}
	return states
}

func (p *Pool) Stats() Stats {
	return Stats{
		Size:      len(p.workers),
		Submitted: p.submitted.Load(),
		Rejected:  p.rejected.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Exited:    p.exited.Load(),
		Pending:   p.Pending(),
		Running:   p.Running(),
	}
}

func (p *Pool) On(eventName int, handler func(payload EventPayload) error) {
	p.bus.Subscribe(eventName, handler)
}
