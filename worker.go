package tpool

import (
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type WorkerState int32

const (
	WorkerWaiting WorkerState = iota
	WorkerExecuting
	WorkerTerminated
)

func (s WorkerState) String() string {
	switch s {
	case WorkerWaiting:
		return "waiting"
	case WorkerExecuting:
		return "executing"
	case WorkerTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Worker owns one goroutine that pulls jobs off the pool's shared receiver
// until the queue is closed and drained.
type Worker struct {
	ID    int
	state atomic.Int32
	pool  *Pool
	done  chan struct{}
}

func newWorker(id int, p *Pool) *Worker {
	w := &Worker{
		ID:   id,
		pool: p,
		done: make(chan struct{}),
	}
	go w.run(true)
	return w
}

func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// run serves the queue until it is closed and drained. A job that calls
// runtime.Goexit kills the goroutine running it, so the slot carries on in
// a fresh one and done is closed only by the run that sees the queue closed.
func (w *Worker) run(first bool) {
	if w.pool.opts.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	if first {
		w.pool.log.App("worker started", zap.Int("worker", w.ID))
		w.pool.bus.Publish(PoolEventWorkerStarted, &WorkerEventPayload{WorkerID: w.ID, Time: time.Now()})
	}

	drained := false
	defer func() {
		if drained {
			close(w.done)
			return
		}
		w.state.Store(int32(WorkerWaiting))
		go w.run(false)
	}()

	for {
		job, ok := w.pool.rx.next()
		if !ok {
			break
		}
		w.state.Store(int32(WorkerExecuting))
		w.execute(job)
		w.state.Store(int32(WorkerWaiting))
	}
	drained = true

	w.state.Store(int32(WorkerTerminated))
	w.pool.log.App("worker stopped", zap.Int("worker", w.ID))
	w.pool.bus.Publish(PoolEventWorkerStopped, &WorkerEventPayload{WorkerID: w.ID, Time: time.Now()})
}

// execute runs job and contains any panic it raises to this one call.
func (w *Worker) execute(job Job) {
	p := w.pool
	jobID := uuid.NewString()
	p.log.Debug("executing job", zap.String("job", jobID), zap.Int("worker", w.ID))
	p.busy.Add(1)
	p.metrics.started()

	returned := false
	defer func() {
		p.busy.Add(-1)
		if returned {
			p.completed.Add(1)
			p.metrics.finished(jobCompleted)
			p.log.Debug("completed job", zap.String("job", jobID), zap.Int("worker", w.ID))
			return
		}

		r := recover()
		if r == nil {
			// runtime.Goexit: nothing to recover, the goroutine is going away
			p.exited.Add(1)
			p.metrics.finished(jobExited)
			p.log.Error(ErrJobExited, "job exited its goroutine",
				zap.String("job", jobID),
				zap.Int("worker", w.ID),
			)
			w.report(PoolEventJobExited, &JobExitedPayload{WorkerID: w.ID, JobID: jobID}, nil)
			return
		}

		p.panicked.Add(1)
		p.metrics.finished(jobPanicked)
		perr := &JobPanicError{
			WorkerID: w.ID,
			JobID:    jobID,
			Value:    r,
			Stack:    debug.Stack(),
		}
		p.log.Error(perr, "job panicked",
			zap.String("job", jobID),
			zap.Int("worker", w.ID),
			zap.ByteString("stack", perr.Stack),
		)
		w.report(PoolEventJobPanicked, &JobPanickedPayload{Err: perr}, perr)
	}()

	job.Run()
	returned = true
}

// report notifies subscribers and, for panics, the panic handler. Neither
// may take the worker down with it.
func (w *Worker) report(eventName int, payload EventPayload, perr *JobPanicError) {
	defer func() {
		if r := recover(); r != nil {
			w.pool.log.App("panic while reporting job fault", zap.Int("worker", w.ID), zap.Any("value", r))
		}
	}()
	w.pool.bus.Publish(eventName, payload)
	if h := w.pool.opts.panicHandler; h != nil && perr != nil {
		h(perr)
	}
}

func (w *Worker) join() {
	<-w.done
}
