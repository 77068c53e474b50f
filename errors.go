package tpool

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidPoolSize is returned by NewPool when size is not positive.
	ErrInvalidPoolSize = errors.New("tpool: pool size must be positive")
	// ErrPoolClosed is returned by Submit once Shutdown has started.
	ErrPoolClosed = errors.New("tpool: pool is shut down")
	// ErrNilJob is returned by Submit for a nil job.
	ErrNilJob = errors.New("tpool: nil job")
	// ErrQueueClosed is returned by Sender.Send after Close.
	ErrQueueClosed = errors.New("tpool: queue is closed")
	// ErrServerStopped is returned by Listen once Stop has been called.
	ErrServerStopped = errors.New("tpool: server stopped")
	// ErrJobExited is logged when a job ends its goroutine with runtime.Goexit.
	ErrJobExited = errors.New("tpool: job called runtime.Goexit")
)

// JobPanicError describes a job that panicked on a worker. The worker
// recovers and keeps serving the queue.
type JobPanicError struct {
	WorkerID int
	JobID    string
	Value    any
	Stack    []byte
}

func (e *JobPanicError) Error() string {
	return fmt.Sprintf("tpool: job %s panicked on worker %d: %v", e.JobID, e.WorkerID, e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *JobPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
