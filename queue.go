package tpool

import "sync"

// queue is an unbounded FIFO of jobs shared by one Sender and one Receiver.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Job
	head   int
	closed bool
}

// Sender is the producing end of a queue.
type Sender struct {
	q *queue
}

// Receiver is the consuming end of a queue.
type Receiver struct {
	q *queue
}

// NewQueue returns the two ends of an unbounded job queue.
func NewQueue() (*Sender, *Receiver) {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return &Sender{q: q}, &Receiver{q: q}
}

// Send appends job to the tail. It never blocks.
func (s *Sender) Send(job Job) error {
	q := s.q
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, job)
	q.mu.Unlock()
	q.cond.Signal()
	return nil
}

// Close stops admission. Jobs already queued are still delivered.
func (s *Sender) Close() {
	q := s.q
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Recv blocks until a job is available or the queue is closed and drained,
// in which case ok is false.
func (r *Receiver) Recv() (job Job, ok bool) {
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.head == len(q.items) {
		return nil, false
	}

	job = q.items[q.head]
	q.items[q.head] = nil
	q.head++
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= 1024 && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return job, true
}

// Len reports the number of queued jobs.
func (r *Receiver) Len() int {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return len(r.q.items) - r.q.head
}

// sharedReceiver lets every worker of a pool pull from the same Receiver.
// The lock is held for the dequeue only, never while a job runs.
type sharedReceiver struct {
	mu sync.Mutex
	rx *Receiver
}

func (s *sharedReceiver) next() (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rx.Recv()
}
